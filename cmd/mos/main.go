package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mos/internal/config"
	"mos/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

const mosVersion = "0.1.0"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mos",
	Short: "MOS - Meme Operating System",
	Long: `MOS is a memetic agent runtime.

Memes are typed, replicating units of information (text, code, data,
images, neural models). They live in an evolutionary network graded by
fitness, and a unified memetic agent thinks over them through a strategy
hierarchy, buffering costly thoughts into an LLM-backed resonance
environment.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip logger init for interactive mode (it has its own UI)
		if cmd.Use == "mos" && cmd.CalledAs() == "mos" {
			return nil
		}

		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch interactive chat
		return runInteractiveChat()
	},
}

// versionCmd prints the build version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the MOS version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mos %s\n", mosVersion)
	},
}

// loadConfig resolves the effective configuration for a command run.
// Flag --config wins over the workspace default path.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath(workspace)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config at %s: %w", path, err)
	}
	if err := logging.Initialize(workspaceOrCwd()); err != nil {
		return nil, fmt.Errorf("failed to initialize category logging: %w", err)
	}
	return cfg, nil
}

func workspaceOrCwd() string {
	if workspace != "" {
		return workspace
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.mos/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	memeCmd.AddCommand(memeAddCmd)
	memeCmd.AddCommand(memeListCmd)
	memeCmd.AddCommand(memeShowCmd)
	memeCmd.AddCommand(memeExecCmd)
	memeCmd.AddCommand(memeMutateCmd)
	memeCmd.AddCommand(memeLinkCmd)

	agentCmd.AddCommand(agentThinkCmd)
	agentCmd.AddCommand(agentReflectCmd)
	agentCmd.AddCommand(agentStatsCmd)
	agentCmd.AddCommand(agentEvolveCmd)
	agentCmd.AddCommand(agentGoalCmd)
	agentGoalCmd.AddCommand(agentGoalAddCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(evolveCmd)
	rootCmd.AddCommand(memeCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(linkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
