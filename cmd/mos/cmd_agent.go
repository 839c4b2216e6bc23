package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// agentCmd groups agent subcommands.
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Interact with the unified memetic agent",
}

var agentThinkCmd = &cobra.Command{
	Use:   "think <thought>",
	Short: "Process one thought through the strategy hierarchy",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAgentThink,
}

var agentReflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Run one reflection cycle",
	RunE:  runAgentReflect,
}

var agentStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show agent state, memory and strategy statistics",
	RunE:  runAgentStats,
}

var agentEvolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Evolve qualifying strategies into specialized children",
	RunE:  runAgentEvolve,
}

var agentGoalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage the agent's goals",
}

var agentGoalAddCmd = &cobra.Command{
	Use:   "add <goal>",
	Short: "Set and remember a goal",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAgentGoalAdd,
}

func runAgentThink(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	thought := strings.Join(args, " ")
	res := rt.agent.Think(thought)

	fmt.Printf("status: %s\n", res.Status)
	fmt.Printf("energy: %d (drained %d)\n", res.Energy, res.EnergyDrain)
	for _, a := range res.Actions {
		fmt.Printf("  fired %-20s cost=%d plan=%s\n", a.Strategy, a.Cost, a.Plan)
		if len(a.Topics) > 0 {
			fmt.Printf("    topics: %s\n", strings.Join(a.Topics, ", "))
		}
	}
	return rt.agent.Persist()
}

func runAgentReflect(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	res := rt.agent.MixedReflection()
	fmt.Printf("reflection: %q\n", res.Thought)
	fmt.Printf("status: %s, energy %d, %d strategies fired\n", res.Status, res.Energy, len(res.Actions))
	return rt.agent.Persist()
}

func runAgentStats(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	st := rt.agent.State()
	mem := rt.agent.Memory()
	fmt.Printf("agent %q\n", rt.agent.Name())
	fmt.Printf("  emotion: %s\n", st.Emotion)
	fmt.Printf("  goal:    %q\n", st.Goal)
	fmt.Printf("  energy:  %d\n", st.Energy)
	fmt.Printf("  memes:   %d\n", len(rt.agent.MemeNames()))
	fmt.Printf("  memory:  %d goals, %d thoughts, %d log entries\n",
		len(mem.Goals), len(mem.Thoughts), len(mem.Log))

	stats := rt.agent.Stats()
	if len(stats) == 0 {
		return nil
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\n%-24s %-6s %-8s %s\n", "strategy", "uses", "success", "fail")
	for _, name := range names {
		s := stats[name]
		fmt.Printf("%-24s %-6d %-8d %d\n", name, s.Uses, s.Success, s.Fail)
	}
	return nil
}

func runAgentEvolve(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	evolved := rt.agent.EvolveStrategies()
	if len(evolved) == 0 {
		fmt.Println("no strategies qualified (need 3+ uses with success > fail)")
		return nil
	}
	for _, s := range evolved {
		fmt.Printf("evolved %s (level %d, topics: %s)\n", s.Name, s.Level, strings.Join(s.TriggerTopics, ", "))
	}
	return rt.agent.Persist()
}

func runAgentGoalAdd(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	goal := strings.Join(args, " ")
	rt.agent.SetGoal(goal)
	fmt.Printf("goal set: %q\n", goal)
	return rt.agent.Persist()
}
