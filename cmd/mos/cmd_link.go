package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mos/internal/embedding"
)

var linkThreshold float64

// linkCmd runs one embedding-driven association pass over the network.
var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Auto-associate stored memes by embedding similarity",
	RunE:  runLink,
}

func init() {
	linkCmd.Flags().Float64Var(&linkThreshold, "threshold", 0, "Similarity threshold (default from config)")
}

func runLink(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine, err := embedding.NewEngine(rt.cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding engine: %w", err)
	}

	threshold := linkThreshold
	if threshold == 0 {
		threshold = rt.cfg.Embedding.LinkThreshold
	}

	n, err := rt.store.LoadNetwork()
	if err != nil {
		return fmt.Errorf("failed to load network: %w", err)
	}
	if n.Len() < 2 {
		return fmt.Errorf("need at least 2 memes to associate; have %d", n.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	linker := embedding.NewLinker(engine, threshold, rt.store)
	links, err := linker.Link(ctx, n)
	if err != nil {
		return fmt.Errorf("association pass failed: %w", err)
	}

	if err := rt.store.SaveNetwork(n); err != nil {
		return fmt.Errorf("failed to persist links: %w", err)
	}

	fmt.Printf("%s: %d links formed at threshold %.2f across %d memes\n",
		engine.Name(), links, threshold, n.Len())
	return nil
}
