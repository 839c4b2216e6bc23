package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mos/internal/meme"
	"mos/internal/network"
)

var evolveGenerations int

// evolveCmd runs evolutionary cycles over the stored meme network.
var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Run evolutionary cycles over the stored meme network",
	RunE:  runEvolve,
}

func init() {
	evolveCmd.Flags().IntVar(&evolveGenerations, "generations", 1, "Number of cycles to run")
}

func runEvolve(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := []network.Option{
		network.WithRecorder(rt.store),
		network.WithSurvivorFraction(rt.cfg.Network.SurvivorFraction),
		network.WithWorkers(rt.cfg.Network.Workers),
	}
	if rt.cfg.Network.Evaluator == "static" {
		scores := make(map[uuid.UUID]float64)
		for _, m := range memesForScores(rt) {
			scores[m.ID] = m.Fitness
		}
		opts = append(opts, network.WithEvaluator(&network.StaticEvaluator{Scores: scores}))
	}

	n, err := rt.store.LoadNetwork(opts...)
	if err != nil {
		return fmt.Errorf("failed to load network: %w", err)
	}
	if n.Len() == 0 {
		return fmt.Errorf("network is empty; run `mos seed` or `mos meme add` first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	gens, err := n.EvolveN(ctx, evolveGenerations)
	if err != nil {
		return fmt.Errorf("evolution failed: %w", err)
	}

	fmt.Printf("%-5s %-11s %-10s %-10s %-10s %s\n", "gen", "population", "survivors", "best", "mean", "elapsed")
	for _, g := range gens {
		fmt.Printf("%-5d %-11d %-10d %-10.4f %-10.4f %s\n",
			g.Number, g.Population, g.Survivors, g.BestFitness, g.MeanFitness, g.Elapsed.Round(time.Millisecond))
	}

	if err := rt.store.SaveNetwork(n); err != nil {
		return fmt.Errorf("failed to persist evolved network: %w", err)
	}
	fmt.Printf("\nnetwork persisted: %d memes after %d cycles\n", n.Len(), len(gens))
	return nil
}

// memesForScores pins the static evaluator to the stored fitness values.
func memesForScores(rt *runtime) []*meme.Meme {
	memes, err := rt.store.ListMemes()
	if err != nil {
		return nil
	}
	return memes
}
