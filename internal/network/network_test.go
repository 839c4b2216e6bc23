package network

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"mos/internal/meme"

	"github.com/google/uuid"
)

func textMeme(t *testing.T, s string) *meme.Meme {
	t.Helper()
	m, err := meme.New(meme.KindText, s)
	if err != nil {
		t.Fatalf("New text meme: %v", err)
	}
	return m
}

type failingEvaluator struct{}

func (failingEvaluator) Score(context.Context, *meme.Meme) (float64, error) {
	return 0, errors.New("scoring backend down")
}

func TestAddRemoveGet(t *testing.T) {
	n := New()
	m := textMeme(t, "hello")

	n.Add(m)
	if n.Len() != 1 {
		t.Fatalf("Expected len 1, got %d", n.Len())
	}

	got, ok := n.Get(m.ID)
	if !ok || got.ID != m.ID {
		t.Error("Get did not return the added meme")
	}

	n.Remove(m.ID)
	if n.Len() != 0 {
		t.Error("Remove did not delete the meme")
	}

	// Removing an absent ID is a no-op
	n.Remove(uuid.New())
}

func TestEvolveEmptyPopulationNoop(t *testing.T) {
	n := New()
	gen, err := n.Evolve(context.Background())
	if err != nil {
		t.Fatalf("Evolve on empty population should not error: %v", err)
	}
	if gen.Population != 0 || gen.Number != 0 {
		t.Errorf("Expected zero-value generation, got %+v", gen)
	}
}

func TestEvolvePopulationArithmetic(t *testing.T) {
	tests := []struct {
		start         int
		wantSurvivors int
		wantPop       int
	}{
		{1, 1, 2},
		{2, 1, 2},
		{3, 1, 2},
		{4, 2, 4},
		{10, 5, 10},
		{11, 5, 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("population_%d", tt.start), func(t *testing.T) {
			n := New(WithMutationSeed(1))
			for i := 0; i < tt.start; i++ {
				n.Add(textMeme(t, fmt.Sprintf("meme %d", i)))
			}

			gen, err := n.Evolve(context.Background())
			if err != nil {
				t.Fatalf("Evolve failed: %v", err)
			}
			if gen.Survivors != tt.wantSurvivors {
				t.Errorf("Survivors = %d, want %d", gen.Survivors, tt.wantSurvivors)
			}
			if gen.Population != tt.wantPop {
				t.Errorf("Population = %d, want %d", gen.Population, tt.wantPop)
			}
			if n.Len() != tt.wantPop {
				t.Errorf("Network len = %d, want %d", n.Len(), tt.wantPop)
			}
			if gen.Number != 1 {
				t.Errorf("Generation number = %d, want 1", gen.Number)
			}
		})
	}
}

func TestEvolveStaticSelection(t *testing.T) {
	winner := textMeme(t, "fit meme")
	loser := textMeme(t, "unfit meme")
	also := textMeme(t, "middling meme")

	eval := &StaticEvaluator{Scores: map[uuid.UUID]float64{
		winner.ID: 0.9,
		also.ID:   0.5,
		loser.ID:  0.1,
	}}
	n := New(WithEvaluator(eval), WithMutationSeed(1))
	n.Add(winner)
	n.Add(loser)
	n.Add(also)

	gen, err := n.Evolve(context.Background())
	if err != nil {
		t.Fatalf("Evolve failed: %v", err)
	}
	if gen.Survivors != 1 {
		t.Fatalf("Expected 1 survivor of 3, got %d", gen.Survivors)
	}
	if gen.BestFitness != 0.9 {
		t.Errorf("Best fitness = %v, want 0.9", gen.BestFitness)
	}

	// The top-ranked meme keeps its ID; the loser is culled
	if _, ok := n.Get(winner.ID); !ok {
		t.Error("Winner should survive with its original ID")
	}
	if _, ok := n.Get(loser.ID); ok {
		t.Error("Loser should be culled")
	}

	// Clones carry fresh IDs
	for _, m := range n.Memes() {
		if m.ID != winner.ID && m.Fitness != 0 {
			t.Errorf("Clone should have reset fitness, got %v", m.Fitness)
		}
	}
}

func TestEvolveEvaluatorErrorLeavesPopulationUnchanged(t *testing.T) {
	n := New(WithEvaluator(failingEvaluator{}))
	a := textMeme(t, "alpha")
	b := textMeme(t, "beta")
	n.Add(a)
	n.Add(b)

	_, err := n.Evolve(context.Background())
	if err == nil {
		t.Fatal("Expected evaluator error to surface")
	}
	if n.Len() != 2 {
		t.Errorf("Population changed on failed cycle: len=%d", n.Len())
	}
	if _, ok := n.Get(a.ID); !ok {
		t.Error("Original meme lost on failed cycle")
	}
	if n.Generation() != 0 {
		t.Error("Generation counter advanced on failed cycle")
	}
}

func TestEvolveRespectsCancelledContext(t *testing.T) {
	n := New()
	n.Add(textMeme(t, "alpha"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := n.Evolve(ctx); err == nil {
		t.Error("Expected error from cancelled context")
	}
	if n.Generation() != 0 {
		t.Error("Generation advanced despite cancellation")
	}
}

func TestEvolveN(t *testing.T) {
	n := New(WithMutationSeed(5))
	for i := 0; i < 4; i++ {
		n.Add(textMeme(t, fmt.Sprintf("meme %d", i)))
	}

	gens, err := n.EvolveN(context.Background(), 3)
	if err != nil {
		t.Fatalf("EvolveN failed: %v", err)
	}
	if len(gens) != 3 {
		t.Fatalf("Expected 3 generations, got %d", len(gens))
	}
	for i, g := range gens {
		if g.Number != i+1 {
			t.Errorf("Generation %d has number %d", i, g.Number)
		}
	}
	if n.Generation() != 3 {
		t.Errorf("Network generation = %d, want 3", n.Generation())
	}
}

func TestMemesStableOrder(t *testing.T) {
	n := New()
	for i := 0; i < 5; i++ {
		n.Add(textMeme(t, fmt.Sprintf("meme %d", i)))
	}

	first := n.Memes()
	second := n.Memes()
	if len(first) != len(second) {
		t.Fatal("Inconsistent lengths")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatal("Memes() ordering is not stable")
		}
	}
}

type captureRecorder struct {
	gens []Generation
}

func (r *captureRecorder) RecordGeneration(gen Generation) error {
	r.gens = append(r.gens, gen)
	return nil
}

func TestEvolveRecordsGeneration(t *testing.T) {
	rec := &captureRecorder{}
	n := New(WithRecorder(rec), WithMutationSeed(2))
	n.Add(textMeme(t, "alpha"))

	if _, err := n.Evolve(context.Background()); err != nil {
		t.Fatalf("Evolve failed: %v", err)
	}
	if len(rec.gens) != 1 {
		t.Fatalf("Expected 1 recorded generation, got %d", len(rec.gens))
	}
	if rec.gens[0].Number != 1 || rec.gens[0].Population != 2 {
		t.Errorf("Recorded generation mismatch: %+v", rec.gens[0])
	}
}
