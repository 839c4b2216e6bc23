// Package network implements MemeNetwork: an in-process meme population with
// an evolutionary cycle (score, rank, cull, replicate, mutate).
package network

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"mos/internal/logging"
	"mos/internal/meme"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Evaluator scores a meme's fitness for one cycle.
type Evaluator interface {
	Score(ctx context.Context, m *meme.Meme) (float64, error)
}

// RandomEvaluator assigns uniform [0,1) fitness. This is the original
// selection semantics: survival is a lottery, structure emerges anyway.
type RandomEvaluator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomEvaluator builds a RandomEvaluator from a seed.
func NewRandomEvaluator(seed int64) *RandomEvaluator {
	return &RandomEvaluator{rng: rand.New(rand.NewSource(seed))}
}

// Score returns a uniform random fitness.
func (e *RandomEvaluator) Score(_ context.Context, _ *meme.Meme) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64(), nil
}

// StaticEvaluator scores memes from a fixed table. Unknown IDs score zero.
// Used for tests and manual curation.
type StaticEvaluator struct {
	Scores map[uuid.UUID]float64
}

// Score looks up the fixed score for the meme.
func (e *StaticEvaluator) Score(_ context.Context, m *meme.Meme) (float64, error) {
	return e.Scores[m.ID], nil
}

// Generation records one completed evolutionary cycle.
type Generation struct {
	Number      int
	Population  int
	Survivors   int
	BestFitness float64
	MeanFitness float64
	Elapsed     time.Duration
}

// Recorder persists generation records. The store satisfies this.
type Recorder interface {
	RecordGeneration(gen Generation) error
}

// Option configures a Network.
type Option func(*Network)

// WithEvaluator sets the fitness evaluator.
func WithEvaluator(e Evaluator) Option {
	return func(n *Network) { n.evaluator = e }
}

// WithSurvivorFraction sets the fraction of the ranked population that
// survives each cycle. Values outside (0, 1] are ignored.
func WithSurvivorFraction(f float64) Option {
	return func(n *Network) {
		if f > 0 && f <= 1 {
			n.survivorFraction = f
		}
	}
}

// WithWorkers bounds parallel fitness scoring.
func WithWorkers(w int) Option {
	return func(n *Network) {
		if w >= 1 {
			n.workers = w
		}
	}
}

// WithRecorder attaches a generation recorder.
func WithRecorder(r Recorder) Option {
	return func(n *Network) { n.recorder = r }
}

// WithMutationSeed seeds the rng used for clone mutation.
func WithMutationSeed(seed int64) Option {
	return func(n *Network) { n.rng = rand.New(rand.NewSource(seed)) }
}

// Network is a guarded meme population.
type Network struct {
	mu               sync.RWMutex
	memes            map[uuid.UUID]*meme.Meme
	generation       int
	evaluator        Evaluator
	survivorFraction float64
	workers          int
	recorder         Recorder
	rng              *rand.Rand
}

// New builds an empty network. Defaults: random evaluator, top-half
// survival, 4 scoring workers.
func New(opts ...Option) *Network {
	n := &Network{
		memes:            make(map[uuid.UUID]*meme.Meme),
		evaluator:        NewRandomEvaluator(time.Now().UnixNano()),
		survivorFraction: 0.5,
		workers:          4,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Add inserts a meme into the population.
func (n *Network) Add(m *meme.Meme) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.memes[m.ID] = m
	logging.NetworkDebug("added %s meme %s (population=%d)", m.Kind, m.ID, len(n.memes))
}

// Remove deletes a meme by ID. Removing an absent ID is a no-op.
func (n *Network) Remove(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.memes, id)
}

// Get returns the meme with the given ID.
func (n *Network) Get(id uuid.UUID) (*meme.Meme, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m, ok := n.memes[id]
	return m, ok
}

// Len returns the population size.
func (n *Network) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.memes)
}

// Generation returns the number of completed cycles.
func (n *Network) Generation() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.generation
}

// Memes returns the population in a stable order: created metadata
// timestamp first, ID as tiebreak.
func (n *Network) Memes() []*meme.Meme {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]*meme.Meme, 0, len(n.memes))
	for _, m := range n.memes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].Metadata["created"], out[j].Metadata["created"]
		if ci != cj {
			return ci < cj
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// survivorCount mirrors the original integer semantics: floor(n*fraction)
// with a minimum of one survivor.
func (n *Network) survivorCount(population int) int {
	count := int(float64(population) * n.survivorFraction)
	if count < 1 {
		count = 1
	}
	return count
}

// Evolve runs one evolutionary cycle:
//
//  1. Score every meme in parallel via the evaluator.
//  2. Rank descending by fitness (ID tiebreak for determinism).
//  3. Cull to survivors.
//  4. Every survivor replicates; each clone mutates.
//  5. Population = survivors + clones.
//
// An evaluator error aborts the cycle with the population unchanged.
// An empty population is a no-op returning a zero Generation.
func (n *Network) Evolve(ctx context.Context) (Generation, error) {
	timer := logging.StartTimer(logging.CategoryNetwork, "Evolve")
	defer timer.Stop()
	start := time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.memes) == 0 {
		logging.NetworkDebug("evolve on empty population: no-op")
		return Generation{}, nil
	}

	population := make([]*meme.Meme, 0, len(n.memes))
	for _, m := range n.memes {
		population = append(population, m)
	}

	// Score in parallel, bounded by the worker count. Scores land in a
	// side table so a failed cycle never leaves partial fitness writes.
	scores := make([]float64, len(population))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)
	for i, m := range population {
		g.Go(func() error {
			score, err := n.evaluator.Score(gctx, m)
			if err != nil {
				return fmt.Errorf("score meme %s: %w", m.ID, err)
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.Get(logging.CategoryNetwork).Error("evolve aborted: %v", err)
		return Generation{}, fmt.Errorf("evolution cycle aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Generation{}, fmt.Errorf("evolution cycle aborted: %w", err)
	}

	var sum float64
	for i, m := range population {
		m.Fitness = scores[i]
		sum += scores[i]
	}

	sort.Slice(population, func(i, j int) bool {
		if population[i].Fitness != population[j].Fitness {
			return population[i].Fitness > population[j].Fitness
		}
		return population[i].ID.String() < population[j].ID.String()
	})

	survivorN := n.survivorCount(len(population))
	survivors := population[:survivorN]

	next := make(map[uuid.UUID]*meme.Meme, survivorN*2)
	for _, s := range survivors {
		next[s.ID] = s
	}
	for _, s := range survivors {
		clone, err := s.Replicate()
		if err != nil {
			return Generation{}, fmt.Errorf("replicate survivor %s: %w", s.ID, err)
		}
		if err := clone.Mutate(n.rng); err != nil {
			return Generation{}, fmt.Errorf("mutate clone of %s: %w", s.ID, err)
		}
		next[clone.ID] = clone
	}

	n.memes = next
	n.generation++

	gen := Generation{
		Number:      n.generation,
		Population:  len(next),
		Survivors:   survivorN,
		BestFitness: population[0].Fitness,
		MeanFitness: sum / float64(len(population)),
		Elapsed:     time.Since(start),
	}

	logging.Network("generation %d: population=%d survivors=%d best=%.4f mean=%.4f elapsed=%v",
		gen.Number, gen.Population, gen.Survivors, gen.BestFitness, gen.MeanFitness, gen.Elapsed)

	if n.recorder != nil {
		if err := n.recorder.RecordGeneration(gen); err != nil {
			// Recording is best effort; the cycle itself succeeded.
			logging.Get(logging.CategoryNetwork).Warn("failed to record generation %d: %v", gen.Number, err)
		}
	}

	return gen, nil
}

// EvolveN runs n cycles, honoring ctx cancellation between cycles.
func (n *Network) EvolveN(ctx context.Context, cycles int) ([]Generation, error) {
	gens := make([]Generation, 0, cycles)
	for i := 0; i < cycles; i++ {
		if err := ctx.Err(); err != nil {
			return gens, fmt.Errorf("stopped after %d cycles: %w", i, err)
		}
		gen, err := n.Evolve(ctx)
		if err != nil {
			return gens, err
		}
		gens = append(gens, gen)
	}
	return gens, nil
}
