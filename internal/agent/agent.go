package agent

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"mos/internal/logging"
	"mos/internal/meme"
)

// State is the agent's mutable disposition.
type State struct {
	Emotion string `json:"emotion"`
	Goal    string `json:"goal"`
	Energy  int    `json:"energy"`
}

// Memory holds the agent's remembered goals, thought history, and a
// free-form activity log.
type Memory struct {
	Goals    []string `json:"goals"`
	Thoughts []string `json:"thoughts"`
	Log      []string `json:"log"`
}

// StrategyStats tracks usage outcomes for one strategy by name.
type StrategyStats struct {
	Uses    int `json:"uses"`
	Success int `json:"success"`
	Fail    int `json:"fail"`
}

// Action records one strategy firing during a Think cycle.
type Action struct {
	Strategy string   `json:"strategy"`
	Plan     string   `json:"plan"`
	Topics   []string `json:"topics,omitempty"`
	Cost     int      `json:"cost"`
}

// Think cycle statuses.
const (
	StatusProcessed  = "processed"
	StatusNoStrategy = "no_strategy_found"
	StatusExhausted  = "exhausted"
)

// ThinkResult is the outcome of one Think cycle.
type ThinkResult struct {
	Thought     string   `json:"thought"`
	Status      string   `json:"status"`
	Actions     []Action `json:"actions"`
	EnergyDrain int      `json:"energy_drain"`
	Energy      int      `json:"energy"`
}

// Persister saves agent state between sessions. The SQLite store
// satisfies it.
type Persister interface {
	SaveAgentSnapshot(memes map[string]*meme.Meme, mem Memory, stats map[string]StrategyStats) error
}

// Matcher selects applicable strategy names for a state and thought. The
// policy engine satisfies it; when unset or failing the agent falls back
// to the native condition checks.
type Matcher interface {
	Applicable(state State, thought string, strategies []*Strategy) ([]string, error)
}

// Agent is a unified memetic agent. All methods are safe for concurrent
// use.
type Agent struct {
	mu sync.Mutex

	name       string
	state      State
	memes      map[string]*meme.Meme
	memory     Memory
	strategies []*Strategy
	roots      []*Strategy
	stats      map[string]*StrategyStats

	rng       *rand.Rand
	persister Persister
	matcher   Matcher

	autoPersist bool
	reflectGap  time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures an Agent.
type Option func(*Agent)

// WithSeed fixes the random source, for reproducible runs.
func WithSeed(seed int64) Option {
	return func(a *Agent) { a.rng = rand.New(rand.NewSource(seed)) }
}

// WithPersister attaches a snapshot sink.
func WithPersister(p Persister) Option {
	return func(a *Agent) { a.persister = p }
}

// WithMatcher attaches a strategy matcher that overrides the native
// condition checks.
func WithMatcher(m Matcher) Option {
	return func(a *Agent) { a.matcher = m }
}

// WithAutoPersist snapshots state after every mutating operation when a
// persister is attached.
func WithAutoPersist(on bool) Option {
	return func(a *Agent) { a.autoPersist = on }
}

// WithReflectInterval sets the background thinking cadence.
func WithReflectInterval(d time.Duration) Option {
	return func(a *Agent) { a.reflectGap = d }
}

// WithEnergy sets the starting energy.
func WithEnergy(energy int) Option {
	return func(a *Agent) { a.state.Energy = energy }
}

// New creates an agent with the default strategy set.
func New(name string, opts ...Option) *Agent {
	a := &Agent{
		name:       name,
		state:      State{Emotion: "curious", Energy: 100},
		memes:      make(map[string]*meme.Meme),
		stats:      make(map[string]*StrategyStats),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		reflectGap: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.strategies = defaultStrategies()
	a.roots = BuildHierarchy(a.strategies)
	return a
}

func defaultStrategies() []*Strategy {
	return []*Strategy{
		{
			Name:       "observe",
			Level:      1,
			ActionPlan: "note what is happening",
		},
		{
			Name:          "analyze",
			Level:         2,
			TriggerTopics: []string{"problem", "error", "why"},
			ActionPlan:    "break the situation into parts",
			Conditions:    Conditions{Emotions: []string{"curious", "focused"}},
		},
		{
			Name:          "synthesize",
			Level:         3,
			TriggerTopics: []string{"idea", "combine", "pattern"},
			ActionPlan:    "combine observations into a new idea",
		},
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// State returns a copy of the current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetEmotion updates the emotional state.
func (a *Agent) SetEmotion(emotion string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Emotion = emotion
	a.log("emotion -> " + emotion)
}

// SetGoal updates the current goal and remembers it.
func (a *Agent) SetGoal(goal string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Goal = goal
	a.rememberGoalLocked(goal)
	a.persistLocked()
}

// RememberGoal adds a goal to memory without making it current.
func (a *Agent) RememberGoal(goal string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rememberGoalLocked(goal)
	a.persistLocked()
}

func (a *Agent) rememberGoalLocked(goal string) {
	for _, g := range a.memory.Goals {
		if g == goal {
			return
		}
	}
	a.memory.Goals = append(a.memory.Goals, goal)
	a.log("goal remembered: " + goal)
}

// AddMeme stores a named text meme.
func (a *Agent) AddMeme(name, text string) (*meme.Meme, error) {
	m, err := meme.New(meme.KindText, text)
	if err != nil {
		return nil, err
	}
	m.Metadata["name"] = name
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memes[name] = m
	a.log("meme added: " + name)
	a.persistLocked()
	return m, nil
}

// GetMeme returns the named meme, or nil.
func (a *Agent) GetMeme(name string) *meme.Meme {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memes[name]
}

// MemeNames returns the stored meme names, sorted.
func (a *Agent) MemeNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.memes))
	for name := range a.memes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MutateMeme replicates the named text meme with a " (revised)" suffix
// and stores the revision under the same name.
func (a *Agent) MutateMeme(name string) (*meme.Meme, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.memes[name]
	if !ok {
		return nil, fmt.Errorf("agent: no meme named %q", name)
	}
	text, ok := m.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("agent: meme %q is not text", name)
	}
	clone, err := m.Replicate()
	if err != nil {
		return nil, fmt.Errorf("agent: revise meme %q: %w", name, err)
	}
	clone.Payload = text + " (revised)"
	a.memes[name] = clone
	a.log("meme mutated: " + name)
	a.persistLocked()
	return clone, nil
}

// Memory returns a copy of the agent's memory.
func (a *Agent) Memory() Memory {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Memory{
		Goals:    append([]string(nil), a.memory.Goals...),
		Thoughts: append([]string(nil), a.memory.Thoughts...),
		Log:      append([]string(nil), a.memory.Log...),
	}
}

// Stats returns a copy of the per-strategy usage statistics.
func (a *Agent) Stats() map[string]StrategyStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]StrategyStats, len(a.stats))
	for name, st := range a.stats {
		out[name] = *st
	}
	return out
}

// Strategies returns the flat strategy list.
func (a *Agent) Strategies() []*Strategy {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Strategy(nil), a.strategies...)
}

// RestoreMemory replaces the agent's memory, used when loading a
// persisted snapshot.
func (a *Agent) RestoreMemory(mem Memory) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memory = mem
}

// RestoreStats replaces the strategy statistics.
func (a *Agent) RestoreStats(stats map[string]StrategyStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = make(map[string]*StrategyStats, len(stats))
	for name, st := range stats {
		copied := st
		a.stats[name] = &copied
	}
}

// RestoreMemes replaces the named meme set.
func (a *Agent) RestoreMemes(memes map[string]*meme.Meme) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memes = make(map[string]*meme.Meme, len(memes))
	for name, m := range memes {
		a.memes[name] = m
	}
}

// Think runs one cognitive cycle over the thought: baseline energy
// drain, strategy selection down the hierarchy, and per-strategy action
// costs. Strategy outcomes count as success when the thought touches a
// remembered goal.
func (a *Agent) Think(thought string) ThinkResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.memory.Thoughts = append(a.memory.Thoughts, thought)
	a.log("thought: " + thought)
	logging.Agent("%s thinking: %s", a.name, thought)

	drain := a.rng.Intn(3) + 1
	a.state.Energy -= drain
	if a.state.Energy < 0 {
		a.state.Energy = 0
	}

	result := ThinkResult{Thought: thought, EnergyDrain: drain}

	if a.state.Energy == 0 {
		result.Status = StatusExhausted
		result.Energy = 0
		a.log("exhausted")
		a.persistLocked()
		return result
	}

	applicable := a.applicableLocked(thought)
	success := a.touchesGoalLocked(thought)

	for _, s := range applicable {
		st := a.statsFor(s.Name)
		st.Uses++

		cost := s.Level * 2
		if a.state.Energy < cost {
			st.Fail++
			a.log("skipped " + s.Name + ": low energy")
			continue
		}
		a.state.Energy -= cost

		if success {
			st.Success++
		} else {
			st.Fail++
		}

		result.Actions = append(result.Actions, Action{
			Strategy: s.Name,
			Plan:     s.ActionPlan,
			Topics:   s.TopicsIn(thought),
			Cost:     cost,
		})
		a.log("fired " + s.Name)
		logging.AgentDebug("%s fired %s (cost %d, energy %d)", a.name, s.Name, cost, a.state.Energy)
	}

	if len(result.Actions) > 0 {
		result.Status = StatusProcessed
	} else {
		result.Status = StatusNoStrategy
	}
	result.Energy = a.state.Energy
	a.persistLocked()
	return result
}

// applicableLocked walks the hierarchy: children are only considered
// under an applicable parent.
func (a *Agent) applicableLocked(thought string) []*Strategy {
	if a.matcher != nil {
		names, err := a.matcher.Applicable(a.state, thought, a.strategies)
		if err == nil {
			return a.byNames(names)
		}
		logging.AgentDebug("matcher failed, falling back: %v", err)
	}

	var out []*Strategy
	var walk func(nodes []*Strategy)
	walk = func(nodes []*Strategy) {
		for _, s := range nodes {
			if !s.Applicable(a.state.Emotion, a.state.Goal, thought, a.state.Energy) {
				continue
			}
			out = append(out, s)
			walk(s.Children)
		}
	}
	walk(a.roots)
	return out
}

func (a *Agent) byNames(names []string) []*Strategy {
	var out []*Strategy
	for _, name := range names {
		for _, s := range a.strategies {
			if s.Name == name {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func (a *Agent) touchesGoalLocked(thought string) bool {
	for _, goal := range a.memory.Goals {
		for _, word := range strings.Fields(NormalizeText(goal)) {
			if KeywordInText(word, thought) {
				return true
			}
		}
	}
	return false
}

func (a *Agent) statsFor(name string) *StrategyStats {
	st, ok := a.stats[name]
	if !ok {
		st = &StrategyStats{}
		a.stats[name] = st
	}
	return st
}

func (a *Agent) log(entry string) {
	a.memory.Log = append(a.memory.Log, time.Now().UTC().Format(time.RFC3339)+" "+entry)
}

func (a *Agent) persistLocked() {
	if !a.autoPersist || a.persister == nil {
		return
	}
	memes := make(map[string]*meme.Meme, len(a.memes))
	for name, m := range a.memes {
		memes[name] = m
	}
	mem := Memory{
		Goals:    append([]string(nil), a.memory.Goals...),
		Thoughts: append([]string(nil), a.memory.Thoughts...),
		Log:      append([]string(nil), a.memory.Log...),
	}
	stats := make(map[string]StrategyStats, len(a.stats))
	for name, st := range a.stats {
		stats[name] = *st
	}
	if err := a.persister.SaveAgentSnapshot(memes, mem, stats); err != nil {
		logging.AgentDebug("snapshot failed: %v", err)
	}
}

// Persist forces a snapshot regardless of the auto-persist setting.
func (a *Agent) Persist() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.persister == nil {
		return fmt.Errorf("agent: no persister attached")
	}
	memes := make(map[string]*meme.Meme, len(a.memes))
	for name, m := range a.memes {
		memes[name] = m
	}
	stats := make(map[string]StrategyStats, len(a.stats))
	for name, st := range a.stats {
		stats[name] = *st
	}
	return a.persister.SaveAgentSnapshot(memes, a.memory, stats)
}
