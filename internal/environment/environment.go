package environment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"mos/internal/llm"
	"mos/internal/logging"
)

// EnvState is the environment's own disposition, distinct from the
// agent's: focus and energy are continuous here.
type EnvState struct {
	Emotion   string  `json:"emotion"`
	Focus     float64 `json:"focus"`
	Energy    float64 `json:"energy"`
	MetaState string  `json:"meta_state"`
}

// ActiveMeme is a named meme competing for the environment's attention.
// Niche is the focus band in which it activates.
type ActiveMeme struct {
	Name  string  `json:"name"`
	Niche float64 `json:"niche"`
}

// Focus and energy bounds.
const (
	focusMin  = 0.1
	focusMax  = 0.9
	energyMin = 0.1
)

// Environment drives the resonance loop: each Handle call adjusts
// focus, assembles the agent-state system prompt, and completes through
// the LLM client.
type Environment struct {
	mu       sync.Mutex
	adapter  *Adapter
	complete llm.Client
	memes    []ActiveMeme
	state    EnvState
}

// New creates an environment around an adapter and a completion client.
func New(ad *Adapter, client llm.Client) *Environment {
	return &Environment{
		adapter:  ad,
		complete: client,
		state: EnvState{
			Emotion:   "curious",
			Focus:     0.5,
			Energy:    1.0,
			MetaState: "awake",
		},
	}
}

// Adapter returns the underlying adapter.
func (e *Environment) Adapter() *Adapter { return e.adapter }

// State returns a copy of the environment state.
func (e *Environment) State() EnvState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// AddMeme registers an active meme with its focus niche.
func (e *Environment) AddMeme(name string, niche float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memes = append(e.memes, ActiveMeme{Name: name, Niche: niche})
}

// Handle runs one resonance turn: focus shifts toward questions, the
// agent processes the input, and the completer sees the state prompt,
// the agent's context message, and the raw input.
func (e *Environment) Handle(ctx context.Context, input string) (string, error) {
	e.shiftFocus(input)

	ctxMsg, err := e.adapter.ProcessInput(ctx, input)
	if err != nil {
		return "", err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: e.statePrompt()},
		ctxMsg,
	}
	if e.rollInject() {
		if inj := e.adapter.InjectAutonomousThought(); inj != nil {
			messages = append(messages, *inj)
			logging.EnvironmentDebug("injected autonomous thought")
		}
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})

	reply, err := e.complete.CompleteMessages(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("environment: completion: %w", err)
	}

	e.decayEnergy()
	return reply, nil
}

// shiftFocus nudges focus up for questions and down otherwise.
func (e *Environment) shiftFocus(input string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if strings.Contains(input, "?") {
		e.state.Focus += 0.1
	} else {
		e.state.Focus -= 0.05
	}
	e.state.Focus = clamp(e.state.Focus, focusMin, focusMax)
}

// decayEnergy applies the per-turn energy cost.
func (e *Environment) decayEnergy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Energy *= 0.97
	if e.state.Energy < energyMin {
		e.state.Energy = energyMin
	}
}

func (e *Environment) rollInject() bool {
	e.adapter.mu.Lock()
	defer e.adapter.mu.Unlock()
	return e.adapter.rng.Float64() < 0.1
}

// statePrompt serializes the environment state for the model. Active
// memes are those whose niche meets the current focus, capped at three.
func (e *Environment) statePrompt() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var active []string
	for _, m := range e.memes {
		if m.Niche >= e.state.Focus {
			active = append(active, m.Name)
			if len(active) == 3 {
				break
			}
		}
	}

	payload := map[string]any{
		"emotion":      e.state.Emotion,
		"focus":        round2(e.state.Focus),
		"energy":       round2(e.state.Energy),
		"meta_state":   e.state.MetaState,
		"active_memes": active,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return "[UMA_STATE_JSON]" + string(data) + "[END_STATE]"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
