// Package environment weaves an agent's autonomous cognition into an
// LLM chat loop: user input feeds the agent, high-cost agent actions
// become buffered thoughts, and buffered thoughts surface as system
// messages when they resonate above the activation threshold.
package environment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"mos/internal/agent"
	"mos/internal/llm"
	"mos/internal/logging"
)

// BufferedThought is an agent action waiting to surface in the dialog.
// Priority derives from the action's energy cost.
type BufferedThought struct {
	Text     string
	Priority float64
	At       time.Time
}

// activationThreshold is the priority above which a buffered thought
// preempts raw input in the context message.
const activationThreshold = 0.7

// harvestCostFloor: only actions costing more than this become thoughts.
const harvestCostFloor = 3

// Adapter connects an agent to the chat loop: it buffers the agent's
// notable actions and turns them into dialog context.
type Adapter struct {
	agent *agent.Agent

	mu     sync.Mutex
	buffer []BufferedThought
	rng    *rand.Rand

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewAdapter wraps an agent.
func NewAdapter(a *agent.Agent) *Adapter {
	return &Adapter{
		agent: a,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Agent returns the wrapped agent.
func (ad *Adapter) Agent() *agent.Agent { return ad.agent }

// seedRNG fixes the random source, for tests.
func (ad *Adapter) seedRNG(seed int64) {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	ad.rng = rand.New(rand.NewSource(seed))
}

// ProcessInput runs the agent on the user input, harvests notable
// actions into the thought buffer, and returns a mode-formatted system
// message describing what the agent is doing with the input.
func (ad *Adapter) ProcessInput(ctx context.Context, input string) (llm.Message, error) {
	if err := ctx.Err(); err != nil {
		return llm.Message{}, err
	}
	res := ad.agent.Think("user: " + input)
	ad.harvest(res)

	state := ad.agent.State()
	mode := ad.responseMode(state.Emotion)
	text := ad.formatResponse(mode, input)
	logging.Environment("processed input (mode=%s, status=%s, buffered=%d)", mode, res.Status, ad.BufferLen())
	return llm.Message{Role: llm.RoleSystem, Content: text}, nil
}

// harvest buffers actions whose cost clears the floor.
func (ad *Adapter) harvest(res agent.ThinkResult) {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	for _, act := range res.Actions {
		if act.Cost <= harvestCostFloor {
			continue
		}
		ad.buffer = append(ad.buffer, BufferedThought{
			Text:     fmt.Sprintf("%s: %s", act.Strategy, act.Plan),
			Priority: float64(act.Cost) / 10,
			At:       time.Now(),
		})
	}
}

// responseMode picks how the adapter frames its context message.
func (ad *Adapter) responseMode(emotion string) string {
	switch emotion {
	case "anxious":
		return "challenge"
	case "calm":
		ad.mu.Lock()
		roll := ad.rng.Float64()
		ad.mu.Unlock()
		if roll > 0.7 {
			return "reflect"
		}
	}
	return "observe"
}

// formatResponse builds the context line. A buffered thought above the
// activation threshold is consumed in preference to the raw input.
func (ad *Adapter) formatResponse(mode, input string) string {
	subject := input
	if t, ok := ad.takeAboveThreshold(); ok {
		subject = t.Text
	}
	switch mode {
	case "challenge":
		return "Challenging: " + input
	case "reflect":
		return "Reflecting on: " + subject
	default:
		return "Observing: " + subject
	}
}

// takeAboveThreshold consumes the first buffered thought whose priority
// clears the activation threshold.
func (ad *Adapter) takeAboveThreshold() (BufferedThought, bool) {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	for i, t := range ad.buffer {
		if t.Priority > activationThreshold {
			ad.buffer = append(ad.buffer[:i], ad.buffer[i+1:]...)
			return t, true
		}
	}
	return BufferedThought{}, false
}

// InjectAutonomousThought consumes a random buffered thought as a
// system message, or returns nil when the buffer is empty.
func (ad *Adapter) InjectAutonomousThought() *llm.Message {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.buffer) == 0 {
		return nil
	}
	i := ad.rng.Intn(len(ad.buffer))
	t := ad.buffer[i]
	ad.buffer = append(ad.buffer[:i], ad.buffer[i+1:]...)
	return &llm.Message{
		Role:    llm.RoleSystem,
		Content: "Autonomous thought: " + t.Text,
	}
}

// BufferLen reports the number of buffered thoughts.
func (ad *Adapter) BufferLen() int {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	return len(ad.buffer)
}

// StartGenerator launches the autonomous thought generator: every 15 to
// 30 seconds, while the agent has energy to spare, run a reflection and
// harvest its actions.
func (ad *Adapter) StartGenerator() error {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.stopCh != nil {
		return fmt.Errorf("environment: generator already running")
	}
	ad.stopCh = make(chan struct{})
	ad.doneCh = make(chan struct{})
	go ad.generate(ad.stopCh, ad.doneCh)
	logging.Environment("autonomous thought generator started")
	return nil
}

func (ad *Adapter) generate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		ad.mu.Lock()
		gap := time.Duration(15+ad.rng.Intn(16)) * time.Second
		ad.mu.Unlock()

		select {
		case <-stop:
			return
		case <-time.After(gap):
		}

		if ad.agent.State().Energy <= 20 {
			continue
		}
		res := ad.agent.MixedReflection()
		ad.harvest(res)
		logging.EnvironmentDebug("generator reflected: %q (%d buffered)", res.Thought, ad.BufferLen())
	}
}

// Shutdown stops the generator and the agent's background thinker. Safe
// to call more than once.
func (ad *Adapter) Shutdown() {
	ad.mu.Lock()
	stop, done := ad.stopCh, ad.doneCh
	ad.stopCh, ad.doneCh = nil, nil
	ad.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	ad.agent.StopThinking()
	logging.Environment("adapter shut down")
}
