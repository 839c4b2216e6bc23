package policy

import (
	"strings"

	"mos/internal/agent"
	"mos/internal/logging"
)

// Engine adapts the kernel to agent.Matcher.
type Engine struct {
	kernel *Kernel
}

// NewEngine creates an engine with the embedded rules.
func NewEngine() *Engine {
	return &Engine{kernel: NewKernel()}
}

// Kernel exposes the underlying kernel, for rules reload.
func (e *Engine) Kernel() *Kernel { return e.kernel }

// Applicable derives the applicable strategy names for the state and
// thought. Results keep the input strategy order.
func (e *Engine) Applicable(state agent.State, thought string, strategies []*agent.Strategy) ([]string, error) {
	timer := logging.StartTimer(logging.CategoryPolicy, "Applicable")
	defer timer.Stop()

	e.kernel.RetractAll()
	e.kernel.Assert(stateFacts(state, thought)...)
	e.kernel.Assert(strategyFacts(strategies)...)

	derived, err := e.kernel.Query("applicable")
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(derived))
	for _, f := range derived {
		if len(f.Args) == 1 {
			if name, ok := f.Args[0].(string); ok {
				set[name] = true
			}
		}
	}

	var out []string
	for _, s := range strategies {
		if set[s.Name] {
			out = append(out, s.Name)
		}
	}
	logging.PolicyDebug("applicable: %d of %d strategies", len(out), len(strategies))
	return out, nil
}

func stateFacts(state agent.State, thought string) []Fact {
	facts := []Fact{
		{Predicate: "agent_emotion", Args: []any{strings.ToLower(state.Emotion)}},
		{Predicate: "agent_goal", Args: []any{strings.ToLower(state.Goal)}},
		{Predicate: "agent_energy", Args: []any{state.Energy}},
		{Predicate: "thought_text", Args: []any{thought}},
	}
	seen := make(map[string]bool)
	for _, word := range strings.Fields(agent.NormalizeText(thought)) {
		if seen[word] {
			continue
		}
		seen[word] = true
		facts = append(facts, Fact{Predicate: "thought_word", Args: []any{word}})
	}
	return facts
}

func strategyFacts(strategies []*agent.Strategy) []Fact {
	var facts []Fact

	byLevel := make(map[int][]*agent.Strategy)
	for _, s := range strategies {
		byLevel[s.Level] = append(byLevel[s.Level], s)
	}

	for _, s := range strategies {
		facts = append(facts, Fact{Predicate: "strategy", Args: []any{s.Name, s.Level}})

		// The hierarchy mirrors agent.BuildHierarchy: level-1 and
		// orphaned strategies are roots, everything else hangs off the
		// first strategy one level up.
		parents := byLevel[s.Level-1]
		if s.Level <= 1 || len(parents) == 0 {
			facts = append(facts, Fact{Predicate: "strategy_root", Args: []any{s.Name}})
		} else {
			facts = append(facts, Fact{Predicate: "strategy_parent", Args: []any{s.Name, parents[0].Name}})
		}

		if len(s.TriggerTopics) > 0 {
			facts = append(facts, Fact{Predicate: "has_topics", Args: []any{s.Name}})
			for _, topic := range s.TriggerTopics {
				facts = append(facts, Fact{
					Predicate: "strategy_topic",
					Args:      []any{s.Name, agent.NormalizeText(topic)},
				})
			}
		}
		if len(s.Conditions.Emotions) > 0 {
			facts = append(facts, Fact{Predicate: "has_emotion_condition", Args: []any{s.Name}})
			for _, emotion := range s.Conditions.Emotions {
				facts = append(facts, Fact{
					Predicate: "requires_emotion",
					Args:      []any{s.Name, strings.ToLower(emotion)},
				})
			}
		}
		if len(s.Conditions.Goals) > 0 {
			facts = append(facts, Fact{Predicate: "has_goal_condition", Args: []any{s.Name}})
			for _, goal := range s.Conditions.Goals {
				facts = append(facts, Fact{
					Predicate: "requires_goal",
					Args:      []any{s.Name, strings.ToLower(goal)},
				})
			}
		}
		if len(s.Conditions.Keywords) > 0 {
			facts = append(facts, Fact{Predicate: "has_keyword_condition", Args: []any{s.Name}})
			for _, kw := range s.Conditions.Keywords {
				facts = append(facts, Fact{
					Predicate: "requires_keyword",
					Args:      []any{s.Name, agent.NormalizeText(kw)},
				})
			}
		}
	}
	return facts
}
