// Package agent implements the UnifiedMemeticAgent: named text memes, a
// memory of goals and thoughts, a hierarchy of thinking strategies with
// usage statistics, energy budgeting, strategy evolution, and periodic
// background reflection.
package agent

import (
	"strings"
	"unicode"
)

// Conditions gate a strategy on agent state. An empty list means the
// dimension is unconstrained.
type Conditions struct {
	Emotions []string `json:"emotions,omitempty"`
	Goals    []string `json:"goals,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Strategy is one thinking strategy in the agent's hierarchy.
type Strategy struct {
	Name          string      `json:"name"`
	Level         int         `json:"level"` // 1..5
	TriggerTopics []string    `json:"trigger_topics,omitempty"`
	ActionPlan    string      `json:"action_plan"`
	Conditions    Conditions  `json:"conditions"`
	Children      []*Strategy `json:"children,omitempty"`
}

// lowEnergyFloor is the energy below which level-1 strategies refuse to run.
const lowEnergyFloor = 20

// NormalizeText lowercases and strips punctuation, including em/en dashes,
// so keyword matching sees bare words.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '—' || r == '–': // em/en dash
			b.WriteRune(' ')
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// KeywordInText reports whether the keyword appears as a word in the
// normalized text.
func KeywordInText(keyword, text string) bool {
	kw := NormalizeText(keyword)
	if kw == "" {
		return false
	}
	for _, word := range strings.Fields(NormalizeText(text)) {
		if word == kw {
			return true
		}
	}
	return false
}

// containsAny reports whether any list entry matches the value exactly
// (case-insensitive).
func containsAny(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

// anyKeywordIn reports whether any keyword appears in the thought.
func anyKeywordIn(keywords []string, thought string) bool {
	for _, kw := range keywords {
		if KeywordInText(kw, thought) {
			return true
		}
	}
	return false
}

// Applicable decides whether the strategy should fire for the given agent
// state and thought.
//
//   - Level-1 strategies refuse when energy is below the floor.
//   - Non-empty condition lists must contain the state emotion / goal /
//     a keyword present in the thought.
//   - Non-empty TriggerTopics require at least one topic in the thought.
func (s *Strategy) Applicable(emotion, goal, thought string, energy int) bool {
	if s.Level == 1 && energy < lowEnergyFloor {
		return false
	}
	if len(s.Conditions.Emotions) > 0 && !containsAny(s.Conditions.Emotions, emotion) {
		return false
	}
	if len(s.Conditions.Goals) > 0 && !containsAny(s.Conditions.Goals, goal) {
		return false
	}
	if len(s.Conditions.Keywords) > 0 && !anyKeywordIn(s.Conditions.Keywords, thought) {
		return false
	}
	if len(s.TriggerTopics) > 0 && !anyKeywordIn(s.TriggerTopics, thought) {
		return false
	}
	return true
}

// TopicsIn returns the trigger topics found in the thought.
func (s *Strategy) TopicsIn(thought string) []string {
	var found []string
	for _, topic := range s.TriggerTopics {
		if KeywordInText(topic, thought) {
			found = append(found, topic)
		}
	}
	return found
}

// clone deep-copies the strategy without children.
func (s *Strategy) clone() *Strategy {
	return &Strategy{
		Name:          s.Name,
		Level:         s.Level,
		TriggerTopics: append([]string(nil), s.TriggerTopics...),
		ActionPlan:    s.ActionPlan,
		Conditions: Conditions{
			Emotions: append([]string(nil), s.Conditions.Emotions...),
			Goals:    append([]string(nil), s.Conditions.Goals...),
			Keywords: append([]string(nil), s.Conditions.Keywords...),
		},
	}
}

// BuildHierarchy links strategies into a tree by level: level-1 strategies
// become roots and every level-N strategy (N >= 2) attaches to the first
// level-(N-1) strategy. Existing child links are reset first.
func BuildHierarchy(strategies []*Strategy) []*Strategy {
	for _, s := range strategies {
		s.Children = nil
	}

	byLevel := make(map[int][]*Strategy)
	for _, s := range strategies {
		byLevel[s.Level] = append(byLevel[s.Level], s)
	}

	var roots []*Strategy
	for _, s := range strategies {
		if s.Level <= 1 {
			roots = append(roots, s)
			continue
		}
		parents := byLevel[s.Level-1]
		if len(parents) == 0 {
			// No parent at the level below: promote to root
			roots = append(roots, s)
			continue
		}
		parent := parents[0]
		parent.Children = append(parent.Children, s)
	}
	return roots
}
