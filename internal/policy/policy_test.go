package policy

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"mos/internal/agent"
)

func testStrategies() []*agent.Strategy {
	return []*agent.Strategy{
		{Name: "observe", Level: 1, ActionPlan: "note"},
		{
			Name:          "analyze",
			Level:         2,
			TriggerTopics: []string{"problem", "error", "why"},
			ActionPlan:    "decompose",
			Conditions:    agent.Conditions{Emotions: []string{"curious", "focused"}},
		},
		{
			Name:          "synthesize",
			Level:         3,
			TriggerTopics: []string{"idea", "combine", "pattern"},
			ActionPlan:    "combine",
		},
	}
}

func TestKernelDerivesApplicable(t *testing.T) {
	e := NewEngine()
	state := agent.State{Emotion: "curious", Energy: 80}
	got, err := e.Applicable(state, "why does this error happen", testStrategies())
	if err != nil {
		t.Fatalf("Applicable: %v", err)
	}
	want := []string{"observe", "analyze"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("applicable = %v, want %v", got, want)
	}
}

func TestKernelEnergyGate(t *testing.T) {
	e := NewEngine()
	state := agent.State{Emotion: "curious", Energy: 10}
	got, err := e.Applicable(state, "why does this error happen", testStrategies())
	if err != nil {
		t.Fatalf("Applicable: %v", err)
	}
	// With the root gated out, nothing in its subtree can fire.
	if len(got) != 0 {
		t.Errorf("applicable = %v, want none below the energy floor", got)
	}
}

func TestKernelEmotionCondition(t *testing.T) {
	e := NewEngine()
	state := agent.State{Emotion: "bored", Energy: 80}
	got, err := e.Applicable(state, "why does this error happen", testStrategies())
	if err != nil {
		t.Fatalf("Applicable: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"observe"}) {
		t.Errorf("applicable = %v, want only observe for wrong emotion", got)
	}
}

func TestKernelDeepHierarchy(t *testing.T) {
	e := NewEngine()
	state := agent.State{Emotion: "curious", Energy: 80}
	got, err := e.Applicable(state, "why is there a pattern in this error", testStrategies())
	if err != nil {
		t.Fatalf("Applicable: %v", err)
	}
	want := []string{"observe", "analyze", "synthesize"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("applicable = %v, want full chain %v", got, want)
	}
}

// TestAgreementWithNativeMatcher runs both matchers over a grid of
// states and thoughts and requires identical selections.
func TestAgreementWithNativeMatcher(t *testing.T) {
	e := NewEngine()
	strategies := testStrategies()
	roots := agent.BuildHierarchy(strategies)

	native := func(state agent.State, thought string) []string {
		var out []string
		var walk func(nodes []*agent.Strategy)
		walk = func(nodes []*agent.Strategy) {
			for _, s := range nodes {
				if !s.Applicable(state.Emotion, state.Goal, thought, state.Energy) {
					continue
				}
				out = append(out, s.Name)
				walk(s.Children)
			}
		}
		walk(roots)
		return out
	}

	states := []agent.State{
		{Emotion: "curious", Energy: 100},
		{Emotion: "curious", Energy: 19},
		{Emotion: "focused", Energy: 50},
		{Emotion: "anxious", Energy: 50},
	}
	thoughts := []string{
		"nothing special today",
		"why does the build fail",
		"there is a problem with the parser",
		"a new idea: combine the pattern with the error",
		"",
	}
	for _, state := range states {
		for _, thought := range thoughts {
			want := native(state, thought)
			got, err := e.Applicable(state, thought, strategies)
			if err != nil {
				t.Fatalf("Applicable(%+v, %q): %v", state, thought, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("state %+v thought %q: kernel %v, native %v", state, thought, got, want)
			}
		}
	}
}

func TestKernelQueryAndRetract(t *testing.T) {
	k := NewKernel()
	k.Assert(Fact{Predicate: "agent_emotion", Args: []any{"curious"}})
	facts, err := k.Query("agent_emotion")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(facts) != 1 || facts[0].Args[0] != "curious" {
		t.Errorf("facts = %v", facts)
	}

	k.RetractAll()
	facts, err = k.Query("agent_emotion")
	if err != nil {
		t.Fatalf("Query after retract: %v", err)
	}
	if len(facts) != 0 {
		t.Errorf("facts after retract = %v", facts)
	}
}

func TestSetRulesBadProgram(t *testing.T) {
	k := NewKernel()
	k.SetRules("applicable(X :- broken")
	if err := k.Rebuild(); err == nil {
		t.Error("expected parse error for malformed rules")
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.mg")

	// Custom rules: everything with a strategy fact is applicable.
	custom := `
Decl applicable(Name).
applicable(Name) :- strategy(Name, _).
`
	if err := os.WriteFile(path, []byte(custom), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	k := NewKernel()
	w, err := NewWatcher(path, k)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// Start loads the file synchronously.
	k.Assert(Fact{Predicate: "strategy", Args: []any{"anything", 1}})
	facts, err := k.Query("applicable")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("custom rules not active: %v", facts)
	}

	// A malformed rewrite must keep the working rules.
	if err := os.WriteFile(path, []byte("broken :-"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	time.Sleep(time.Second)
	facts, err = k.Query("applicable")
	if err != nil || len(facts) != 1 {
		t.Errorf("previous rules lost after bad reload: %v, %v", facts, err)
	}
}
