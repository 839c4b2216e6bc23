package agent

import (
	"strings"
	"sync"
	"testing"
	"time"

	"mos/internal/meme"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	return New("tester", WithSeed(42))
}

func TestNormalizeText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Hello, World!", "hello world"},
		{"why? because.", "why because"},
		{"a—b", "a b"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeText(tc.in); got != tc.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKeywordInText(t *testing.T) {
	if !KeywordInText("problem", "I found a Problem, fix it") {
		t.Error("expected match for whole word ignoring case and punctuation")
	}
	if KeywordInText("problem", "problematic code") {
		t.Error("substring must not match")
	}
	if KeywordInText("", "anything") {
		t.Error("empty keyword must not match")
	}
}

func TestStrategyApplicableEnergyGate(t *testing.T) {
	s := &Strategy{Name: "observe", Level: 1}
	if s.Applicable("curious", "", "anything", 19) {
		t.Error("level-1 strategy fired below the energy floor")
	}
	if !s.Applicable("curious", "", "anything", 20) {
		t.Error("level-1 strategy refused at the floor")
	}
	deep := &Strategy{Name: "analyze", Level: 2}
	if !deep.Applicable("curious", "", "anything", 5) {
		t.Error("energy gate must only apply to level-1 strategies")
	}
}

func TestStrategyApplicableConditions(t *testing.T) {
	s := &Strategy{
		Name:          "analyze",
		Level:         2,
		TriggerTopics: []string{"error"},
		Conditions: Conditions{
			Emotions: []string{"curious"},
			Keywords: []string{"fix"},
		},
	}
	if !s.Applicable("curious", "", "fix this error now", 50) {
		t.Error("expected applicable with all conditions met")
	}
	if s.Applicable("bored", "", "fix this error now", 50) {
		t.Error("wrong emotion must block")
	}
	if s.Applicable("curious", "", "fix this now", 50) {
		t.Error("missing trigger topic must block")
	}
	if s.Applicable("curious", "", "note this error", 50) {
		t.Error("missing condition keyword must block")
	}
}

func TestBuildHierarchy(t *testing.T) {
	a := &Strategy{Name: "a", Level: 1}
	b := &Strategy{Name: "b", Level: 2}
	c := &Strategy{Name: "c", Level: 3}
	orphan := &Strategy{Name: "orphan", Level: 5}

	roots := BuildHierarchy([]*Strategy{a, b, c, orphan})
	if len(roots) != 2 {
		t.Fatalf("got %d roots, want 2 (level-1 plus promoted orphan)", len(roots))
	}
	if len(a.Children) != 1 || a.Children[0] != b {
		t.Errorf("level-2 strategy not attached to level-1 parent")
	}
	if len(b.Children) != 1 || b.Children[0] != c {
		t.Errorf("level-3 strategy not attached to level-2 parent")
	}
}

func TestThinkDrainsEnergy(t *testing.T) {
	a := newTestAgent(t)
	before := a.State().Energy
	res := a.Think("nothing in particular")
	if res.EnergyDrain < 1 || res.EnergyDrain > 3 {
		t.Errorf("drain %d outside [1,3]", res.EnergyDrain)
	}
	after := a.State().Energy
	if after >= before {
		t.Errorf("energy did not drop: %d -> %d", before, after)
	}
}

func TestThinkFiresStrategiesAndTracksStats(t *testing.T) {
	a := newTestAgent(t)
	a.SetGoal("solve the error")

	res := a.Think("why does this error happen")
	if res.Status != StatusProcessed {
		t.Fatalf("status = %q, want %q (actions: %v)", res.Status, StatusProcessed, res.Actions)
	}

	var fired []string
	for _, act := range res.Actions {
		fired = append(fired, act.Strategy)
		if act.Cost == 0 {
			t.Errorf("action %s has zero cost", act.Strategy)
		}
	}
	if !contains(fired, "observe") || !contains(fired, "analyze") {
		t.Errorf("fired = %v, want observe and analyze", fired)
	}

	stats := a.Stats()
	st := stats["analyze"]
	if st.Uses != 1 || st.Success != 1 {
		t.Errorf("analyze stats = %+v, want one successful use", st)
	}
}

func TestThinkNoStrategy(t *testing.T) {
	a := New("gated", WithSeed(7), WithEnergy(10))
	res := a.Think("plain musing")
	if res.Status != StatusNoStrategy {
		t.Errorf("status = %q, want %q below the level-1 energy floor", res.Status, StatusNoStrategy)
	}
}

func TestThinkChildrenRequireApplicableParent(t *testing.T) {
	// Below the floor the level-1 root cannot fire, so its subtree must
	// stay silent even when the thought matches the child's topics.
	a := New("gated", WithSeed(7), WithEnergy(15))
	a.SetEmotion("curious")
	res := a.Think("why is this error a problem")
	for _, act := range res.Actions {
		if act.Strategy == "analyze" {
			t.Error("child strategy fired under an inapplicable parent")
		}
	}
}

func TestMemeLifecycle(t *testing.T) {
	a := newTestAgent(t)
	if _, err := a.AddMeme("motto", "keep it simple"); err != nil {
		t.Fatalf("AddMeme: %v", err)
	}
	m := a.GetMeme("motto")
	if m == nil {
		t.Fatal("GetMeme returned nil")
	}
	if m.Metadata["name"] != "motto" {
		t.Errorf("metadata name = %q", m.Metadata["name"])
	}

	rev, err := a.MutateMeme("motto")
	if err != nil {
		t.Fatalf("MutateMeme: %v", err)
	}
	if got := rev.Payload.(string); !strings.HasSuffix(got, " (revised)") {
		t.Errorf("payload = %q, want (revised) suffix", got)
	}
	if rev.ID == m.ID {
		t.Error("revision kept the original ID")
	}
	if _, err := a.MutateMeme("missing"); err == nil {
		t.Error("expected error for unknown meme")
	}
}

func TestEvolveStrategies(t *testing.T) {
	a := newTestAgent(t)
	a.stats["analyze"] = &StrategyStats{Uses: 5, Success: 4, Fail: 1}
	a.stats["observe"] = &StrategyStats{Uses: 5, Success: 1, Fail: 4}
	a.stats["synthesize"] = &StrategyStats{Uses: 2, Success: 2}

	evolved := a.EvolveStrategies()
	if len(evolved) != 1 {
		t.Fatalf("got %d evolved strategies, want 1", len(evolved))
	}
	v := evolved[0]
	if !strings.HasPrefix(v.Name, "analyze v") {
		t.Errorf("name = %q, want analyze v<n>", v.Name)
	}
	if v.Level != 3 {
		t.Errorf("level = %d, want 3", v.Level)
	}
	if !contains(v.TriggerTopics, "growth") || !contains(v.TriggerTopics, "learning") {
		t.Errorf("topics = %v, want growth and learning added", v.TriggerTopics)
	}
	if !strings.HasSuffix(v.ActionPlan, " (evolved)") {
		t.Errorf("plan = %q", v.ActionPlan)
	}
	if len(a.Strategies()) != 4 {
		t.Errorf("strategy list not extended")
	}
}

func TestEvolveStrategiesLevelCap(t *testing.T) {
	a := newTestAgent(t)
	a.strategies = append(a.strategies, &Strategy{Name: "apex", Level: 5})
	a.stats["apex"] = &StrategyStats{Uses: 10, Success: 9, Fail: 1}
	for _, v := range a.EvolveStrategies() {
		if strings.HasPrefix(v.Name, "apex") && v.Level > 5 {
			t.Errorf("level %d exceeds cap", v.Level)
		}
	}
}

func TestReflectionUsesPools(t *testing.T) {
	a := newTestAgent(t)
	res := a.AutoReflect()
	if !contains(autoThoughts, res.Thought) {
		t.Errorf("auto reflection picked %q outside the pool", res.Thought)
	}
	res = a.MetaReflect()
	if !contains(metaThoughts, res.Thought) {
		t.Errorf("meta reflection picked %q outside the pool", res.Thought)
	}
	res = a.MixedReflection()
	if !contains(autoThoughts, res.Thought) && !contains(metaThoughts, res.Thought) {
		t.Errorf("mixed reflection picked %q outside both pools", res.Thought)
	}
}

func TestBackgroundThinking(t *testing.T) {
	a := New("bg", WithSeed(1), WithReflectInterval(10*time.Millisecond))
	if err := a.StartThinking(); err != nil {
		t.Fatalf("StartThinking: %v", err)
	}
	if err := a.StartThinking(); err == nil {
		t.Error("second StartThinking must fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(a.Memory().Thoughts) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	a.StopThinking()
	a.StopThinking() // idempotent

	if len(a.Memory().Thoughts) == 0 {
		t.Error("background loop produced no thoughts")
	}
}

type captureSink struct {
	mu    sync.Mutex
	calls int
	last  Memory
}

func (c *captureSink) SaveAgentSnapshot(_ map[string]*meme.Meme, mem Memory, _ map[string]StrategyStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.last = mem
	return nil
}

func TestAutoPersist(t *testing.T) {
	sink := &captureSink{}
	a := New("saver", WithSeed(3), WithPersister(sink), WithAutoPersist(true))
	a.SetGoal("ship it")
	a.Think("ship the thing")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.calls < 2 {
		t.Fatalf("snapshot calls = %d, want at least 2", sink.calls)
	}
	if !contains(sink.last.Goals, "ship it") {
		t.Errorf("snapshot goals = %v", sink.last.Goals)
	}
	if len(sink.last.Thoughts) != 1 {
		t.Errorf("snapshot thoughts = %v", sink.last.Thoughts)
	}
}

type nameMatcher struct{ names []string }

func (m nameMatcher) Applicable(State, string, []*Strategy) ([]string, error) {
	return m.names, nil
}

func TestMatcherOverride(t *testing.T) {
	a := New("matched", WithSeed(9), WithMatcher(nameMatcher{names: []string{"synthesize"}}))
	res := a.Think("anything at all")
	if len(res.Actions) != 1 || res.Actions[0].Strategy != "synthesize" {
		t.Errorf("actions = %v, want only synthesize via matcher", res.Actions)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
