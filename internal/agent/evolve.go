package agent

import (
	"fmt"

	"mos/internal/logging"
)

// maxLevel caps strategy depth.
const maxLevel = 5

// EvolveStrategies spawns evolved variants of strategies that have
// proven themselves: at least three uses with more successes than
// failures. A variant gains a level (capped), a versioned name, the
// growth and learning trigger topics, and an amended plan. Returns the
// new variants.
func (a *Agent) EvolveStrategies() []*Strategy {
	a.mu.Lock()
	defer a.mu.Unlock()

	var evolved []*Strategy
	for _, s := range a.strategies {
		st, ok := a.stats[s.Name]
		if !ok || st.Uses < 3 || st.Success <= st.Fail {
			continue
		}

		v := s.clone()
		v.Name = fmt.Sprintf("%s v%d", s.Name, a.rng.Intn(98)+2)
		if v.Level < maxLevel {
			v.Level++
		}
		v.TriggerTopics = appendMissing(v.TriggerTopics, "growth", "learning")
		v.ActionPlan = s.ActionPlan + " (evolved)"
		evolved = append(evolved, v)

		a.log("strategy evolved: " + s.Name + " -> " + v.Name)
		logging.Agent("%s evolved strategy %s into %s (level %d)", a.name, s.Name, v.Name, v.Level)
	}

	if len(evolved) > 0 {
		a.strategies = append(a.strategies, evolved...)
		a.roots = BuildHierarchy(a.strategies)
		a.persistLocked()
	}
	return evolved
}

func appendMissing(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, have := range list {
			if have == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
