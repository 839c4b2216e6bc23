package agent

import (
	"fmt"
	"time"

	"mos/internal/logging"
)

// autoThoughts are spontaneous first-order reflections.
var autoThoughts = []string{
	"what problem should I solve next",
	"is there a pattern in my recent thoughts",
	"which idea deserves more attention",
	"what am I curious about right now",
	"is my current goal still the right one",
}

// metaThoughts are reflections about the agent's own thinking.
var metaThoughts = []string{
	"which of my strategies actually works",
	"am I spending energy on the right problems",
	"what have I learned from my failures",
	"should I evolve a strategy",
}

// AutoReflect runs one Think cycle on a random introspective thought.
func (a *Agent) AutoReflect() ThinkResult {
	a.mu.Lock()
	thought := autoThoughts[a.rng.Intn(len(autoThoughts))]
	a.mu.Unlock()
	return a.Think(thought)
}

// MetaReflect runs one Think cycle on a random thought about the
// agent's own thinking.
func (a *Agent) MetaReflect() ThinkResult {
	a.mu.Lock()
	thought := metaThoughts[a.rng.Intn(len(metaThoughts))]
	a.mu.Unlock()
	return a.Think(thought)
}

// MixedReflection picks auto-reflection 70% of the time and
// meta-reflection otherwise.
func (a *Agent) MixedReflection() ThinkResult {
	a.mu.Lock()
	meta := a.rng.Float64() >= 0.7
	a.mu.Unlock()
	if meta {
		return a.MetaReflect()
	}
	return a.AutoReflect()
}

// StartThinking launches the background reflection loop. It is an error
// to start an agent that is already thinking.
func (a *Agent) StartThinking() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopCh != nil {
		return fmt.Errorf("agent: %s is already thinking", a.name)
	}
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.thinkLoop(a.stopCh, a.doneCh, a.reflectGap)
	logging.Agent("%s background thinking started (every %s)", a.name, a.reflectGap)
	return nil
}

// StopThinking stops the background loop and waits for it to exit. Safe
// to call when the loop is not running.
func (a *Agent) StopThinking() {
	a.mu.Lock()
	stop, done := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	logging.Agent("%s background thinking stopped", a.name)
}

func (a *Agent) thinkLoop(stop <-chan struct{}, done chan<- struct{}, gap time.Duration) {
	defer close(done)
	ticker := time.NewTicker(gap)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if a.State().Energy == 0 {
				continue
			}
			a.MixedReflection()
		}
	}
}
