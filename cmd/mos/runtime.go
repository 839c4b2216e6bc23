package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"mos/internal/agent"
	"mos/internal/config"
	"mos/internal/policy"
	"mos/internal/store"
)

// runtime bundles the pieces most subcommands need: config, the SQLite
// store, and a restored agent with optional Datalog strategy matching.
type runtime struct {
	cfg     *config.Config
	store   *store.Store
	agent   *agent.Agent
	watcher *policy.Watcher
}

// openRuntime loads config, opens the store and restores the agent from
// its last snapshot. The caller must Close the result.
func openRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Store.Path
	if !filepath.IsAbs(dbPath) && dbPath != ":memory:" {
		dbPath = filepath.Join(workspaceOrCwd(), dbPath)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	rt := &runtime{cfg: cfg, store: st}

	opts := []agent.Option{
		agent.WithPersister(st),
		agent.WithAutoPersist(cfg.Agent.AutoPersist),
		agent.WithEnergy(cfg.Agent.InitialEnergy),
		agent.WithReflectInterval(cfg.GetReflectInterval()),
	}
	if cfg.Policy.Enabled {
		engine := policy.NewEngine()
		opts = append(opts, agent.WithMatcher(engine))
		if cfg.Policy.RulesPath != "" {
			w, err := policy.NewWatcher(cfg.Policy.RulesPath, engine.Kernel())
			if err != nil {
				st.Close()
				return nil, fmt.Errorf("failed to watch policy rules: %w", err)
			}
			if err := w.Start(); err != nil {
				st.Close()
				return nil, fmt.Errorf("failed to load policy rules: %w", err)
			}
			rt.watcher = w
		}
	}

	a := agent.New(cfg.Name, opts...)
	if err := st.RestoreAgent(a); err != nil && !errors.Is(err, store.ErrNotFound) {
		rt.Close()
		return nil, fmt.Errorf("failed to restore agent state: %w", err)
	}
	rt.agent = a

	return rt, nil
}

func (rt *runtime) Close() {
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
	if rt.store != nil {
		rt.store.Close()
	}
}
