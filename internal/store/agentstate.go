package store

import (
	"encoding/json"
	"fmt"

	"mos/internal/agent"
	"mos/internal/logging"
	"mos/internal/meme"
)

// SaveAgentSnapshot replaces the persisted agent state wholesale. It
// satisfies agent.Persister.
func (s *Store) SaveAgentSnapshot(memes map[string]*meme.Meme, mem agent.Memory, stats map[string]agent.StrategyStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin snapshot: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"agent_memes", "agent_goals", "agent_thoughts", "agent_log", "strategy_stats"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}

	for name, m := range memes {
		content, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("store: encode agent meme %q: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO agent_memes (name, content) VALUES (?, ?)`,
			name, string(content)); err != nil {
			return fmt.Errorf("store: save agent meme %q: %w", name, err)
		}
	}
	for _, goal := range mem.Goals {
		if _, err := tx.Exec(`INSERT INTO agent_goals (goal) VALUES (?)`, goal); err != nil {
			return fmt.Errorf("store: save goal: %w", err)
		}
	}
	for _, thought := range mem.Thoughts {
		if _, err := tx.Exec(`INSERT INTO agent_thoughts (thought) VALUES (?)`, thought); err != nil {
			return fmt.Errorf("store: save thought: %w", err)
		}
	}
	for _, event := range mem.Log {
		if _, err := tx.Exec(`INSERT INTO agent_log (event) VALUES (?)`, event); err != nil {
			return fmt.Errorf("store: save log event: %w", err)
		}
	}
	for name, st := range stats {
		if _, err := tx.Exec(`INSERT INTO strategy_stats (name, uses, success, fail)
			VALUES (?, ?, ?, ?)`, name, st.Uses, st.Success, st.Fail); err != nil {
			return fmt.Errorf("store: save stats %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit snapshot: %w", err)
	}
	logging.StoreDebug("agent snapshot saved (%d memes, %d goals, %d thoughts)",
		len(memes), len(mem.Goals), len(mem.Thoughts))
	return nil
}

// LoadAgentSnapshot reads the persisted agent state.
func (s *Store) LoadAgentSnapshot() (map[string]*meme.Meme, agent.Memory, map[string]agent.StrategyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memes := make(map[string]*meme.Meme)
	rows, err := s.db.Query(`SELECT name, content FROM agent_memes`)
	if err != nil {
		return nil, agent.Memory{}, nil, fmt.Errorf("store: load agent memes: %w", err)
	}
	for rows.Next() {
		var name, content string
		if err := rows.Scan(&name, &content); err != nil {
			rows.Close()
			return nil, agent.Memory{}, nil, fmt.Errorf("store: scan agent meme: %w", err)
		}
		var m meme.Meme
		if err := json.Unmarshal([]byte(content), &m); err != nil {
			logging.StoreError("skipping agent meme %q: %v", name, err)
			continue
		}
		memes[name] = &m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, agent.Memory{}, nil, err
	}

	var mem agent.Memory
	if mem.Goals, err = s.stringColumn(`SELECT goal FROM agent_goals ORDER BY id`); err != nil {
		return nil, agent.Memory{}, nil, err
	}
	if mem.Thoughts, err = s.stringColumn(`SELECT thought FROM agent_thoughts ORDER BY id`); err != nil {
		return nil, agent.Memory{}, nil, err
	}
	if mem.Log, err = s.stringColumn(`SELECT event FROM agent_log ORDER BY id`); err != nil {
		return nil, agent.Memory{}, nil, err
	}

	stats := make(map[string]agent.StrategyStats)
	srows, err := s.db.Query(`SELECT name, uses, success, fail FROM strategy_stats`)
	if err != nil {
		return nil, agent.Memory{}, nil, fmt.Errorf("store: load strategy stats: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var (
			name string
			st   agent.StrategyStats
		)
		if err := srows.Scan(&name, &st.Uses, &st.Success, &st.Fail); err != nil {
			return nil, agent.Memory{}, nil, fmt.Errorf("store: scan stats: %w", err)
		}
		stats[name] = st
	}
	return memes, mem, stats, srows.Err()
}

// RestoreAgent loads the snapshot into an agent.
func (s *Store) RestoreAgent(a *agent.Agent) error {
	memes, mem, stats, err := s.LoadAgentSnapshot()
	if err != nil {
		return err
	}
	a.RestoreMemes(memes)
	a.RestoreMemory(mem)
	a.RestoreStats(stats)
	return nil
}

func (s *Store) stringColumn(query string) ([]string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("store: query %q: %w", query, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
