package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mos/internal/logging"
	"mos/internal/meme"
	"mos/internal/network"

	"github.com/google/uuid"
)

// SaveMeme inserts or updates a meme row.
func (s *Store) SaveMeme(m *meme.Meme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := meme.EncodePayload(m.Kind, m.Payload)
	if err != nil {
		return fmt.Errorf("store: encode payload: %w", err)
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO memes (id, kind, payload, metadata, fitness)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			metadata = excluded.metadata,
			fitness = excluded.fitness,
			updated_at = CURRENT_TIMESTAMP`,
		m.ID.String(), string(m.Kind), payload, string(metadata), m.Fitness)
	if err != nil {
		return fmt.Errorf("store: save meme %s: %w", m.ID, err)
	}
	logging.StoreDebug("saved meme %s (%s)", m.ID, m.Kind)
	return nil
}

// LoadMeme fetches one meme by ID. Connections come from meme_links.
func (s *Store) LoadMeme(id uuid.UUID) (*meme.Meme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadMemeLocked(id)
}

func (s *Store) loadMemeLocked(id uuid.UUID) (*meme.Meme, error) {
	var (
		kindStr  string
		payload  []byte
		metadata string
		fitness  float64
	)
	err := s.db.QueryRow(`SELECT kind, payload, metadata, fitness FROM memes WHERE id = ?`,
		id.String()).Scan(&kindStr, &payload, &metadata, &fitness)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: meme %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load meme %s: %w", id, err)
	}

	kind, err := meme.ParseKind(kindStr)
	if err != nil {
		return nil, fmt.Errorf("store: meme %s: %w", id, err)
	}
	value, err := meme.DecodePayload(kind, payload)
	if err != nil {
		return nil, fmt.Errorf("store: decode meme %s: %w", id, err)
	}

	m := &meme.Meme{
		ID:          id,
		Kind:        kind,
		Payload:     value,
		Metadata:    map[string]string{},
		Fitness:     fitness,
		Connections: map[uuid.UUID]float64{},
	}
	if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
		return nil, fmt.Errorf("store: meme %s metadata: %w", id, err)
	}

	links, err := s.loadLinksLocked(id)
	if err != nil {
		return nil, err
	}
	m.Connections = links
	return m, nil
}

// DeleteMeme removes a meme and its links.
func (s *Store) DeleteMeme(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM memes WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("store: delete meme %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: meme %s: %w", id, ErrNotFound)
	}
	if _, err := s.db.Exec(`DELETE FROM meme_links WHERE from_id = ? OR to_id = ?`,
		id.String(), id.String()); err != nil {
		return fmt.Errorf("store: delete links of %s: %w", id, err)
	}
	if _, err := s.db.Exec(`DELETE FROM meme_vectors WHERE meme_id = ?`, id.String()); err != nil {
		return fmt.Errorf("store: delete vector of %s: %w", id, err)
	}
	return nil
}

// ListMemes returns all memes ordered by fitness (best first), without
// loading link maps.
func (s *Store) ListMemes() ([]*meme.Meme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, kind, payload, metadata, fitness
		FROM memes ORDER BY fitness DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list memes: %w", err)
	}
	defer rows.Close()

	var out []*meme.Meme
	for rows.Next() {
		var (
			idStr    string
			kindStr  string
			payload  []byte
			metadata string
			fitness  float64
		)
		if err := rows.Scan(&idStr, &kindStr, &payload, &metadata, &fitness); err != nil {
			return nil, fmt.Errorf("store: scan meme: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("store: meme id %q: %w", idStr, err)
		}
		kind, err := meme.ParseKind(kindStr)
		if err != nil {
			logging.StoreError("skipping meme %s: %v", idStr, err)
			continue
		}
		value, err := meme.DecodePayload(kind, payload)
		if err != nil {
			logging.StoreError("skipping meme %s: %v", idStr, err)
			continue
		}
		m := &meme.Meme{
			ID:          id,
			Kind:        kind,
			Payload:     value,
			Metadata:    map[string]string{},
			Fitness:     fitness,
			Connections: map[uuid.UUID]float64{},
		}
		json.Unmarshal([]byte(metadata), &m.Metadata)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveLinks replaces the outgoing links of a meme.
func (s *Store) SaveLinks(from uuid.UUID, links map[uuid.UUID]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM meme_links WHERE from_id = ?`, from.String()); err != nil {
		return fmt.Errorf("store: clear links: %w", err)
	}
	for to, weight := range links {
		if _, err := tx.Exec(`INSERT INTO meme_links (from_id, to_id, weight) VALUES (?, ?, ?)`,
			from.String(), to.String(), weight); err != nil {
			return fmt.Errorf("store: insert link: %w", err)
		}
	}
	return tx.Commit()
}

// LoadLinks returns the outgoing links of a meme.
func (s *Store) LoadLinks(from uuid.UUID) (map[uuid.UUID]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLinksLocked(from)
}

func (s *Store) loadLinksLocked(from uuid.UUID) (map[uuid.UUID]float64, error) {
	rows, err := s.db.Query(`SELECT to_id, weight FROM meme_links WHERE from_id = ?`, from.String())
	if err != nil {
		return nil, fmt.Errorf("store: load links: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]float64)
	for rows.Next() {
		var (
			toStr  string
			weight float64
		)
		if err := rows.Scan(&toStr, &weight); err != nil {
			return nil, fmt.Errorf("store: scan link: %w", err)
		}
		to, err := uuid.Parse(toStr)
		if err != nil {
			continue
		}
		out[to] = weight
	}
	return out, rows.Err()
}

// SaveNetwork persists every meme in the network plus its links.
func (s *Store) SaveNetwork(n *network.Network) error {
	for _, m := range n.Memes() {
		if err := s.SaveMeme(m); err != nil {
			return err
		}
		if len(m.Connections) > 0 {
			if err := s.SaveLinks(m.ID, m.Connections); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadNetwork rebuilds a network population from the store.
func (s *Store) LoadNetwork(opts ...network.Option) (*network.Network, error) {
	memes, err := s.ListMemes()
	if err != nil {
		return nil, err
	}
	n := network.New(opts...)
	for _, m := range memes {
		links, err := s.LoadLinks(m.ID)
		if err != nil {
			return nil, err
		}
		m.Connections = links
		n.Add(m)
	}
	return n, nil
}

// RecordGeneration satisfies network.Recorder.
func (s *Store) RecordGeneration(g network.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO generations (gen, population, survivors, best, mean, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.Number, g.Population, g.Survivors, g.BestFitness, g.MeanFitness,
		g.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("store: record generation %d: %w", g.Number, err)
	}
	return nil
}

// ListGenerations returns recorded generations, oldest first.
func (s *Store) ListGenerations() ([]network.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT gen, population, survivors, best, mean, elapsed_ms
		FROM generations ORDER BY gen`)
	if err != nil {
		return nil, fmt.Errorf("store: list generations: %w", err)
	}
	defer rows.Close()

	var out []network.Generation
	for rows.Next() {
		var (
			g  network.Generation
			ms int64
		)
		if err := rows.Scan(&g.Number, &g.Population, &g.Survivors,
			&g.BestFitness, &g.MeanFitness, &ms); err != nil {
			return nil, fmt.Errorf("store: scan generation: %w", err)
		}
		g.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, g)
	}
	return out, rows.Err()
}
