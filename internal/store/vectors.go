package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"mos/internal/embedding"
	"mos/internal/logging"

	"github.com/google/uuid"
)

// SimilarMeme is one nearest-neighbour hit.
type SimilarMeme struct {
	ID    uuid.UUID
	Score float64
}

// SaveVector stores the embedding of a meme.
func (s *Store) SaveVector(memeID uuid.UUID, model string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("store: encode vector: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO meme_vectors (meme_id, model, dims, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(meme_id) DO UPDATE SET
			model = excluded.model,
			dims = excluded.dims,
			embedding = excluded.embedding`,
		memeID.String(), model, len(vec), string(data))
	if err != nil {
		return fmt.Errorf("store: save vector for %s: %w", memeID, err)
	}

	if s.vectorExt {
		if _, err := s.db.Exec(`DELETE FROM vec_memes WHERE meme_id = ?`, memeID.String()); err == nil {
			if _, err := s.db.Exec(`INSERT INTO vec_memes (meme_id, embedding) VALUES (?, ?)`,
				memeID.String(), string(data)); err != nil {
				logging.StoreDebug("vec0 insert failed, scan fallback remains: %v", err)
			}
		}
	}
	return nil
}

// LoadVector reads the embedding of a meme.
func (s *Store) LoadVector(memeID uuid.UUID) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT embedding FROM meme_vectors WHERE meme_id = ?`,
		memeID.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: vector for %s: %w", memeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load vector for %s: %w", memeID, err)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(data), &vec); err != nil {
		return nil, fmt.Errorf("store: decode vector for %s: %w", memeID, err)
	}
	return vec, nil
}

// SimilarMemes returns the k memes whose stored vectors are closest to
// the query by cosine similarity. Uses the vec0 index when available,
// otherwise scans in process.
func (s *Store) SimilarMemes(query []float32, k int) ([]SimilarMeme, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.vectorExt {
		if out, err := s.similarViaVec(query, k); err == nil {
			return out, nil
		} else {
			logging.StoreDebug("vec0 query failed, scanning: %v", err)
		}
	}
	return s.similarViaScan(query, k)
}

func (s *Store) similarViaVec(query []float32, k int) ([]SimilarMeme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT meme_id, distance FROM vec_memes
		WHERE embedding MATCH ? ORDER BY distance LIMIT ?`, string(q), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SimilarMeme
	for rows.Next() {
		var (
			idStr    string
			distance float64
		)
		if err := rows.Scan(&idStr, &distance); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		out = append(out, SimilarMeme{ID: id, Score: 1 - distance})
	}
	return out, rows.Err()
}

func (s *Store) similarViaScan(query []float32, k int) ([]SimilarMeme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT meme_id, embedding FROM meme_vectors`)
	if err != nil {
		return nil, fmt.Errorf("store: scan vectors: %w", err)
	}
	defer rows.Close()

	var out []SimilarMeme
	for rows.Next() {
		var idStr, data string
		if err := rows.Scan(&idStr, &data); err != nil {
			return nil, fmt.Errorf("store: scan vector row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(data), &vec); err != nil {
			logging.StoreError("skipping malformed vector for %s: %v", idStr, err)
			continue
		}
		out = append(out, SimilarMeme{ID: id, Score: embedding.CosineSimilarity(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
