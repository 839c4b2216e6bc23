package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"mos/internal/logging"
	"mos/internal/meme"
	"mos/internal/network"

	"github.com/google/uuid"
)

// VectorSink persists meme vectors. The store satisfies it.
type VectorSink interface {
	SaveVector(memeID uuid.UUID, model string, vec []float32) error
}

// Linker embeds the text-representable memes of a network and writes
// weighted connections between pairs above the similarity threshold.
type Linker struct {
	engine    Engine
	threshold float64
	sink      VectorSink
}

// NewLinker creates a linker. Threshold outside (0,1] falls back to 0.75.
func NewLinker(engine Engine, threshold float64, sink VectorSink) *Linker {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.75
	}
	return &Linker{engine: engine, threshold: threshold, sink: sink}
}

// textOf renders a meme as embeddable text. Image and model memes have
// no text form and are skipped.
func textOf(m *meme.Meme) (string, bool) {
	switch m.Kind {
	case meme.KindText, meme.KindCode:
		s, ok := m.Payload.(string)
		return s, ok && s != ""
	case meme.KindData:
		data, err := json.Marshal(m.Payload)
		if err != nil {
			return "", false
		}
		return string(data), true
	default:
		return "", false
	}
}

// Link embeds every linkable meme and connects pairs whose similarity
// clears the threshold. Connection weight is the similarity, written in
// both directions. Returns the number of links written.
func (l *Linker) Link(ctx context.Context, n *network.Network) (int, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Link")
	defer timer.Stop()

	var (
		ids   []uuid.UUID
		texts []string
		byID  = make(map[uuid.UUID]*meme.Meme)
	)
	for _, m := range n.Memes() {
		text, ok := textOf(m)
		if !ok {
			continue
		}
		ids = append(ids, m.ID)
		texts = append(texts, text)
		byID[m.ID] = m
	}
	if len(ids) < 2 {
		logging.Embedding("link pass skipped: %d linkable memes", len(ids))
		return 0, nil
	}

	if hc, ok := l.engine.(HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return 0, fmt.Errorf("embedding: engine unhealthy: %w", err)
		}
	}

	vectors, err := l.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding: batch embed: %w", err)
	}

	if l.sink != nil {
		for i, id := range ids {
			if err := l.sink.SaveVector(id, l.engine.Name(), vectors[i]); err != nil {
				logging.EmbeddingDebug("vector persist failed for %s: %v", id, err)
			}
		}
	}

	links := 0
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			sim := CosineSimilarity(vectors[i], vectors[j])
			if sim < l.threshold {
				continue
			}
			byID[ids[i]].Connect(ids[j], sim)
			byID[ids[j]].Connect(ids[i], sim)
			links += 2
		}
	}
	logging.Embedding("link pass: %d memes embedded, %d links written", len(ids), links)
	return links, nil
}
