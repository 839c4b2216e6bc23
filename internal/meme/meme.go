// Package meme implements the Meme entity: a typed unit of information that
// can validate itself, execute against an environment, mutate, and replicate.
package meme

import (
	"errors"
	"fmt"
	"image"
	"time"

	"mos/internal/logging"
	"mos/internal/neural"

	"github.com/google/uuid"
)

// Kind is the closed set of meme payload types.
type Kind string

const (
	KindCode  Kind = "code"
	KindText  Kind = "text"
	KindData  Kind = "data"
	KindImage Kind = "image"
	KindModel Kind = "model"
)

// Kinds lists every valid kind in a stable order.
var Kinds = []Kind{KindCode, KindText, KindData, KindImage, KindModel}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindCode, KindText, KindData, KindImage, KindModel:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Sentinel errors for meme operations.
var (
	ErrUnknownKind     = errors.New("unknown meme kind")
	ErrPayloadMismatch = errors.New("payload does not match meme kind")
	ErrNotExecutable   = errors.New("meme payload is not executable")
	ErrInputSize       = errors.New("environment vector size mismatch")
)

// Meme is a unit of information with an immutable kind, a kind-specific
// payload, and weighted connections to other memes.
type Meme struct {
	ID          uuid.UUID
	Kind        Kind
	Payload     any
	Metadata    map[string]string
	Fitness     float64
	Connections map[uuid.UUID]float64
}

// Digest is the log/CLI projection of a meme. The payload is deliberately
// excluded; it can be arbitrarily large.
type Digest struct {
	ID          uuid.UUID             `json:"id"`
	Kind        Kind                  `json:"kind"`
	Metadata    map[string]string     `json:"metadata"`
	Fitness     float64               `json:"fitness"`
	Connections map[uuid.UUID]float64 `json:"connections"`
}

// New creates a meme of the given kind, validating the payload against it.
// The constructor seeds the created metadata key with an RFC3339 UTC stamp.
func New(kind Kind, payload any) (*Meme, error) {
	m := &Meme{
		ID:      uuid.New(),
		Kind:    kind,
		Payload: payload,
		Metadata: map[string]string{
			"created": time.Now().UTC().Format(time.RFC3339),
		},
		Connections: make(map[uuid.UUID]float64),
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	logging.MemeDebug("created %s meme %s", kind, m.ID)
	return m, nil
}

// Validate checks the payload against the meme's kind. Code memes must
// parse and expose Run in the sandboxed interpreter.
func (m *Meme) Validate() error {
	switch m.Kind {
	case KindCode:
		src, ok := m.Payload.(string)
		if !ok {
			return fmt.Errorf("%w: code meme needs Go source string, got %T", ErrPayloadMismatch, m.Payload)
		}
		return validateCode(src)
	case KindText:
		if _, ok := m.Payload.(string); !ok {
			return fmt.Errorf("%w: text meme needs string, got %T", ErrPayloadMismatch, m.Payload)
		}
	case KindData:
		if _, ok := m.Payload.(map[string]any); !ok {
			return fmt.Errorf("%w: data meme needs map[string]any, got %T", ErrPayloadMismatch, m.Payload)
		}
	case KindImage:
		if _, ok := m.Payload.(image.Image); !ok {
			return fmt.Errorf("%w: image meme needs image.Image, got %T", ErrPayloadMismatch, m.Payload)
		}
	case KindModel:
		if _, ok := m.Payload.(*neural.Model); !ok {
			return fmt.Errorf("%w: model meme needs *neural.Model, got %T", ErrPayloadMismatch, m.Payload)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	return nil
}

// Replicate deep-copies the meme under a fresh ID. Metadata and connections
// are copied; fitness resets to zero. The parent is untouched.
func (m *Meme) Replicate() (*Meme, error) {
	payload, err := copyPayload(m.Kind, m.Payload)
	if err != nil {
		return nil, fmt.Errorf("replicate %s: %w", m.ID, err)
	}

	clone := &Meme{
		ID:          uuid.New(),
		Kind:        m.Kind,
		Payload:     payload,
		Metadata:    make(map[string]string, len(m.Metadata)),
		Connections: make(map[uuid.UUID]float64, len(m.Connections)),
	}
	for k, v := range m.Metadata {
		clone.Metadata[k] = v
	}
	for k, v := range m.Connections {
		clone.Connections[k] = v
	}

	logging.MemeDebug("replicated %s meme %s -> %s", m.Kind, m.ID, clone.ID)
	return clone, nil
}

// Digest returns the payload-free projection of the meme.
func (m *Meme) Digest() Digest {
	d := Digest{
		ID:          m.ID,
		Kind:        m.Kind,
		Metadata:    make(map[string]string, len(m.Metadata)),
		Fitness:     m.Fitness,
		Connections: make(map[uuid.UUID]float64, len(m.Connections)),
	}
	for k, v := range m.Metadata {
		d.Metadata[k] = v
	}
	for k, v := range m.Connections {
		d.Connections[k] = v
	}
	return d
}

// Connect records a weighted association to another meme.
func (m *Meme) Connect(other uuid.UUID, weight float64) {
	if m.Connections == nil {
		m.Connections = make(map[uuid.UUID]float64)
	}
	m.Connections[other] = weight
}

// copyPayload deep-copies a payload value for replication.
func copyPayload(kind Kind, payload any) (any, error) {
	switch kind {
	case KindCode, KindText:
		s, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected string payload, got %T", ErrPayloadMismatch, payload)
		}
		return s, nil
	case KindData:
		data, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected map payload, got %T", ErrPayloadMismatch, payload)
		}
		return copyDataValue(data), nil
	case KindImage:
		img, ok := payload.(image.Image)
		if !ok {
			return nil, fmt.Errorf("%w: expected image payload, got %T", ErrPayloadMismatch, payload)
		}
		return copyImage(img), nil
	case KindModel:
		model, ok := payload.(*neural.Model)
		if !ok {
			return nil, fmt.Errorf("%w: expected model payload, got %T", ErrPayloadMismatch, payload)
		}
		return model.Clone()
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// copyDataValue recursively copies JSON-object-shaped data.
func copyDataValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyDataValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyDataValue(item)
		}
		return out
	default:
		return val
	}
}

// copyImage copies any image into a fresh RGBA raster.
func copyImage(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, src.At(x, y))
		}
	}
	return dst
}
