package meme

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"

	"mos/internal/neural"

	"github.com/google/uuid"
)

// envelope is the wire form of a meme: a kind tag plus a kind-specific
// payload encoding.
//
//	code, text -> raw string
//	data       -> JSON object
//	image      -> PNG bytes, base64
//	model      -> neural spec JSON with captured weights
type envelope struct {
	ID          uuid.UUID             `json:"id"`
	Kind        Kind                  `json:"kind"`
	Metadata    map[string]string     `json:"metadata,omitempty"`
	Fitness     float64               `json:"fitness"`
	Connections map[uuid.UUID]float64 `json:"connections,omitempty"`
	Payload     json.RawMessage       `json:"payload"`
}

// EncodePayload serializes just the payload in its persisted form.
func EncodePayload(kind Kind, payload any) ([]byte, error) {
	switch kind {
	case KindCode, KindText:
		s, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected string payload, got %T", ErrPayloadMismatch, payload)
		}
		return json.Marshal(s)
	case KindData:
		data, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected map payload, got %T", ErrPayloadMismatch, payload)
		}
		return json.Marshal(data)
	case KindImage:
		img, ok := payload.(image.Image)
		if !ok {
			return nil, fmt.Errorf("%w: expected image payload, got %T", ErrPayloadMismatch, payload)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode image payload: %w", err)
		}
		return json.Marshal(base64.StdEncoding.EncodeToString(buf.Bytes()))
	case KindModel:
		model, ok := payload.(*neural.Model)
		if !ok {
			return nil, fmt.Errorf("%w: expected model payload, got %T", ErrPayloadMismatch, payload)
		}
		return json.Marshal(model)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// DecodePayload deserializes a payload from its persisted form.
func DecodePayload(kind Kind, raw []byte) (any, error) {
	switch kind {
	case KindCode, KindText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return s, nil
	case KindData:
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to decode data payload: %w", err)
		}
		return data, nil
	case KindImage:
		var b64 string
		if err := json.Unmarshal(raw, &b64); err != nil {
			return nil, fmt.Errorf("failed to decode image payload: %w", err)
		}
		pngBytes, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image base64: %w", err)
		}
		img, err := png.Decode(bytes.NewReader(pngBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image PNG: %w", err)
		}
		return img, nil
	case KindModel:
		var model neural.Model
		if err := json.Unmarshal(raw, &model); err != nil {
			return nil, fmt.Errorf("failed to decode model payload: %w", err)
		}
		return &model, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// MarshalJSON encodes the meme as an envelope.
func (m *Meme) MarshalJSON() ([]byte, error) {
	payload, err := EncodePayload(m.Kind, m.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		ID:          m.ID,
		Kind:        m.Kind,
		Metadata:    m.Metadata,
		Fitness:     m.Fitness,
		Connections: m.Connections,
		Payload:     payload,
	})
}

// UnmarshalJSON decodes an envelope back into a meme.
func (m *Meme) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if _, err := ParseKind(string(env.Kind)); err != nil {
		return err
	}
	payload, err := DecodePayload(env.Kind, env.Payload)
	if err != nil {
		return err
	}

	m.ID = env.ID
	m.Kind = env.Kind
	m.Payload = payload
	m.Metadata = env.Metadata
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Fitness = env.Fitness
	m.Connections = env.Connections
	if m.Connections == nil {
		m.Connections = make(map[uuid.UUID]float64)
	}
	return nil
}
