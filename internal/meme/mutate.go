package meme

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"

	"mos/internal/logging"
	"mos/internal/neural"
)

const textAlphabet = "abcdefghijklmnopqrstuvwxyz "

// Mutate applies the kind-specific mutation in place. The kind itself never
// changes.
//
//   - data: every numeric leaf jittered by uniform ±1.0.
//   - text: one random position replaced by a random rune from a..z + space.
//   - image: every channel offset by uniform noise in [-10, 10], clamped;
//     alpha preserved.
//   - model: gaussian weight noise at scale 0.1.
//   - code: no-op; source is stable under mutation.
func (m *Meme) Mutate(rng *rand.Rand) error {
	switch m.Kind {
	case KindCode:
		return nil
	case KindText:
		s, ok := m.Payload.(string)
		if !ok {
			return fmt.Errorf("%w: text meme needs string, got %T", ErrPayloadMismatch, m.Payload)
		}
		m.Payload = mutateText(rng, s)
	case KindData:
		data, ok := m.Payload.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: data meme needs map[string]any, got %T", ErrPayloadMismatch, m.Payload)
		}
		mutateDataMap(rng, data)
	case KindImage:
		img, ok := m.Payload.(image.Image)
		if !ok {
			return fmt.Errorf("%w: image meme needs image.Image, got %T", ErrPayloadMismatch, m.Payload)
		}
		m.Payload = mutateImage(rng, img)
	case KindModel:
		model, ok := m.Payload.(*neural.Model)
		if !ok {
			return fmt.Errorf("%w: model meme needs *neural.Model, got %T", ErrPayloadMismatch, m.Payload)
		}
		model.Perturb(rng, 0.1)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}

	logging.MemeDebug("mutated %s meme %s", m.Kind, m.ID)
	return nil
}

// mutateText replaces one random rune. Empty strings come back unchanged.
func mutateText(rng *rand.Rand, s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	pos := rng.Intn(len(runes))
	runes[pos] = rune(textAlphabet[rng.Intn(len(textAlphabet))])
	return string(runes)
}

// mutateDataMap jitters numeric leaves in place, recursing through nested
// maps and slices. Non-numeric values are preserved untouched.
func mutateDataMap(rng *rand.Rand, data map[string]any) {
	for k, v := range data {
		data[k] = mutateDataValue(rng, v)
	}
}

func mutateDataValue(rng *rand.Rand, v any) any {
	switch val := v.(type) {
	case float64:
		return val + (rng.Float64()*2 - 1)
	case float32:
		return float64(val) + (rng.Float64()*2 - 1)
	case int:
		return float64(val) + (rng.Float64()*2 - 1)
	case int64:
		return float64(val) + (rng.Float64()*2 - 1)
	case map[string]any:
		mutateDataMap(rng, val)
		return val
	case []any:
		for i, item := range val {
			val[i] = mutateDataValue(rng, item)
		}
		return val
	default:
		return val
	}
}

// mutateImage offsets every RGB channel by uniform noise, clamped to the
// byte range. Bounds and alpha are preserved.
func mutateImage(rng *rand.Rand, src image.Image) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := src.At(x, y).RGBA()
			dst.SetRGBA(x, y, color.RGBA{
				R: jitterChannel(rng, uint8(r>>8)),
				G: jitterChannel(rng, uint8(g>>8)),
				B: jitterChannel(rng, uint8(b>>8)),
				A: uint8(a >> 8),
			})
		}
	}
	return dst
}

func jitterChannel(rng *rand.Rand, v uint8) uint8 {
	n := int(v) + rng.Intn(21) - 10
	if n < 0 {
		n = 0
	}
	if n > 255 {
		n = 255
	}
	return uint8(n)
}
