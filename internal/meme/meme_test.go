package meme

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"strings"
	"testing"
	"time"

	"mos/internal/neural"

	"github.com/google/go-cmp/cmp"
)

const addOneSource = `
func Run(env any) (any, error) {
	n, ok := env.(int)
	if !ok {
		return nil, nil
	}
	return n + 1, nil
}
`

func testImage(t *testing.T) *image.RGBA {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 250, G: 5, B: 128, A: 255})
	img.SetRGBA(0, 1, color.RGBA{R: 0, G: 0, B: 0, A: 128})
	img.SetRGBA(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return img
}

func testModel(t *testing.T) *neural.Model {
	t.Helper()
	m, err := neural.Build(neural.Spec{InputSize: 3, Hidden: []int{4}, OutputSize: 2})
	if err != nil {
		t.Fatalf("Build model: %v", err)
	}
	return m
}

func TestNewSeedsMetadata(t *testing.T) {
	m, err := New(KindText, "hello")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	created, ok := m.Metadata["created"]
	if !ok {
		t.Fatal("Metadata missing created key")
	}
	if _, err := time.Parse(time.RFC3339, created); err != nil {
		t.Errorf("created is not RFC3339: %v", err)
	}
	if m.Fitness != 0 {
		t.Errorf("Fresh meme fitness should be 0, got %v", m.Fitness)
	}
}

func TestNewRejectsPayloadMismatch(t *testing.T) {
	tests := []struct {
		kind    Kind
		payload any
	}{
		{KindText, 42},
		{KindData, "not a map"},
		{KindImage, "not an image"},
		{KindModel, map[string]any{}},
		{KindCode, 3.14},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			_, err := New(tt.kind, tt.payload)
			if !errors.Is(err, ErrPayloadMismatch) {
				t.Errorf("Expected ErrPayloadMismatch, got %v", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		if _, err := ParseKind(string(k)); err != nil {
			t.Errorf("ParseKind(%q) failed: %v", k, err)
		}
	}
	if _, err := ParseKind("hologram"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestExecuteCode(t *testing.T) {
	m, err := New(KindCode, addOneSource)
	if err != nil {
		t.Fatalf("New code meme failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := m.Execute(ctx, 41)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != 42 {
		t.Errorf("Expected 42, got %v", result)
	}
}

func TestCodeMissingRunRejected(t *testing.T) {
	_, err := New(KindCode, `func Walk() {}`)
	if !errors.Is(err, ErrNotExecutable) {
		t.Errorf("Expected ErrNotExecutable, got %v", err)
	}
}

func TestCodeWrongSignatureRejected(t *testing.T) {
	_, err := New(KindCode, `func Run(a, b int) int { return a + b }`)
	if !errors.Is(err, ErrNotExecutable) {
		t.Errorf("Expected ErrNotExecutable, got %v", err)
	}
}

func TestCodeForbiddenImportRejected(t *testing.T) {
	src := `
import "os"

func Run(env any) (any, error) {
	return os.Getpid(), nil
}
`
	_, err := New(KindCode, src)
	if !errors.Is(err, ErrNotExecutable) {
		t.Errorf("Expected ErrNotExecutable for os import, got %v", err)
	}
}

func TestExecuteTextAndData(t *testing.T) {
	text, err := New(KindText, "the medium is the message")
	if err != nil {
		t.Fatalf("New text meme: %v", err)
	}
	got, err := text.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute text: %v", err)
	}
	if got != "the medium is the message" {
		t.Errorf("Text execute should return payload, got %v", got)
	}

	payload := map[string]any{"score": 1.5, "label": "x"}
	data, err := New(KindData, payload)
	if err != nil {
		t.Fatalf("New data meme: %v", err)
	}
	gotData, err := data.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute data: %v", err)
	}
	if diff := cmp.Diff(payload, gotData); diff != "" {
		t.Errorf("Data execute mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteImageFlattens(t *testing.T) {
	m, err := New(KindImage, testImage(t))
	if err != nil {
		t.Fatalf("New image meme: %v", err)
	}
	result, err := m.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute image: %v", err)
	}
	pixels, ok := result.([]float64)
	if !ok {
		t.Fatalf("Expected []float64, got %T", result)
	}
	if len(pixels) != 2*2*4 {
		t.Fatalf("Expected 16 values for 2x2 RGBA, got %d", len(pixels))
	}
	// First pixel row-major: (0,0) = 10,20,30,255
	want := []float64{10, 20, 30, 255}
	for i, w := range want {
		if pixels[i] != w {
			t.Errorf("pixel[%d] = %v, want %v", i, pixels[i], w)
		}
	}
}

func TestExecuteModel(t *testing.T) {
	m, err := New(KindModel, testModel(t))
	if err != nil {
		t.Fatalf("New model meme: %v", err)
	}

	out, err := m.Execute(context.Background(), []float32{0.1, 0.2, 0.3})
	if err != nil {
		t.Fatalf("Execute model: %v", err)
	}
	vec, ok := out.([]float32)
	if !ok {
		t.Fatalf("Expected []float32, got %T", out)
	}
	if len(vec) != 2 {
		t.Errorf("Expected 2 outputs, got %d", len(vec))
	}

	// Wrong env size is a typed error
	_, err = m.Execute(context.Background(), []float32{1})
	if !errors.Is(err, ErrInputSize) {
		t.Errorf("Expected ErrInputSize, got %v", err)
	}
}

func TestMutateTextReplacesOneRune(t *testing.T) {
	m, err := New(KindText, "abcdef")
	if err != nil {
		t.Fatalf("New text meme: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	if err := m.Mutate(rng); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	got := m.Payload.(string)
	if len(got) != 6 {
		t.Errorf("Mutation changed length: %q", got)
	}
	diffs := 0
	for i := range got {
		if got[i] != "abcdef"[i] {
			diffs++
			if !strings.ContainsRune(textAlphabet, rune(got[i])) {
				t.Errorf("Replacement rune %q outside alphabet", got[i])
			}
		}
	}
	if diffs > 1 {
		t.Errorf("Expected at most one changed position, got %d", diffs)
	}
}

func TestMutateEmptyTextNoop(t *testing.T) {
	m, err := New(KindText, "")
	if err != nil {
		t.Fatalf("New text meme: %v", err)
	}
	if err := m.Mutate(rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("Mutate empty text should not error: %v", err)
	}
	if m.Payload.(string) != "" {
		t.Error("Empty text should stay empty")
	}
}

func TestMutateDataOnlyTouchesNumbers(t *testing.T) {
	payload := map[string]any{
		"score": 5.0,
		"label": "stable",
		"flag":  true,
		"nested": map[string]any{
			"depth": 2.0,
			"name":  "inner",
		},
		"series": []any{1.0, "item", 3.0},
	}
	m, err := New(KindData, payload)
	if err != nil {
		t.Fatalf("New data meme: %v", err)
	}
	if err := m.Mutate(rand.New(rand.NewSource(7))); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	got := m.Payload.(map[string]any)
	if got["label"] != "stable" || got["flag"] != true {
		t.Error("Non-numeric values must be preserved")
	}
	score := got["score"].(float64)
	if score < 4.0 || score > 6.0 {
		t.Errorf("score jitter out of ±1 range: %v", score)
	}
	nested := got["nested"].(map[string]any)
	if nested["name"] != "inner" {
		t.Error("Nested string must be preserved")
	}
	depth := nested["depth"].(float64)
	if depth < 1.0 || depth > 3.0 {
		t.Errorf("nested depth jitter out of range: %v", depth)
	}
	series := got["series"].([]any)
	if series[1] != "item" {
		t.Error("String slice element must be preserved")
	}
}

func TestMutateImagePreservesBoundsAndAlpha(t *testing.T) {
	src := testImage(t)
	m, err := New(KindImage, src)
	if err != nil {
		t.Fatalf("New image meme: %v", err)
	}
	if err := m.Mutate(rand.New(rand.NewSource(3))); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	mutated := m.Payload.(image.Image)
	if mutated.Bounds() != src.Bounds() {
		t.Errorf("Bounds changed: %v -> %v", src.Bounds(), mutated.Bounds())
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			_, _, _, srcA := src.At(x, y).RGBA()
			_, _, _, gotA := mutated.At(x, y).RGBA()
			if srcA != gotA {
				t.Errorf("Alpha changed at (%d,%d)", x, y)
			}
		}
	}
}

func TestMutateCodeNoop(t *testing.T) {
	m, err := New(KindCode, addOneSource)
	if err != nil {
		t.Fatalf("New code meme: %v", err)
	}
	if err := m.Mutate(rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("Mutate code should not error: %v", err)
	}
	if m.Payload.(string) != addOneSource {
		t.Error("Code payload must be stable under mutation")
	}
}

func TestMutateModelPreservesTopology(t *testing.T) {
	model := testModel(t)
	m, err := New(KindModel, model)
	if err != nil {
		t.Fatalf("New model meme: %v", err)
	}
	if err := m.Mutate(rand.New(rand.NewSource(11))); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	got := m.Payload.(*neural.Model)
	if got.InputSize() != 3 || got.OutputSize() != 2 {
		t.Error("Model topology changed under mutation")
	}
}

func TestReplicate(t *testing.T) {
	m, err := New(KindData, map[string]any{"v": 1.0})
	if err != nil {
		t.Fatalf("New data meme: %v", err)
	}
	m.Fitness = 0.9
	m.Metadata["origin"] = "seed"

	clone, err := m.Replicate()
	if err != nil {
		t.Fatalf("Replicate failed: %v", err)
	}

	if clone.ID == m.ID {
		t.Error("Clone must have a fresh ID")
	}
	if clone.Kind != m.Kind {
		t.Error("Clone must keep the kind")
	}
	if clone.Fitness != 0 {
		t.Errorf("Clone fitness must reset to 0, got %v", clone.Fitness)
	}
	if clone.Metadata["origin"] != "seed" {
		t.Error("Clone must copy metadata")
	}

	// Deep copy: mutating the clone must not touch the parent
	clone.Payload.(map[string]any)["v"] = 99.0
	if m.Payload.(map[string]any)["v"] != 1.0 {
		t.Error("Clone payload shares state with parent")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	memes := map[string]*Meme{}

	text, _ := New(KindText, "replicate me")
	memes["text"] = text

	data, _ := New(KindData, map[string]any{"k": 1.5, "s": "v"})
	memes["data"] = data

	code, _ := New(KindCode, addOneSource)
	memes["code"] = code

	img, _ := New(KindImage, testImage(t))
	memes["image"] = img

	model, _ := New(KindModel, testModel(t))
	memes["model"] = model

	for name, m := range memes {
		t.Run(name, func(t *testing.T) {
			m.Fitness = 0.5
			m.Connect(text.ID, 0.8)

			raw, err := json.Marshal(m)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var decoded Meme
			if err := json.Unmarshal(raw, &decoded); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}

			if decoded.ID != m.ID || decoded.Kind != m.Kind {
				t.Error("Identity fields lost in round trip")
			}
			if decoded.Fitness != 0.5 {
				t.Errorf("Fitness lost: %v", decoded.Fitness)
			}
			if decoded.Connections[text.ID] != 0.8 {
				t.Error("Connections lost in round trip")
			}
			if err := decoded.Validate(); err != nil {
				t.Errorf("Decoded meme fails validation: %v", err)
			}
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	raw := []byte(`{"id":"5a210a37-5c52-4884-b501-49b152b834d6","kind":"wavelength","payload":"x"}`)
	var m Meme
	err := json.Unmarshal(raw, &m)
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestDigestExcludesPayload(t *testing.T) {
	m, err := New(KindText, "secret payload")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d := m.Digest()
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal digest: %v", err)
	}
	if strings.Contains(string(raw), "secret payload") {
		t.Error("Digest must not contain the payload")
	}
	if d.ID != m.ID || d.Kind != m.Kind {
		t.Error("Digest identity mismatch")
	}
}
