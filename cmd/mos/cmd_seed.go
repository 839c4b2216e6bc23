package main

import (
	"fmt"
	"image"
	"image/color"

	"github.com/spf13/cobra"

	"mos/internal/meme"
	"mos/internal/neural"
)

// seedCmd populates the store with a small demo population.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the store with a demo meme population (one of each kind)",
	RunE:  runSeed,
}

const seedCode = `package meme

func Run(env any) (any, error) {
	s, ok := env.(string)
	if !ok {
		return "hello from a code meme", nil
	}
	return "echo: " + s, nil
}
`

func runSeed(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	model, err := neural.Build(neural.Spec{InputSize: 4, Hidden: []int{6}, OutputSize: 2})
	if err != nil {
		return fmt.Errorf("failed to build seed model: %w", err)
	}

	seeds := []struct {
		name    string
		kind    meme.Kind
		payload any
	}{
		{"greeting", meme.KindText, "ideas replicate when they resonate"},
		{"echo", meme.KindCode, seedCode},
		{"traits", meme.KindData, map[string]any{"curiosity": 0.8, "caution": 0.3, "topic": "emergence"}},
		{"gradient", meme.KindImage, seedImage()},
		{"classifier", meme.KindModel, model},
	}

	for _, s := range seeds {
		m, err := meme.New(s.kind, s.payload)
		if err != nil {
			return fmt.Errorf("failed to create %s seed: %w", s.name, err)
		}
		m.Metadata["name"] = s.name
		if err := rt.store.SaveMeme(m); err != nil {
			return fmt.Errorf("failed to save %s seed: %w", s.name, err)
		}
		fmt.Printf("seeded %-12s %-6s %s\n", s.name, m.Kind, m.ID)
	}

	fmt.Printf("\n%d memes seeded into %s\n", len(seeds), rt.store.Path())
	return nil
}

func seedImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	return img
}
