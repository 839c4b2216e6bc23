package meme

import (
	"context"
	"fmt"
	"image"
	"strings"

	"mos/internal/logging"
	"mos/internal/neural"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Code memes are interpreted with Yaegi instead of compiled. Only a stdlib
// whitelist is available inside the interpreter: no os, no net, no exec.
var allowedPackages = map[string]bool{
	"strings":         true,
	"strconv":         true,
	"fmt":             true,
	"math":            true,
	"regexp":          true,
	"encoding/json":   true,
	"encoding/base64": true,
	"time":            true,
	"sort":            true,
	"bytes":           true,
	"errors":          true,
	"unicode":         true,
}

// Execute runs the meme against an environment value.
//
//   - code: interpret the source and call Run(env); ctx timeout enforced.
//   - text, data: return the payload unchanged.
//   - image: return the flattened RGBA pixel values, row-major.
//   - model: coerce env to []float32 and run a forward pass.
func (m *Meme) Execute(ctx context.Context, env any) (any, error) {
	timer := logging.StartTimer(logging.CategoryMeme, "Execute")
	defer timer.Stop()

	switch m.Kind {
	case KindCode:
		src, ok := m.Payload.(string)
		if !ok {
			return nil, fmt.Errorf("%w: code meme needs Go source string, got %T", ErrPayloadMismatch, m.Payload)
		}
		return executeCode(ctx, src, env)
	case KindText, KindData:
		return m.Payload, nil
	case KindImage:
		img, ok := m.Payload.(image.Image)
		if !ok {
			return nil, fmt.Errorf("%w: image meme needs image.Image, got %T", ErrPayloadMismatch, m.Payload)
		}
		return flattenImage(img), nil
	case KindModel:
		model, ok := m.Payload.(*neural.Model)
		if !ok {
			return nil, fmt.Errorf("%w: model meme needs *neural.Model, got %T", ErrPayloadMismatch, m.Payload)
		}
		input, err := coerceVector(env)
		if err != nil {
			return nil, err
		}
		if len(input) != model.InputSize() {
			return nil, fmt.Errorf("%w: got %d values, model expects %d", ErrInputSize, len(input), model.InputSize())
		}
		return model.Infer(input)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
}

// validateImports checks that code only imports whitelisted packages.
func validateImports(src string) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import (") {
			inBlock = true
			continue
		}
		if inBlock {
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
				continue
			}
			if pkg := strings.Trim(trimmed, `"`); pkg != "" {
				imports = append(imports, pkg)
			}
			continue
		}
		if strings.HasPrefix(trimmed, "import ") {
			imports = append(imports, strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`))
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if !allowedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}

// wrapCode wraps the meme source in a main package if needed.
func wrapCode(src string) string {
	if strings.Contains(src, "package main") {
		return src
	}
	return "package main\n\n" + src
}

// loadRun interprets the source and resolves the exported Run function.
func loadRun(src string) (func(any) (any, error), error) {
	if err := validateImports(src); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotExecutable, err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load interpreter stdlib: %w", err)
	}

	if _, err := i.Eval(wrapCode(src)); err != nil {
		return nil, fmt.Errorf("%w: evaluation failed: %v", ErrNotExecutable, err)
	}

	v, err := i.Eval("main.Run")
	if err != nil {
		return nil, fmt.Errorf("%w: Run function not found: %v", ErrNotExecutable, err)
	}

	run, ok := v.Interface().(func(any) (any, error))
	if !ok {
		return nil, fmt.Errorf("%w: Run has wrong signature, want func(any) (any, error)", ErrNotExecutable)
	}
	return run, nil
}

// validateCode is the Validate hook for code memes: parse and resolve Run
// without calling it.
func validateCode(src string) error {
	_, err := loadRun(src)
	return err
}

// executeCode interprets the source and calls Run(env), honoring ctx.
func executeCode(ctx context.Context, src string, env any) (any, error) {
	run, err := loadRun(src)
	if err != nil {
		return nil, err
	}

	resultChan := make(chan any, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := run(env)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- result
	}()

	select {
	case result := <-resultChan:
		return result, nil
	case err := <-errChan:
		return nil, fmt.Errorf("code meme failed: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("code meme execution timed out: %w", ctx.Err())
	}
}

// flattenImage returns RGBA channel values row-major as float64s.
func flattenImage(img image.Image) []float64 {
	bounds := img.Bounds()
	out := make([]float64, 0, bounds.Dx()*bounds.Dy()*4)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			// RGBA() values are 16-bit; scale back to 0..255
			out = append(out, float64(r>>8), float64(g>>8), float64(b>>8), float64(a>>8))
		}
	}
	return out
}

// coerceVector converts common environment shapes to []float32.
func coerceVector(env any) ([]float32, error) {
	switch v := env.(type) {
	case []float32:
		return v, nil
	case []float64:
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = float32(x)
		}
		return out, nil
	case []int:
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = float32(x)
		}
		return out, nil
	case []any:
		out := make([]float32, len(v))
		for i, x := range v {
			f, ok := x.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T, want number", ErrInputSize, i, x)
			}
			out[i] = float32(f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: cannot coerce %T to a vector", ErrInputSize, env)
	}
}
