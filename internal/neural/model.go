// Package neural wraps github.com/openfluke/loom dense networks for use as
// model meme payloads. A Model is a stepped-forward dense chain whose weights
// can be snapshotted, restored, perturbed, and serialized.
package neural

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"mos/internal/logging"

	"github.com/openfluke/loom/nn"
)

// Spec describes a dense network topology plus optional captured weights.
// Weights/Biases are empty on a freshly built model and populated by
// MarshalJSON so the full parameter state round-trips.
type Spec struct {
	InputSize  int    `json:"input_size"`
	Hidden     []int  `json:"hidden"`
	OutputSize int    `json:"output_size"`
	Activation string `json:"activation"` // leaky_relu (default), tanh, sigmoid, relu, softplus

	Weights [][]float32 `json:"weights,omitempty"`
	Biases  [][]float32 `json:"biases,omitempty"`
}

// Model is a built dense network with its originating spec.
type Model struct {
	Spec Spec
	net  *nn.Network
}

func activationFor(name string) (nn.ActivationType, error) {
	switch name {
	case "", "leaky_relu":
		return nn.ActivationLeakyReLU, nil
	case "tanh":
		return nn.ActivationTanh, nil
	case "sigmoid":
		return nn.ActivationSigmoid, nil
	case "relu":
		return nn.ActivationScaledReLU, nil
	case "softplus":
		return nn.ActivationSoftplus, nil
	default:
		return nn.ActivationLeakyReLU, fmt.Errorf("unknown activation %q", name)
	}
}

// Build constructs a dense chain input -> hidden... -> output. Hidden layers
// use the spec activation; the output layer is sigmoid. If the spec carries
// captured weights they are restored after construction.
func Build(spec Spec) (*Model, error) {
	if spec.InputSize <= 0 {
		return nil, fmt.Errorf("input size must be positive, got %d", spec.InputSize)
	}
	if spec.OutputSize <= 0 {
		return nil, fmt.Errorf("output size must be positive, got %d", spec.OutputSize)
	}
	for i, h := range spec.Hidden {
		if h <= 0 {
			return nil, fmt.Errorf("hidden layer %d size must be positive, got %d", i, h)
		}
	}

	act, err := activationFor(spec.Activation)
	if err != nil {
		return nil, err
	}

	totalLayers := len(spec.Hidden) + 1
	net := nn.NewNetwork(spec.InputSize, 1, 1, totalLayers)

	prev := spec.InputSize
	for i, h := range spec.Hidden {
		net.SetLayer(0, 0, i, nn.InitDenseLayer(prev, h, act))
		prev = h
	}
	net.SetLayer(0, 0, len(spec.Hidden), nn.InitDenseLayer(prev, spec.OutputSize, nn.ActivationSigmoid))

	m := &Model{Spec: spec, net: net}

	if len(spec.Weights) > 0 || len(spec.Biases) > 0 {
		if err := m.RestoreWeights(spec.Weights, spec.Biases); err != nil {
			return nil, fmt.Errorf("failed to restore captured weights: %w", err)
		}
	}

	logging.MemeDebug("neural: built dense model %dx%v->%d (%s)",
		spec.InputSize, spec.Hidden, spec.OutputSize, spec.Activation)
	return m, nil
}

// InputSize returns the expected input vector length.
func (m *Model) InputSize() int {
	return m.Spec.InputSize
}

// OutputSize returns the output vector length.
func (m *Model) OutputSize() int {
	return m.Spec.OutputSize
}

// Infer runs a stepped forward pass over the input vector.
func (m *Model) Infer(input []float32) ([]float32, error) {
	if len(input) != m.Spec.InputSize {
		return nil, fmt.Errorf("input size mismatch: got %d, model expects %d", len(input), m.Spec.InputSize)
	}

	state := m.net.InitStepState(m.Spec.InputSize)
	state.SetInput(input)
	for i := 0; i < m.net.TotalLayers(); i++ {
		m.net.StepForward(state)
	}

	out := state.GetOutput()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// SnapshotWeights copies every layer's kernel and bias.
func (m *Model) SnapshotWeights() (weights, biases [][]float32) {
	total := m.net.TotalLayers()
	weights = make([][]float32, total)
	biases = make([][]float32, total)
	for i := 0; i < total; i++ {
		cfg := m.net.GetLayer(0, 0, i)
		if cfg == nil {
			continue
		}
		weights[i] = append([]float32(nil), cfg.Kernel...)
		biases[i] = append([]float32(nil), cfg.Bias...)
	}
	return weights, biases
}

// RestoreWeights copies the given kernels and biases into the network.
// Dimension mismatches are rejected so topology can never drift.
func (m *Model) RestoreWeights(weights, biases [][]float32) error {
	total := m.net.TotalLayers()
	if len(weights) != total {
		return fmt.Errorf("weight layer count mismatch: got %d, model has %d", len(weights), total)
	}
	for i := 0; i < total; i++ {
		cfg := m.net.GetLayer(0, 0, i)
		if cfg == nil {
			continue
		}
		if len(weights[i]) != len(cfg.Kernel) {
			return fmt.Errorf("layer %d kernel size mismatch: got %d, want %d", i, len(weights[i]), len(cfg.Kernel))
		}
		copy(cfg.Kernel, weights[i])
		if i < len(biases) && biases[i] != nil {
			if len(biases[i]) != len(cfg.Bias) {
				return fmt.Errorf("layer %d bias size mismatch: got %d, want %d", i, len(biases[i]), len(cfg.Bias))
			}
			copy(cfg.Bias, biases[i])
		}
	}
	return nil
}

// Perturb adds gaussian noise to every kernel weight (scale) and bias
// (scale/2). Layer dimensions are never touched.
func (m *Model) Perturb(rng *rand.Rand, scale float64) {
	total := m.net.TotalLayers()
	for i := 0; i < total; i++ {
		cfg := m.net.GetLayer(0, 0, i)
		if cfg == nil {
			continue
		}
		for j := range cfg.Kernel {
			cfg.Kernel[j] += float32(rng.NormFloat64() * scale)
		}
		for j := range cfg.Bias {
			cfg.Bias[j] += float32(rng.NormFloat64() * scale / 2)
		}
	}
}

// Clone builds a fresh network with the same topology and copies this
// model's current weights into it. The clone shares no slices with the
// source.
func (m *Model) Clone() (*Model, error) {
	spec := Spec{
		InputSize:  m.Spec.InputSize,
		Hidden:     append([]int(nil), m.Spec.Hidden...),
		OutputSize: m.Spec.OutputSize,
		Activation: m.Spec.Activation,
	}
	clone, err := Build(spec)
	if err != nil {
		return nil, err
	}
	weights, biases := m.SnapshotWeights()
	if err := clone.RestoreWeights(weights, biases); err != nil {
		return nil, err
	}
	return clone, nil
}

// MarshalJSON serializes the spec with the current weights captured.
func (m *Model) MarshalJSON() ([]byte, error) {
	spec := m.Spec
	spec.Weights, spec.Biases = m.SnapshotWeights()
	return json.Marshal(spec)
}

// UnmarshalJSON rebuilds the model from a captured spec.
func (m *Model) UnmarshalJSON(data []byte) error {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	built, err := Build(spec)
	if err != nil {
		return err
	}
	*m = *built
	return nil
}
