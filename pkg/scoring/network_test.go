package scoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passthroughWeights wires the first input coordinate straight through to the
// sigmoid, so Forward([z, ...]) == sigmoid(z)*10 - 5.
func passthroughWeights() networkWeights {
	return networkWeights{
		Layer1: layerWeights{Weight: [][]float64{{1, 0}}, Bias: []float64{0}},
		Relu1:  []float64{1},
		Layer2: layerWeights{Weight: [][]float64{{1}}, Bias: []float64{0}},
		Relu2:  []float64{1},
		Layer3: layerWeights{Weight: [][]float64{{1}}, Bias: []float64{0}},
	}
}

func TestForwardPassthrough(t *testing.T) {
	n, err := newNetwork(passthroughWeights())
	require.NoError(t, err)
	assert.Equal(t, 2, n.InputSize())

	score, err := n.Forward([]float64{0, 7})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-9, "sigmoid(0)*10-5")

	score, err = n.Forward([]float64{100, 0})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, score, 1e-6, "large logit saturates near the top")

	score, err = n.Forward([]float64{-100, 0})
	require.NoError(t, err)
	assert.InDelta(t, -5.0, score, 1e-6)
}

func TestForwardRejectsWrongInputSize(t *testing.T) {
	n, err := newNetwork(passthroughWeights())
	require.NoError(t, err)
	_, err = n.Forward([]float64{1})
	assert.Error(t, err)
	_, err = n.Forward([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestNewNetworkShapeValidation(t *testing.T) {
	w := passthroughWeights()
	w.Layer2.Bias = []float64{0, 0} // bias count must match output units
	_, err := newNetwork(w)
	assert.Error(t, err)

	w = passthroughWeights()
	w.Layer3 = layerWeights{Weight: [][]float64{{1}, {1}}, Bias: []float64{0, 0}}
	_, err = newNetwork(w)
	assert.Error(t, err, "output layer must be a single unit")

	w = passthroughWeights()
	w.Layer1 = layerWeights{}
	_, err = newNetwork(w)
	assert.Error(t, err)
}

func TestPrelu(t *testing.T) {
	// Per-channel slopes.
	got := prelu([]float64{-2, 3, -4}, []float64{0.5, 0.5, 0.1})
	assert.Equal(t, []float64{-1, 3, -0.4}, got)

	// Scalar slope broadcast.
	got = prelu([]float64{-2, -4}, []float64{0.5})
	assert.Equal(t, []float64{-1, -2}, got)

	// Missing slope defaults to 0.25.
	got = prelu([]float64{-4}, nil)
	assert.Equal(t, []float64{-1}, got)
}

func TestLoadNetwork(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorer.json")
	raw, err := json.Marshal(passthroughWeights())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	n, err := LoadNetwork(path)
	require.NoError(t, err)
	score, err := n.Forward([]float64{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-9)

	_, err = LoadNetwork(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
