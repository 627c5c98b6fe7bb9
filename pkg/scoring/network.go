package scoring

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Network is the engagement scorer: three linear layers with PReLU
// activations and a final sigmoid rescaled onto [-5, 5]. Weights come from a
// JSON export of the trained model (layer1/relu1/layer2/relu2/layer3).
type Network struct {
	layer1, layer2, layer3 linearLayer
	relu1, relu2           []float64
}

type linearLayer struct {
	// weight is row-major, one row per output unit.
	weight [][]float64
	bias   []float64
}

type layerWeights struct {
	Weight [][]float64 `json:"weight"`
	Bias   []float64   `json:"bias"`
}

type networkWeights struct {
	Layer1 layerWeights `json:"layer1"`
	Relu1  []float64    `json:"relu1"`
	Layer2 layerWeights `json:"layer2"`
	Relu2  []float64    `json:"relu2"`
	Layer3 layerWeights `json:"layer3"`
}

// LoadNetwork reads scorer weights from a JSON file.
func LoadNetwork(path string) (*Network, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scorer weights")
	}
	var w networkWeights
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(err, "decode scorer weights")
	}
	return newNetwork(w)
}

func newNetwork(w networkWeights) (*Network, error) {
	n := &Network{
		layer1: linearLayer{weight: w.Layer1.Weight, bias: w.Layer1.Bias},
		layer2: linearLayer{weight: w.Layer2.Weight, bias: w.Layer2.Bias},
		layer3: linearLayer{weight: w.Layer3.Weight, bias: w.Layer3.Bias},
		relu1:  w.Relu1,
		relu2:  w.Relu2,
	}
	for _, l := range []linearLayer{n.layer1, n.layer2, n.layer3} {
		if len(l.weight) == 0 || len(l.weight) != len(l.bias) {
			return nil, errors.New("scorer weights: inconsistent layer shape")
		}
	}
	if len(n.layer3.weight) != 1 {
		return nil, errors.New("scorer weights: output layer must have one unit")
	}
	return n, nil
}

// InputSize returns the embedding dimension the network expects.
func (n *Network) InputSize() int {
	return len(n.layer1.weight[0])
}

// Forward scores one embedding. The sigmoid output is rescaled so the result
// lies in (-5, 5).
func (n *Network) Forward(x []float64) (float64, error) {
	if len(x) != n.InputSize() {
		return 0, errors.Errorf("embedding size %d, scorer expects %d", len(x), n.InputSize())
	}
	h := prelu(n.layer1.apply(x), n.relu1)
	h = prelu(n.layer2.apply(h), n.relu2)
	z := n.layer3.apply(h)[0]
	return sigmoid(z)*10 - 5, nil
}

func (l linearLayer) apply(x []float64) []float64 {
	out := make([]float64, len(l.weight))
	for i, row := range l.weight {
		sum := l.bias[i]
		for j, w := range row {
			sum += w * x[j]
		}
		out[i] = sum
	}
	return out
}

// prelu applies y = x for x >= 0, a*x otherwise. The slope is per-channel
// when the export carries one value per unit, scalar otherwise.
func prelu(x []float64, slope []float64) []float64 {
	for i, v := range x {
		if v < 0 {
			a := 0.25
			switch {
			case len(slope) == len(x):
				a = slope[i]
			case len(slope) > 0:
				a = slope[0]
			}
			x[i] = a * v
		}
	}
	return x
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
