// Package modeltest builds small deterministic model artifacts for tests.
package modeltest

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/maauso/voice-emotion-api/internal/model"
)

// SortedClasses maps the columns of a classifier trained on alphabetically
// sorted label names (angry, calm, disgust, fear, happy, neutral, sad,
// surprise) to emotion indices.
var SortedClasses = []int{4, 1, 6, 5, 2, 0, 3, 7}

func weights(rng *rand.Rand, n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * scale
	}
	return out
}

// CNN returns a small conv → pool → dense network over the (40, 1) input.
func CNN(seed uint64) model.CNNArtifact {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return model.CNNArtifact{
		Format: model.FormatCNN,
		Name:   "test-cnn",
		Layers: []model.LayerSpec{
			{
				Type:       "conv1d",
				Activation: "relu",
				Padding:    "same",
				Kernel:     &model.Tensor{Shape: []int{5, 1, 4}, Data: weights(rng, 20, 0.01)},
				Bias:       weights(rng, 4, 0.1),
			},
			{
				Type:           "batchnorm",
				Gamma:          []float64{1, 1, 1, 1},
				Beta:           []float64{0, 0, 0, 0},
				MovingMean:     []float64{0.5, 0.5, 0.5, 0.5},
				MovingVariance: []float64{4, 4, 4, 4},
				Epsilon:        1e-3,
			},
			{Type: "maxpool1d", PoolSize: 2},
			{Type: "dropout", Rate: 0.2},
			{Type: "flatten"},
			{
				Type:       "dense",
				Activation: "tanh",
				Kernel:     &model.Tensor{Shape: []int{80, 16}, Data: weights(rng, 80*16, 0.1)},
				Bias:       weights(rng, 16, 0.1),
			},
			{
				Type:   "dense",
				Kernel: &model.Tensor{Shape: []int{16, 8}, Data: weights(rng, 16*8, 1)},
				Bias:   weights(rng, 8, 0.1),
			},
			{Type: "activation", Activation: "softmax"},
		},
	}
}

// MLP returns a one-hidden-layer network with alphabetically ordered
// output columns.
func MLP(seed uint64) model.MLPArtifact {
	rng := rand.New(rand.NewPCG(seed, seed^0xbf58476d1ce4e5b9))
	return model.MLPArtifact{
		Format:        model.FormatMLP,
		Name:          "test-mlp",
		Activation:    "logistic",
		OutActivation: "softmax",
		Coefs: []model.Tensor{
			{Shape: []int{40, 32}, Data: weights(rng, 40*32, 0.01)},
			{Shape: []int{32, 8}, Data: weights(rng, 32*8, 1)},
		},
		Intercepts: [][]float64{weights(rng, 32, 0.1), weights(rng, 8, 0.1)},
		Classes:    SortedClasses,
	}
}

// WriteArtifacts encodes both fixtures into dir and returns their paths.
func WriteArtifacts(t testing.TB, dir string) (cnnPath, mlpPath string) {
	t.Helper()

	cnnData, err := CNN(1).Marshal()
	if err != nil {
		t.Fatalf("marshal cnn: %v", err)
	}
	mlpData, err := MLP(2).Marshal()
	if err != nil {
		t.Fatalf("marshal mlp: %v", err)
	}

	cnnPath = filepath.Join(dir, "cnn.msgpack")
	mlpPath = filepath.Join(dir, "mlp.msgpack")
	if err := os.WriteFile(cnnPath, cnnData, 0600); err != nil {
		t.Fatalf("write cnn: %v", err)
	}
	if err := os.WriteFile(mlpPath, mlpData, 0600); err != nil {
		t.Fatalf("write mlp: %v", err)
	}
	return cnnPath, mlpPath
}
