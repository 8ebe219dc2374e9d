package model

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Artifact format tags.
const (
	FormatCNN = "emotion-cnn/v1"
	FormatMLP = "emotion-mlp/v1"
)

// Tensor is a dense row-major weight array.
type Tensor struct {
	Shape []int     `msgpack:"shape"`
	Data  []float64 `msgpack:"data"`
}

func (t Tensor) validate(dims int) error {
	if len(t.Shape) != dims {
		return fmt.Errorf("expected %d-D tensor, got shape %v", dims, t.Shape)
	}
	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("invalid tensor shape %v", t.Shape)
		}
		n *= d
	}
	if n != len(t.Data) {
		return fmt.Errorf("tensor shape %v needs %d values, got %d", t.Shape, n, len(t.Data))
	}
	return nil
}

// LayerSpec describes one layer of a CNN artifact. Weight layouts follow
// Keras: conv kernels are (size, in, filters), dense kernels (in, units).
type LayerSpec struct {
	Type       string    `msgpack:"type"`
	Activation string    `msgpack:"activation,omitempty"`
	Padding    string    `msgpack:"padding,omitempty"`
	Strides    int       `msgpack:"strides,omitempty"`
	PoolSize   int       `msgpack:"pool_size,omitempty"`
	Kernel     *Tensor   `msgpack:"kernel,omitempty"`
	Bias       []float64 `msgpack:"bias,omitempty"`

	Gamma          []float64 `msgpack:"gamma,omitempty"`
	Beta           []float64 `msgpack:"beta,omitempty"`
	MovingMean     []float64 `msgpack:"moving_mean,omitempty"`
	MovingVariance []float64 `msgpack:"moving_variance,omitempty"`
	Epsilon        float64   `msgpack:"epsilon,omitempty"`

	Rate float64 `msgpack:"rate,omitempty"`
}

// CNNArtifact is the serialised convolutional classifier. The network
// input is the feature vector as a (40, 1) sequence.
type CNNArtifact struct {
	Format string      `msgpack:"format"`
	Name   string      `msgpack:"name,omitempty"`
	Layers []LayerSpec `msgpack:"layers"`
}

// MLPArtifact is the serialised feed-forward classifier.
// Coefs[i] has shape (in, out). Classes maps output column j to the
// emotion index Classes[j].
type MLPArtifact struct {
	Format        string      `msgpack:"format"`
	Name          string      `msgpack:"name,omitempty"`
	Activation    string      `msgpack:"activation"`
	OutActivation string      `msgpack:"out_activation,omitempty"`
	Coefs         []Tensor    `msgpack:"coefs"`
	Intercepts    [][]float64 `msgpack:"intercepts"`
	Classes       []int       `msgpack:"classes"`
}

// Marshal encodes the artifact, stamping its format tag.
func (a CNNArtifact) Marshal() ([]byte, error) {
	a.Format = FormatCNN
	return msgpack.Marshal(&a)
}

// Marshal encodes the artifact, stamping its format tag.
func (a MLPArtifact) Marshal() ([]byte, error) {
	a.Format = FormatMLP
	return msgpack.Marshal(&a)
}

// ReadCNN decodes and validates a CNN artifact.
func ReadCNN(r io.Reader) (*CNN, error) {
	var a CNNArtifact
	if err := msgpack.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decode cnn artifact: %w", ErrModelLoad, err)
	}
	return NewCNN(a)
}

// ReadMLP decodes and validates an MLP artifact.
func ReadMLP(r io.Reader) (*MLP, error) {
	var a MLPArtifact
	if err := msgpack.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decode mlp artifact: %w", ErrModelLoad, err)
	}
	return NewMLP(a)
}
