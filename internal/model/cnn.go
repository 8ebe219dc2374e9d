package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/maauso/voice-emotion-api/internal/emotion"
	"github.com/maauso/voice-emotion-api/internal/feature"
)

// CNN is a one-dimensional convolutional classifier evaluated over the
// feature vector as a (40, 1) sequence.
type CNN struct {
	name   string
	layers []layer
}

// NewCNN validates an artifact and builds the network.
// The last layer must produce NumClasses softmax outputs for a single row.
func NewCNN(a CNNArtifact) (*CNN, error) {
	if a.Format != FormatCNN {
		return nil, fmt.Errorf("%w: unexpected format %q, want %q", ErrModelLoad, a.Format, FormatCNN)
	}
	if len(a.Layers) == 0 {
		return nil, fmt.Errorf("%w: cnn artifact has no layers", ErrModelLoad)
	}

	c := &CNN{name: a.Name, layers: make([]layer, 0, len(a.Layers))}
	for i, spec := range a.Layers {
		l, err := buildLayer(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %d: %w", ErrModelLoad, i, err)
		}
		c.layers = append(c.layers, l)
	}
	if !endsInSoftmax(c.layers) {
		return nil, fmt.Errorf("%w: cnn output layer must use softmax", ErrModelLoad)
	}

	// A dry run proves the layer shapes chain from input to output.
	out, err := c.forward(feature.Vector{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	if r, cols := out.Dims(); r != 1 || cols != emotion.NumClasses {
		return nil, fmt.Errorf("%w: cnn output shape (%d, %d), want (1, %d)", ErrModelLoad, r, cols, emotion.NumClasses)
	}
	return c, nil
}

func endsInSoftmax(layers []layer) bool {
	for i := len(layers) - 1; i >= 0; i-- {
		switch l := layers[i].(type) {
		case dropout, flatten:
			continue
		case activationLayer:
			return l.act.name == "softmax"
		case *dense:
			return l.act.name == "softmax"
		default:
			return false
		}
	}
	return false
}

// Variant implements Classifier.
func (c *CNN) Variant() Variant { return VariantCNN }

// PredictDistribution implements Classifier.
func (c *CNN) PredictDistribution(v feature.Vector) ([]float64, error) {
	out, err := c.forward(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrediction, err)
	}
	dist := mat.Row(nil, 0, out)
	if err := checkDistribution(dist); err != nil {
		return nil, err
	}
	return dist, nil
}

// PredictLabel implements Classifier.
func (c *CNN) PredictLabel(v feature.Vector) (int, error) {
	return predictLabel(c, v)
}

// Describe implements Describer.
func (c *CNN) Describe() Description {
	d := Description{Name: c.name, Layers: make([]string, 0, len(c.layers))}
	for _, l := range c.layers {
		d.Layers = append(d.Layers, l.describe())
		d.Params += l.params()
	}
	return d
}

func (c *CNN) forward(v feature.Vector) (*mat.Dense, error) {
	x := mat.NewDense(feature.Coefficients, 1, v.Slice())
	for i, l := range c.layers {
		var err error
		if x, err = l.forward(x); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return x, nil
}

var (
	_ Classifier = (*CNN)(nil)
	_ Describer  = (*CNN)(nil)
)
