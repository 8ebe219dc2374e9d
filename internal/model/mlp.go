package model

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/maauso/voice-emotion-api/internal/emotion"
	"github.com/maauso/voice-emotion-api/internal/feature"
)

// MLP is a shallow fully connected classifier with softmax output.
type MLP struct {
	name    string
	weights []*mat.Dense
	biases  [][]float64
	hidden  activation
	classes []int
}

// NewMLP validates an artifact and builds the network.
func NewMLP(a MLPArtifact) (*MLP, error) {
	if a.Format != FormatMLP {
		return nil, fmt.Errorf("%w: unexpected format %q, want %q", ErrModelLoad, a.Format, FormatMLP)
	}
	if len(a.Coefs) == 0 || len(a.Coefs) != len(a.Intercepts) {
		return nil, fmt.Errorf("%w: mlp needs matching coefs and intercepts, got %d and %d",
			ErrModelLoad, len(a.Coefs), len(a.Intercepts))
	}
	if out := strings.ToLower(a.OutActivation); out != "" && out != "softmax" {
		return nil, fmt.Errorf("%w: mlp output activation must be softmax, got %q", ErrModelLoad, a.OutActivation)
	}
	hidden, err := parseActivation(a.Activation)
	if err != nil || hidden.name == "softmax" {
		return nil, fmt.Errorf("%w: mlp hidden activation %q not supported", ErrModelLoad, a.Activation)
	}

	m := &MLP{name: a.Name, hidden: hidden}
	width := feature.Coefficients
	for i, coef := range a.Coefs {
		if err := coef.validate(2); err != nil {
			return nil, fmt.Errorf("%w: coefs[%d]: %w", ErrModelLoad, i, err)
		}
		in, out := coef.Shape[0], coef.Shape[1]
		if in != width {
			return nil, fmt.Errorf("%w: coefs[%d] expects %d inputs, previous layer gives %d", ErrModelLoad, i, in, width)
		}
		if len(a.Intercepts[i]) != out {
			return nil, fmt.Errorf("%w: intercepts[%d] has %d values, want %d", ErrModelLoad, i, len(a.Intercepts[i]), out)
		}
		m.weights = append(m.weights, mat.NewDense(in, out, coef.Data))
		m.biases = append(m.biases, a.Intercepts[i])
		width = out
	}
	if width != emotion.NumClasses {
		return nil, fmt.Errorf("%w: mlp has %d outputs, want %d", ErrModelLoad, width, emotion.NumClasses)
	}

	classes, err := classPermutation(a.Classes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	m.classes = classes
	return m, nil
}

// classPermutation validates the column-to-class mapping. An empty mapping
// means columns are already in class order.
func classPermutation(classes []int) ([]int, error) {
	if len(classes) == 0 {
		out := make([]int, emotion.NumClasses)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	if len(classes) != emotion.NumClasses {
		return nil, fmt.Errorf("classes has %d entries, want %d", len(classes), emotion.NumClasses)
	}
	var seen [emotion.NumClasses]bool
	for _, c := range classes {
		if c < 0 || c >= emotion.NumClasses || seen[c] {
			return nil, fmt.Errorf("classes %v is not a permutation of 0..%d", classes, emotion.NumClasses-1)
		}
		seen[c] = true
	}
	return append([]int(nil), classes...), nil
}

// Variant implements Classifier.
func (m *MLP) Variant() Variant { return VariantMLP }

// PredictDistribution implements Classifier.
func (m *MLP) PredictDistribution(v feature.Vector) ([]float64, error) {
	x := mat.NewDense(1, feature.Coefficients, v.Slice())
	last := len(m.weights) - 1
	for i, w := range m.weights {
		var y mat.Dense
		y.Mul(x, w)
		addBias(&y, m.biases[i])
		if i < last {
			m.hidden.apply(&y)
		} else {
			softmaxRows(&y)
		}
		x = &y
	}

	dist := make([]float64, emotion.NumClasses)
	for j, c := range m.classes {
		dist[c] = x.At(0, j)
	}
	if err := checkDistribution(dist); err != nil {
		return nil, err
	}
	return dist, nil
}

// PredictLabel implements Classifier.
func (m *MLP) PredictLabel(v feature.Vector) (int, error) {
	return predictLabel(m, v)
}

// Describe implements Describer.
func (m *MLP) Describe() Description {
	d := Description{Name: m.name}
	for i, w := range m.weights {
		in, out := w.Dims()
		act := m.hidden.name
		if i == len(m.weights)-1 {
			act = "softmax"
		}
		d.Layers = append(d.Layers, fmt.Sprintf("dense(%d, %s)", out, act))
		d.Params += in*out + out
	}
	return d
}

var (
	_ Classifier = (*MLP)(nil)
	_ Describer  = (*MLP)(nil)
)
