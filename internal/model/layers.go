package model

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// activation transforms m in place. Rows are positions, columns channels.
type activation struct {
	name  string
	apply func(m *mat.Dense)
}

func parseActivation(name string) (activation, error) {
	switch strings.ToLower(name) {
	case "", "linear", "identity":
		return activation{name: "linear", apply: func(*mat.Dense) {}}, nil
	case "relu":
		return activation{name: "relu", apply: elementwise(func(x float64) float64 { return max(x, 0) })}, nil
	case "tanh":
		return activation{name: "tanh", apply: elementwise(math.Tanh)}, nil
	case "sigmoid", "logistic":
		return activation{name: "sigmoid", apply: elementwise(sigmoid)}, nil
	case "softmax":
		return activation{name: "softmax", apply: softmaxRows}, nil
	default:
		return activation{}, fmt.Errorf("unsupported activation %q", name)
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func elementwise(f func(float64) float64) func(*mat.Dense) {
	return func(m *mat.Dense) {
		m.Apply(func(_, _ int, v float64) float64 { return f(v) }, m)
	}
}

// softmaxRows normalises each row into a probability distribution.
func softmaxRows(m *mat.Dense) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		peak := math.Inf(-1)
		for j := 0; j < cols; j++ {
			peak = max(peak, m.At(i, j))
		}
		sum := 0.0
		for j := 0; j < cols; j++ {
			e := math.Exp(m.At(i, j) - peak)
			m.Set(i, j, e)
			sum += e
		}
		for j := 0; j < cols; j++ {
			m.Set(i, j, m.At(i, j)/sum)
		}
	}
}

func addBias(m *mat.Dense, bias []float64) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, m.At(i, j)+bias[j])
		}
	}
}

// layer is one inference step over a (steps, channels) activation matrix.
type layer interface {
	describe() string
	params() int
	forward(x *mat.Dense) (*mat.Dense, error)
}

func buildLayer(spec LayerSpec) (layer, error) {
	act, err := parseActivation(spec.Activation)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(spec.Type) {
	case "conv1d":
		return newConv1D(spec, act)
	case "maxpool1d", "maxpooling1d", "avgpool1d", "averagepooling1d":
		return newPool1D(spec)
	case "batchnorm", "batchnormalization":
		return newBatchNorm(spec)
	case "dense":
		return newDense(spec, act)
	case "flatten":
		return flatten{}, nil
	case "dropout":
		return dropout{}, nil
	case "activation":
		return activationLayer{act: act}, nil
	default:
		return nil, fmt.Errorf("unsupported layer type %q", spec.Type)
	}
}

func parsePadding(p string) (same bool, err error) {
	switch strings.ToLower(p) {
	case "", "valid":
		return false, nil
	case "same":
		return true, nil
	default:
		return false, fmt.Errorf("unsupported padding %q", p)
	}
}

// windowGeometry returns the output length and left padding of a sliding
// window, with TensorFlow's rules for "same" padding.
func windowGeometry(steps, size, stride int, same bool) (out, padLeft int, err error) {
	if same {
		out = (steps + stride - 1) / stride
		total := max((out-1)*stride+size-steps, 0)
		return out, total / 2, nil
	}
	if steps < size {
		return 0, 0, fmt.Errorf("window %d larger than input length %d", size, steps)
	}
	return (steps-size)/stride + 1, 0, nil
}

type conv1D struct {
	kernel  *mat.Dense // (size*in, filters)
	bias    []float64
	size    int
	in      int
	filters int
	stride  int
	same    bool
	act     activation
}

func newConv1D(spec LayerSpec, act activation) (*conv1D, error) {
	if spec.Kernel == nil {
		return nil, fmt.Errorf("conv1d: missing kernel")
	}
	if err := spec.Kernel.validate(3); err != nil {
		return nil, fmt.Errorf("conv1d: %w", err)
	}
	size, in, filters := spec.Kernel.Shape[0], spec.Kernel.Shape[1], spec.Kernel.Shape[2]
	bias := spec.Bias
	if bias == nil {
		bias = make([]float64, filters)
	}
	if len(bias) != filters {
		return nil, fmt.Errorf("conv1d: bias has %d values, want %d", len(bias), filters)
	}
	same, err := parsePadding(spec.Padding)
	if err != nil {
		return nil, fmt.Errorf("conv1d: %w", err)
	}
	stride := max(spec.Strides, 1)

	return &conv1D{
		kernel:  mat.NewDense(size*in, filters, spec.Kernel.Data),
		bias:    bias,
		size:    size,
		in:      in,
		filters: filters,
		stride:  stride,
		same:    same,
		act:     act,
	}, nil
}

func (l *conv1D) describe() string {
	return fmt.Sprintf("conv1d(%d, k=%d, s=%d, %s)", l.filters, l.size, l.stride, l.act.name)
}

func (l *conv1D) params() int { return l.size*l.in*l.filters + l.filters }

func (l *conv1D) forward(x *mat.Dense) (*mat.Dense, error) {
	steps, ch := x.Dims()
	if ch != l.in {
		return nil, fmt.Errorf("conv1d: expected %d input channels, got %d", l.in, ch)
	}
	out, padLeft, err := windowGeometry(steps, l.size, l.stride, l.same)
	if err != nil {
		return nil, fmt.Errorf("conv1d: %w", err)
	}

	// im2col: each row holds the receptive field of one output step.
	cols := mat.NewDense(out, l.size*l.in, nil)
	for t := 0; t < out; t++ {
		for k := 0; k < l.size; k++ {
			src := t*l.stride + k - padLeft
			if src < 0 || src >= steps {
				continue
			}
			for c := 0; c < l.in; c++ {
				cols.Set(t, k*l.in+c, x.At(src, c))
			}
		}
	}

	var y mat.Dense
	y.Mul(cols, l.kernel)
	addBias(&y, l.bias)
	l.act.apply(&y)
	return &y, nil
}

type pool1D struct {
	size   int
	stride int
	same   bool
	avg    bool
}

func newPool1D(spec LayerSpec) (*pool1D, error) {
	size := spec.PoolSize
	if size == 0 {
		size = 2
	}
	if size < 0 {
		return nil, fmt.Errorf("pool1d: invalid pool size %d", size)
	}
	stride := spec.Strides
	if stride <= 0 {
		stride = size
	}
	same, err := parsePadding(spec.Padding)
	if err != nil {
		return nil, fmt.Errorf("pool1d: %w", err)
	}
	return &pool1D{
		size:   size,
		stride: stride,
		same:   same,
		avg:    strings.HasPrefix(strings.ToLower(spec.Type), "av"),
	}, nil
}

func (l *pool1D) describe() string {
	kind := "maxpool1d"
	if l.avg {
		kind = "avgpool1d"
	}
	return fmt.Sprintf("%s(%d)", kind, l.size)
}

func (l *pool1D) params() int { return 0 }

func (l *pool1D) forward(x *mat.Dense) (*mat.Dense, error) {
	steps, ch := x.Dims()
	out, padLeft, err := windowGeometry(steps, l.size, l.stride, l.same)
	if err != nil {
		return nil, fmt.Errorf("pool1d: %w", err)
	}

	y := mat.NewDense(out, ch, nil)
	for t := 0; t < out; t++ {
		for c := 0; c < ch; c++ {
			acc := math.Inf(-1)
			if l.avg {
				acc = 0
			}
			n := 0
			for k := 0; k < l.size; k++ {
				src := t*l.stride + k - padLeft
				if src < 0 || src >= steps {
					continue
				}
				if l.avg {
					acc += x.At(src, c)
				} else {
					acc = max(acc, x.At(src, c))
				}
				n++
			}
			if l.avg {
				acc /= float64(n)
			}
			y.Set(t, c, acc)
		}
	}
	return y, nil
}

type batchNorm struct {
	scale []float64
	shift []float64
}

func newBatchNorm(spec LayerSpec) (*batchNorm, error) {
	n := len(spec.MovingMean)
	if n == 0 || len(spec.MovingVariance) != n {
		return nil, fmt.Errorf("batchnorm: moving statistics missing or mismatched")
	}
	gamma, beta := spec.Gamma, spec.Beta
	if gamma == nil {
		gamma = ones(n)
	}
	if beta == nil {
		beta = make([]float64, n)
	}
	if len(gamma) != n || len(beta) != n {
		return nil, fmt.Errorf("batchnorm: gamma/beta length mismatch")
	}
	eps := spec.Epsilon
	if eps == 0 {
		eps = 1e-3
	}

	bn := &batchNorm{scale: make([]float64, n), shift: make([]float64, n)}
	for i := 0; i < n; i++ {
		if spec.MovingVariance[i]+eps <= 0 {
			return nil, fmt.Errorf("batchnorm: non-positive variance at channel %d", i)
		}
		bn.scale[i] = gamma[i] / math.Sqrt(spec.MovingVariance[i]+eps)
		bn.shift[i] = beta[i] - spec.MovingMean[i]*bn.scale[i]
	}
	return bn, nil
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func (l *batchNorm) describe() string { return fmt.Sprintf("batchnorm(%d)", len(l.scale)) }

func (l *batchNorm) params() int { return 4 * len(l.scale) }

func (l *batchNorm) forward(x *mat.Dense) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols != len(l.scale) {
		return nil, fmt.Errorf("batchnorm: expected %d channels, got %d", len(l.scale), cols)
	}
	y := mat.NewDense(rows, cols, nil)
	y.Apply(func(_, j int, v float64) float64 { return v*l.scale[j] + l.shift[j] }, x)
	return y, nil
}

type dense struct {
	kernel *mat.Dense // (in, units)
	bias   []float64
	act    activation
}

func newDense(spec LayerSpec, act activation) (*dense, error) {
	if spec.Kernel == nil {
		return nil, fmt.Errorf("dense: missing kernel")
	}
	if err := spec.Kernel.validate(2); err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	in, units := spec.Kernel.Shape[0], spec.Kernel.Shape[1]
	bias := spec.Bias
	if bias == nil {
		bias = make([]float64, units)
	}
	if len(bias) != units {
		return nil, fmt.Errorf("dense: bias has %d values, want %d", len(bias), units)
	}
	return &dense{kernel: mat.NewDense(in, units, spec.Kernel.Data), bias: bias, act: act}, nil
}

func (l *dense) describe() string {
	_, units := l.kernel.Dims()
	return fmt.Sprintf("dense(%d, %s)", units, l.act.name)
}

func (l *dense) params() int {
	in, units := l.kernel.Dims()
	return in*units + units
}

// forward applies the kernel along the last axis, as Keras does.
func (l *dense) forward(x *mat.Dense) (*mat.Dense, error) {
	_, cols := x.Dims()
	in, _ := l.kernel.Dims()
	if cols != in {
		return nil, fmt.Errorf("dense: expected %d inputs, got %d", in, cols)
	}
	var y mat.Dense
	y.Mul(x, l.kernel)
	addBias(&y, l.bias)
	l.act.apply(&y)
	return &y, nil
}

// flatten reshapes (steps, channels) into a single row, steps-major.
type flatten struct{}

func (flatten) describe() string { return "flatten" }
func (flatten) params() int      { return 0 }

func (flatten) forward(x *mat.Dense) (*mat.Dense, error) {
	rows, cols := x.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, mat.Row(nil, i, x)...)
	}
	return mat.NewDense(1, rows*cols, data), nil
}

// dropout is the identity at inference time.
type dropout struct{}

func (dropout) describe() string { return "dropout" }
func (dropout) params() int      { return 0 }

func (dropout) forward(x *mat.Dense) (*mat.Dense, error) { return x, nil }

type activationLayer struct {
	act activation
}

func (l activationLayer) describe() string { return "activation(" + l.act.name + ")" }
func (activationLayer) params() int        { return 0 }

func (l activationLayer) forward(x *mat.Dense) (*mat.Dense, error) {
	y := mat.DenseCopyOf(x)
	l.act.apply(y)
	return y, nil
}
