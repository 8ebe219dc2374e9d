package model_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/voice-emotion-api/internal/emotion"
	"github.com/maauso/voice-emotion-api/internal/feature"
	"github.com/maauso/voice-emotion-api/internal/model"
	"github.com/maauso/voice-emotion-api/internal/model/modeltest"
	"github.com/maauso/voice-emotion-api/internal/storage"
)

// mockStore implements storage.ArtifactStore for testing.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return io.NopCloser(bytes.NewReader(args.Get(0).([]byte))), args.Error(1)
}

func sampleVectors() []feature.Vector {
	var zero, ramp, speechLike feature.Vector
	for i := range ramp {
		ramp[i] = float64(i) / 10
		speechLike[i] = 20 * math.Cos(float64(i))
	}
	speechLike[0] = -350
	return []feature.Vector{zero, ramp, speechLike}
}

func buildClassifiers(t *testing.T) []model.Classifier {
	t.Helper()
	cnn, err := model.NewCNN(modeltest.CNN(1))
	require.NoError(t, err)
	mlp, err := model.NewMLP(modeltest.MLP(2))
	require.NoError(t, err)
	return []model.Classifier{cnn, mlp}
}

func TestParseVariant(t *testing.T) {
	v, err := model.ParseVariant("CNN")
	require.NoError(t, err)
	assert.Equal(t, model.VariantCNN, v)

	v, err = model.ParseVariant(" mlp ")
	require.NoError(t, err)
	assert.Equal(t, model.VariantMLP, v)

	_, err = model.ParseVariant("svm")
	assert.ErrorIs(t, err, model.ErrUnknownVariant)
}

func TestClassifiers_DistributionIsValid(t *testing.T) {
	for _, clf := range buildClassifiers(t) {
		t.Run(string(clf.Variant()), func(t *testing.T) {
			for _, v := range sampleVectors() {
				dist, err := clf.PredictDistribution(v)
				require.NoError(t, err)
				require.Len(t, dist, emotion.NumClasses)

				sum := 0.0
				for _, p := range dist {
					assert.GreaterOrEqual(t, p, 0.0)
					sum += p
				}
				assert.InDelta(t, 1.0, sum, 1e-3)
			}
		})
	}
}

func TestClassifiers_LabelIsArgMax(t *testing.T) {
	for _, clf := range buildClassifiers(t) {
		t.Run(string(clf.Variant()), func(t *testing.T) {
			for _, v := range sampleVectors() {
				dist, err := clf.PredictDistribution(v)
				require.NoError(t, err)
				label, err := clf.PredictLabel(v)
				require.NoError(t, err)
				assert.Equal(t, emotion.ArgMax(dist), label)
			}
		})
	}
}

func TestClassifiers_Deterministic(t *testing.T) {
	v := sampleVectors()[2]
	for _, clf := range buildClassifiers(t) {
		a, err := clf.PredictDistribution(v)
		require.NoError(t, err)
		b, err := clf.PredictDistribution(v)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestClassifiers_NonFiniteInputFails(t *testing.T) {
	var v feature.Vector
	v[3] = math.NaN()
	for _, clf := range buildClassifiers(t) {
		_, err := clf.PredictDistribution(v)
		assert.ErrorIs(t, err, model.ErrPrediction, "variant %s", clf.Variant())
		_, err = clf.PredictLabel(v)
		assert.ErrorIs(t, err, model.ErrPrediction, "variant %s", clf.Variant())
	}
}

func TestMLP_ClassesReorderOutputs(t *testing.T) {
	// A network whose output column j is a constant logit j.
	art := model.MLPArtifact{
		Format:     model.FormatMLP,
		Activation: "relu",
		Coefs:      []model.Tensor{{Shape: []int{40, 8}, Data: make([]float64, 320)}},
		Intercepts: [][]float64{{0, 1, 2, 3, 4, 5, 6, 7}},
	}

	identity, err := model.NewMLP(art)
	require.NoError(t, err)
	label, err := identity.PredictLabel(feature.Vector{})
	require.NoError(t, err)
	assert.Equal(t, int(emotion.Surprise), label)

	art.Classes = modeltest.SortedClasses
	sorted, err := model.NewMLP(art)
	require.NoError(t, err)
	label, err = sorted.PredictLabel(feature.Vector{})
	require.NoError(t, err)
	// Column 7 is "surprise" in sorted order as well.
	assert.Equal(t, int(emotion.Surprise), label)

	art.Intercepts = [][]float64{{9, 1, 2, 3, 4, 5, 6, 7}}
	sorted, err = model.NewMLP(art)
	require.NoError(t, err)
	label, err = sorted.PredictLabel(feature.Vector{})
	require.NoError(t, err)
	// Column 0 is "angry".
	assert.Equal(t, int(emotion.Angry), label)

	dist, err := sorted.PredictDistribution(feature.Vector{})
	require.NoError(t, err)
	assert.Greater(t, dist[emotion.Angry], dist[emotion.Neutral])
}

func TestNewCNN_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *model.CNNArtifact)
	}{
		{"wrong format", func(a *model.CNNArtifact) { a.Format = "other" }},
		{"no layers", func(a *model.CNNArtifact) { a.Layers = nil }},
		{"unknown layer", func(a *model.CNNArtifact) { a.Layers[3].Type = "lstm" }},
		{"unknown activation", func(a *model.CNNArtifact) { a.Layers[0].Activation = "gelu" }},
		{"bad kernel size", func(a *model.CNNArtifact) { a.Layers[0].Kernel.Data = a.Layers[0].Kernel.Data[:3] }},
		{"shape mismatch", func(a *model.CNNArtifact) { a.Layers[4].Type = "dropout" }},
		{"no softmax", func(a *model.CNNArtifact) { a.Layers = a.Layers[:len(a.Layers)-1] }},
		{"wrong outputs", func(a *model.CNNArtifact) {
			a.Layers[6].Kernel = &model.Tensor{Shape: []int{16, 7}, Data: make([]float64, 112)}
			a.Layers[6].Bias = make([]float64, 7)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art := modeltest.CNN(1)
			tt.mutate(&art)
			_, err := model.NewCNN(art)
			assert.ErrorIs(t, err, model.ErrModelLoad)
		})
	}
}

func TestNewMLP_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *model.MLPArtifact)
	}{
		{"wrong format", func(a *model.MLPArtifact) { a.Format = model.FormatCNN }},
		{"missing intercepts", func(a *model.MLPArtifact) { a.Intercepts = a.Intercepts[:1] }},
		{"bad activation", func(a *model.MLPArtifact) { a.Activation = "softmax" }},
		{"bad output activation", func(a *model.MLPArtifact) { a.OutActivation = "logistic" }},
		{"wrong input width", func(a *model.MLPArtifact) {
			a.Coefs[0] = model.Tensor{Shape: []int{39, 32}, Data: make([]float64, 39*32)}
		}},
		{"classes not a permutation", func(a *model.MLPArtifact) { a.Classes = []int{0, 0, 1, 2, 3, 4, 5, 6} }},
		{"classes wrong length", func(a *model.MLPArtifact) { a.Classes = []int{0, 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art := modeltest.MLP(2)
			tt.mutate(&art)
			_, err := model.NewMLP(art)
			assert.ErrorIs(t, err, model.ErrModelLoad)
		})
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	cnnData, err := modeltest.CNN(1).Marshal()
	require.NoError(t, err)
	mlpData, err := modeltest.MLP(2).Marshal()
	require.NoError(t, err)

	store := &mockStore{}
	store.On("Open", mock.Anything, "cnn.msgpack").Return(cnnData, nil)
	store.On("Open", mock.Anything, "mlp.msgpack").Return(mlpData, nil)

	cnn, err := model.Load(context.Background(), store, model.VariantCNN, "cnn.msgpack")
	require.NoError(t, err)
	assert.Equal(t, model.VariantCNN, cnn.Variant())

	mlp, err := model.Load(context.Background(), store, model.VariantMLP, "mlp.msgpack")
	require.NoError(t, err)
	assert.Equal(t, model.VariantMLP, mlp.Variant())

	// Decoded networks behave exactly like the in-memory ones.
	want := buildClassifiers(t)
	v := sampleVectors()[2]
	for i, got := range []model.Classifier{cnn, mlp} {
		a, err := want[i].PredictDistribution(v)
		require.NoError(t, err)
		b, err := got.PredictDistribution(v)
		require.NoError(t, err)
		assert.InDeltaSlice(t, a, b, 1e-12)
	}
}

func TestLoad_Failures(t *testing.T) {
	cnnData, err := modeltest.CNN(1).Marshal()
	require.NoError(t, err)

	store := &mockStore{}
	store.On("Open", mock.Anything, "missing").Return(nil, storage.ErrNotFound)
	store.On("Open", mock.Anything, "corrupt").Return([]byte{0xc1, 0x00, 0xff}, nil)
	store.On("Open", mock.Anything, "truncated").Return(cnnData[:len(cnnData)/2], nil)
	store.On("Open", mock.Anything, "cnn").Return(cnnData, nil)

	tests := []struct {
		name    string
		variant model.Variant
		key     string
	}{
		{"missing file", model.VariantCNN, "missing"},
		{"corrupt bytes", model.VariantCNN, "corrupt"},
		{"truncated artifact", model.VariantCNN, "truncated"},
		{"cnn artifact as mlp", model.VariantMLP, "cnn"},
		{"unknown variant", model.Variant("svm"), "cnn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.Load(context.Background(), store, tt.variant, tt.key)
			assert.ErrorIs(t, err, model.ErrModelLoad)
		})
	}
}

func TestRegistry_LoadsOnceAndIsolatesFailures(t *testing.T) {
	cnnData, err := modeltest.CNN(1).Marshal()
	require.NoError(t, err)

	store := &mockStore{}
	store.On("Open", mock.Anything, "cnn.msgpack").Return(cnnData, nil).Once()
	store.On("Open", mock.Anything, "mlp.msgpack").Return(nil, storage.ErrNotFound).Once()

	reg := model.NewRegistry(store, map[model.Variant]string{
		model.VariantCNN: "cnn.msgpack",
		model.VariantMLP: "mlp.msgpack",
	})

	for _, s := range reg.Status() {
		assert.False(t, s.Attempted)
	}

	err = reg.Preload(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrModelLoad)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clf, err := reg.Get(context.Background(), model.VariantCNN)
			assert.NoError(t, err)
			assert.NotNil(t, clf)

			_, err = reg.Get(context.Background(), model.VariantMLP)
			assert.ErrorIs(t, err, model.ErrModelLoad)
			assert.True(t, errors.Is(err, storage.ErrNotFound))
		}()
	}
	wg.Wait()

	status := reg.Status()
	require.Len(t, status, 2)
	assert.True(t, status[0].Loaded)
	require.NotNil(t, status[0].Description)
	assert.NotEmpty(t, status[0].Description.Layers)
	assert.False(t, status[1].Loaded)
	assert.True(t, status[1].Attempted)
	assert.NotEmpty(t, status[1].Error)

	store.AssertExpectations(t)
}

func TestRegistry_RetriesAfterCancelledLoad(t *testing.T) {
	cnnData, err := modeltest.CNN(1).Marshal()
	require.NoError(t, err)

	store := &mockStore{}
	store.On("Open", mock.Anything, "cnn.msgpack").Return(nil, context.Canceled).Once()
	store.On("Open", mock.Anything, "cnn.msgpack").Return(cnnData, nil).Once()

	reg := model.NewRegistry(store, map[model.Variant]string{model.VariantCNN: "cnn.msgpack"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = reg.Get(ctx, model.VariantCNN)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, reg.Status()[0].Attempted)

	clf, err := reg.Get(context.Background(), model.VariantCNN)
	require.NoError(t, err)
	assert.NotNil(t, clf)
	assert.True(t, reg.Status()[0].Loaded)

	store.AssertExpectations(t)
}

func TestRegistry_WithClassifier(t *testing.T) {
	clfs := buildClassifiers(t)
	reg := model.NewRegistry(nil, nil, model.WithClassifier(clfs[0]))

	got, err := reg.Get(context.Background(), model.VariantCNN)
	require.NoError(t, err)
	assert.Same(t, clfs[0], got)

	_, err = reg.Get(context.Background(), model.VariantMLP)
	assert.ErrorIs(t, err, model.ErrModelLoad)

	_, err = reg.Get(context.Background(), model.Variant("svm"))
	assert.ErrorIs(t, err, model.ErrUnknownVariant)
}
