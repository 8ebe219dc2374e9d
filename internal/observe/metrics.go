// Package observe provides OpenTelemetry metrics for the emotion pipeline
// and HTTP layer. Instruments are exported in Prometheus text format through
// the handler returned by [InitProvider].
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all emotion metrics.
const meterName = "github.com/maauso/voice-emotion-api"

// Metrics holds the metric instruments for the application.
type Metrics struct {
	// StageDuration tracks pipeline stage latency. Attributes: stage, status.
	StageDuration metric.Float64Histogram

	// StageErrors counts failed pipeline stages. Attribute: stage.
	StageErrors metric.Int64Counter

	// Predictions counts successful classifications. Attributes: model, label.
	Predictions metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time.
	// Attributes: method, path, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Decoding a long
// upload through ffmpeg sits at the top end.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("emotion.stage.duration",
		metric.WithDescription("Latency of a classification pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("emotion.stage.errors",
		metric.WithDescription("Total failed pipeline stages by stage."),
	); err != nil {
		return nil, err
	}
	if met.Predictions, err = m.Int64Counter("emotion.predictions",
		metric.WithDescription("Total predictions by model and label."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("emotion.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordStage records the duration of one pipeline stage and, when err is
// non-nil, increments the stage error counter.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.StageErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
}

// RecordPrediction counts a successful prediction.
func (m *Metrics) RecordPrediction(ctx context.Context, variant, label string) {
	m.Predictions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", variant),
			attribute.String("label", label),
		),
	)
}
