// Package observe provides the OpenTelemetry metrics, tracing and HTTP
// middleware used by the detector service.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed in
// Prometheus format via [InitProvider]. Components receive a *[Metrics]
// explicitly; a nil *Metrics is valid and records nothing, which keeps the
// analysis core usable without any telemetry setup. Tests should build
// their own instance with [NewMetrics] and a ManualReader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics
const meterName = "github.com/RyanBlaney/sonido-voz"

// Metrics holds the metric instruments of the service. All fields are safe
// for concurrent use.
type Metrics struct {
	// AnalysisDuration tracks end-to-end analysis latency. Attribute:
	//   attribute.String("outcome", ...)
	AnalysisDuration metric.Float64Histogram

	// StageDuration tracks per-stage latency. Attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// Analyses counts finished analyses. Attributes:
	//   attribute.String("status", ...), attribute.String("reason", ...)
	Analyses metric.Int64Counter

	// AIPoints records the point total of every verdict
	AIPoints metric.Int64Histogram

	// ActiveAnalyses tracks analyses currently running
	ActiveAnalyses metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bounds in seconds sized for analyses of a
// few seconds of speech.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AnalysisDuration, err = m.Float64Histogram("sonido.analysis.duration",
		metric.WithDescription("End-to-end latency of a voice analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("sonido.stage.duration",
		metric.WithDescription("Latency of one analysis stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Analyses, err = m.Int64Counter("sonido.analyses",
		metric.WithDescription("Finished analyses by verdict status and failure reason."),
	); err != nil {
		return nil, err
	}
	if met.AIPoints, err = m.Int64Histogram("sonido.ai_points",
		metric.WithDescription("Heuristic points awarded per verdict."),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 4),
	); err != nil {
		return nil, err
	}
	if met.ActiveAnalyses, err = m.Int64UpDownCounter("sonido.active_analyses",
		metric.WithDescription("Number of analyses in progress."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sonido.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from the global meter provider. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String]
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the duration of one analysis stage
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("stage", stage)))
}

// RecordAnalysis records a finished analysis. reason is empty on success.
func (m *Metrics) RecordAnalysis(ctx context.Context, status, reason string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if reason != "" {
		outcome = "failure"
	}
	m.AnalysisDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("outcome", outcome)))
	m.Analyses.Add(ctx, 1, metric.WithAttributes(
		Attr("status", status),
		Attr("reason", reason),
	))
}

// RecordPoints records the point total of a verdict
func (m *Metrics) RecordPoints(ctx context.Context, points int) {
	if m == nil {
		return
	}
	m.AIPoints.Record(ctx, int64(points))
}

// TrackActive increments the in-progress gauge and returns the matching
// decrement.
func (m *Metrics) TrackActive(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.ActiveAnalyses.Add(ctx, 1)
	return func() { m.ActiveAnalyses.Add(ctx, -1) }
}
