// Package observability provides OpenTelemetry integration, an in-memory
// metrics collector and a JSON-lines process audit trail.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides observability features for process launches.
type Telemetry interface {
	// StartSpan starts a new trace span.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, func())

	// RecordLaunch increments the launch counter.
	RecordLaunch(labels map[string]string)

	// RecordDuration records a launch-to-reap duration in seconds.
	RecordDuration(seconds float64, labels map[string]string)

	// RecordError increments the error counter.
	RecordError(labels map[string]string)

	// AddActive adjusts the number of currently live children.
	AddActive(delta int64, labels map[string]string)
}

// SpanOption configures span creation.
type SpanOption func(*spanConfig)

type spanConfig struct {
	attributes []attribute.KeyValue
	kind       trace.SpanKind
}

// WithAttribute adds an attribute to the span.
func WithAttribute(key string, value interface{}) SpanOption {
	return func(c *spanConfig) {
		switch v := value.(type) {
		case string:
			c.attributes = append(c.attributes, attribute.String(key, v))
		case int:
			c.attributes = append(c.attributes, attribute.Int(key, v))
		case int64:
			c.attributes = append(c.attributes, attribute.Int64(key, v))
		case float64:
			c.attributes = append(c.attributes, attribute.Float64(key, v))
		case bool:
			c.attributes = append(c.attributes, attribute.Bool(key, v))
		}
	}
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(c *spanConfig) {
		c.kind = kind
	}
}

// TelemetryConfig configures telemetry.
type TelemetryConfig struct {
	// ServiceName is the service name for tracing.
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the service version.
	ServiceVersion string `yaml:"service_version"`

	// Environment is the deployment environment.
	Environment string `yaml:"environment"`

	// EnableTracing enables distributed tracing.
	EnableTracing bool `yaml:"enable_tracing"`

	// EnableMetrics enables metrics collection.
	EnableMetrics bool `yaml:"enable_metrics"`

	// MetricsPrefix is the prefix for all metrics.
	MetricsPrefix string `yaml:"metrics_prefix"`
}

// DefaultTelemetryConfig returns default configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		ServiceName:    "subproc",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		EnableTracing:  true,
		EnableMetrics:  true,
		MetricsPrefix:  "subproc_",
	}
}

// telemetry implements Telemetry.
type telemetry struct {
	config TelemetryConfig
	tracer trace.Tracer
	meter  metric.Meter

	launchCounter  metric.Int64Counter
	launchDuration metric.Float64Histogram
	activeChildren metric.Int64UpDownCounter
	errorCounter   metric.Int64Counter
}

// NewTelemetry creates a new telemetry instance.
func NewTelemetry(config TelemetryConfig) (Telemetry, error) {
	t := &telemetry{
		config: config,
		tracer: otel.Tracer(config.ServiceName),
		meter:  otel.Meter(config.ServiceName),
	}

	var err error

	t.launchCounter, err = t.meter.Int64Counter(
		config.MetricsPrefix+"launches_total",
		metric.WithDescription("Total number of child-process launches"),
	)
	if err != nil {
		return nil, err
	}

	t.launchDuration, err = t.meter.Float64Histogram(
		config.MetricsPrefix+"launch_duration_seconds",
		metric.WithDescription("Launch-to-reap duration of child processes"),
	)
	if err != nil {
		return nil, err
	}

	t.activeChildren, err = t.meter.Int64UpDownCounter(
		config.MetricsPrefix+"active_children",
		metric.WithDescription("Number of currently live child processes"),
	)
	if err != nil {
		return nil, err
	}

	t.errorCounter, err = t.meter.Int64Counter(
		config.MetricsPrefix+"errors_total",
		metric.WithDescription("Total number of launch and wait errors"),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// StartSpan implements Telemetry.StartSpan.
func (t *telemetry) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, func()) {
	if !t.config.EnableTracing {
		return ctx, func() {}
	}

	cfg := &spanConfig{
		kind: trace.SpanKindInternal,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, span := t.tracer.Start(ctx, name,
		trace.WithAttributes(cfg.attributes...),
		trace.WithSpanKind(cfg.kind),
	)

	return ctx, func() {
		span.End()
	}
}

// RecordLaunch implements Telemetry.RecordLaunch.
func (t *telemetry) RecordLaunch(labels map[string]string) {
	if !t.config.EnableMetrics {
		return
	}

	attrs := labelsToAttributes(labels)
	t.launchCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordDuration implements Telemetry.RecordDuration.
func (t *telemetry) RecordDuration(seconds float64, labels map[string]string) {
	if !t.config.EnableMetrics {
		return
	}

	attrs := labelsToAttributes(labels)
	t.launchDuration.Record(context.Background(), seconds, metric.WithAttributes(attrs...))
}

// RecordError implements Telemetry.RecordError.
func (t *telemetry) RecordError(labels map[string]string) {
	if !t.config.EnableMetrics {
		return
	}

	attrs := labelsToAttributes(labels)
	t.errorCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// AddActive implements Telemetry.AddActive.
func (t *telemetry) AddActive(delta int64, labels map[string]string) {
	if !t.config.EnableMetrics {
		return
	}

	attrs := labelsToAttributes(labels)
	t.activeChildren.Add(context.Background(), delta, metric.WithAttributes(attrs...))
}

// labelsToAttributes converts labels to OTEL attributes.
func labelsToAttributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// NoopTelemetry returns a no-op telemetry implementation.
func NoopTelemetry() Telemetry {
	return &noopTelemetry{}
}

type noopTelemetry struct{}

func (t *noopTelemetry) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, func()) {
	return ctx, func() {}
}

func (t *noopTelemetry) RecordLaunch(labels map[string]string)                    {}
func (t *noopTelemetry) RecordDuration(seconds float64, labels map[string]string) {}
func (t *noopTelemetry) RecordError(labels map[string]string)                     {}
func (t *noopTelemetry) AddActive(delta int64, labels map[string]string)          {}
