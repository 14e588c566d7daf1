// Package telemetry wires OpenTelemetry tracing and metrics for recalld.
//
// When disabled (the default) every constructor returns no-op providers, so
// instrumented code paths pay nothing and never need nil checks.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	mnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tnoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// ProtocolGRPC exports OTLP over gRPC.
	ProtocolGRPC = "grpc"
	// ProtocolHTTP exports OTLP over http/protobuf.
	ProtocolHTTP = "http/protobuf"
)

// Config controls the OTLP export pipeline.
type Config struct {
	// Enabled turns telemetry export on. Default: false.
	Enabled bool `koanf:"enabled"`
	// Endpoint is the OTLP collector address, host:port. Default: localhost:4317.
	Endpoint string `koanf:"endpoint"`
	// Protocol selects the OTLP transport: grpc or http/protobuf. Default: grpc.
	Protocol string `koanf:"protocol"`
	// Insecure disables TLS on the exporter connection. Default: true.
	Insecure bool `koanf:"insecure"`
	// ServiceName identifies this process in traces. Default: recalld.
	ServiceName string `koanf:"service_name"`
	// ServiceVersion is attached to the resource. Default: dev.
	ServiceVersion string `koanf:"service_version"`
	// SampleRate is the trace sampling ratio in [0, 1]. Default: 1.0.
	SampleRate float64 `koanf:"sample_rate"`
	// MetricInterval is the periodic metric export interval. Default: 30s.
	MetricInterval time.Duration `koanf:"metric_interval"`
	// ShutdownTimeout bounds the final flush on shutdown. Default: 5s.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
		c.Insecure = true
	}
	if c.Protocol == "" {
		c.Protocol = ProtocolGRPC
	}
	if c.ServiceName == "" {
		c.ServiceName = "recalld"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	if c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP {
		return fmt.Errorf("telemetry.protocol must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be in [0, 1], got %v", c.SampleRate)
	}
	return nil
}

// Telemetry owns the tracer and meter providers for the process lifetime.
type Telemetry struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// New builds the export pipeline and installs it as the global OTel
// providers. A disabled config yields a Telemetry whose Tracer and Meter
// are no-ops and whose Shutdown does nothing.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}
	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("build tracer provider: %w", err)
	}
	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
		return nil, fmt.Errorf("build meter provider: %w", err)
	}
	t.tracerProvider = tp
	t.meterProvider = mp

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// Tracer returns a tracer scoped to name.
func (t *Telemetry) Tracer(name string) trace.Tracer {
	if t.tracerProvider == nil {
		return tnoop.NewTracerProvider().Tracer(name)
	}
	return t.tracerProvider.Tracer(name)
}

// Meter returns a meter scoped to name.
func (t *Telemetry) Meter(name string) metric.Meter {
	if t.meterProvider == nil {
		return mnoop.NewMeterProvider().Meter(name)
	}
	return t.meterProvider.Meter(name)
}

// Enabled reports whether an export pipeline is running.
func (t *Telemetry) Enabled() bool {
	return t.tracerProvider != nil
}

// ForceFlush drains buffered spans and metrics.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t.tracerProvider == nil {
		return nil
	}
	var errs []error
	if err := t.tracerProvider.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush traces: %w", err))
	}
	if err := t.meterProvider.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush metrics: %w", err))
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops both providers. Safe to call on a disabled
// Telemetry and safe to call more than once.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tracerProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown traces: %w", err))
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
	}
	t.tracerProvider = nil
	t.meterProvider = nil
	return errors.Join(errs...)
}

// stripScheme normalizes endpoints pasted with a URL scheme. The OTLP
// exporters want bare host:port.
func stripScheme(endpoint string) string {
	for _, prefix := range []string{"https://", "http://", "grpc://"} {
		if strings.HasPrefix(endpoint, prefix) {
			return strings.TrimPrefix(endpoint, prefix)
		}
	}
	return endpoint
}
