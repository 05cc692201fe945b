// Package telemetry provides tracing and metrics for template rendering.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/tmplhub/pkg/config"
)

const instrumentationName = "github.com/kart-io/tmplhub"

// Provider provides observability features
type Provider struct {
	config        config.TelemetryConfig
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Metrics
	renders        metric.Int64Counter
	renderFailures metric.Int64Counter
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	renderDuration metric.Float64Histogram
}

// Option configures a Provider.
type Option func(*Provider)

// WithTracerProvider uses tp instead of the global or OTLP tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Provider) {
		p.tracerProvider = tp
	}
}

// WithMeterProvider uses mp instead of the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Provider) {
		p.meterProvider = mp
	}
}

// New creates a provider. When cfg.Enabled is false and no providers are
// given, spans and metrics go to the global (by default no-op) providers.
func New(cfg config.TelemetryConfig, opts ...Option) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tmplhub"
	}
	p := &Provider{config: cfg}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.Enabled && p.tracerProvider == nil {
		if err := p.initTracing(); err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}
	if p.tracerProvider == nil {
		p.tracerProvider = otel.GetTracerProvider()
	}
	p.tracer = p.tracerProvider.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(cfg.ServiceVersion),
		trace.WithSchemaURL(semconv.SchemaURL),
	)

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return p, nil
}

// Noop returns a provider backed by the global providers.
func Noop() *Provider {
	p, err := New(config.TelemetryConfig{})
	if err != nil {
		panic(err)
	}
	return p
}

// initTracing initializes the OTLP/HTTP exporter and tracer provider
func (p *Provider) initTracing() error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(p.config.ServiceName),
			semconv.ServiceVersion(p.config.ServiceVersion),
			semconv.DeploymentEnvironment(p.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	clientOpts := []otlptracehttp.Option{
		otlptracehttp.WithHeaders(p.config.OTLPHeaders),
	}
	if p.config.OTLPEndpoint != "" {
		clientOpts = append(clientOpts, otlptracehttp.WithEndpointURL(p.config.OTLPEndpoint))
	}
	if p.config.Insecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(clientOpts...))
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}

	p.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(p.config.SampleRate)),
	)
	p.tracerProvider = p.traceProvider

	otel.SetTracerProvider(p.traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return nil
}

// initMetrics creates the render and cache instruments
func (p *Provider) initMetrics() error {
	mp := p.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	p.meter = mp.Meter(instrumentationName,
		metric.WithInstrumentationVersion(p.config.ServiceVersion),
		metric.WithSchemaURL(semconv.SchemaURL),
	)

	var err error

	p.renders, err = p.meter.Int64Counter(
		"tmplhub_renders_total",
		metric.WithDescription("Total number of template renders"),
	)
	if err != nil {
		return fmt.Errorf("create renders counter: %w", err)
	}

	p.renderFailures, err = p.meter.Int64Counter(
		"tmplhub_render_failures_total",
		metric.WithDescription("Total number of failed template renders"),
	)
	if err != nil {
		return fmt.Errorf("create render_failures counter: %w", err)
	}

	p.cacheHits, err = p.meter.Int64Counter(
		"tmplhub_cache_hits_total",
		metric.WithDescription("Render cache hits"),
	)
	if err != nil {
		return fmt.Errorf("create cache_hits counter: %w", err)
	}

	p.cacheMisses, err = p.meter.Int64Counter(
		"tmplhub_cache_misses_total",
		metric.WithDescription("Render cache misses"),
	)
	if err != nil {
		return fmt.Errorf("create cache_misses counter: %w", err)
	}

	p.renderDuration, err = p.meter.Float64Histogram(
		"tmplhub_render_duration_seconds",
		metric.WithDescription("Duration of template renders"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create render_duration histogram: %w", err)
	}

	return nil
}

// TraceRender starts a span for one render call
func (p *Provider) TraceRender(ctx context.Context, engine, template string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "tmplhub.render",
		trace.WithAttributes(
			attribute.String("tmplhub.engine", engine),
			attribute.String("tmplhub.template", template),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// RecordRender records the outcome and duration of a render
func (p *Provider) RecordRender(ctx context.Context, engine string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		p.renderFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", engine)))
	}
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("status", status),
	)
	p.renders.Add(ctx, 1, attrs)
	p.renderDuration.Record(ctx, duration.Seconds(), attrs)
}

// CacheHit records a render cache hit
func (p *Provider) CacheHit(ctx context.Context, namespace, backend string) {
	p.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
	trace.SpanFromContext(ctx).AddEvent("cache.hit", trace.WithAttributes(
		attribute.String("tmplhub.cache.namespace", namespace),
	))
}

// CacheMiss records a render cache miss
func (p *Provider) CacheMiss(ctx context.Context, namespace, backend string) {
	p.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
	trace.SpanFromContext(ctx).AddEvent("cache.miss", trace.WithAttributes(
		attribute.String("tmplhub.cache.namespace", namespace),
	))
}

// SetSpanError sets an error on the span
func (p *Provider) SetSpanError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks the span as successful
func (p *Provider) SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// Shutdown flushes and stops the exporter
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.traceProvider != nil {
		return p.traceProvider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the tracer instance
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter instance
func (p *Provider) Meter() metric.Meter {
	return p.meter
}
