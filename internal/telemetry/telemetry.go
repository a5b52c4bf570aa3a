package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/slopescout/brain/internal/redact"
)

const instrumentationName = "scout-brain"

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

// Provider wires tracer/meter providers and exposes helpers.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	postsCounter          metric.Int64Counter
	demotionsCounter      metric.Int64Counter
	inputErrorsCounter    metric.Int64Counter
	fallbacksCounter      metric.Int64Counter
	batchDuration         metric.Float64Histogram
	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// Noop returns a disabled provider.
func Noop() *Provider {
	p := &Provider{
		Enabled: false,
		tracer:  tracenoop.NewTracerProvider().Tracer(""),
		meter:   noop.NewMeterProvider().Meter(""),
	}
	p.initInstruments()
	return p
}

// NewProvider configures OTEL exporters + providers. When disabled, returns no-op providers.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		return Noop(), nil
	}

	protocol := strings.ToLower(cfg.Protocol)
	if protocol != "" && protocol != "grpc" && protocol != "http" {
		return nil, fmt.Errorf("telemetry: unsupported protocol %q", cfg.Protocol)
	}

	redact.Logf("telemetry enabled (OpenTelemetry OTLP %s) endpoint=%s", protocol, cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var traceExp sdktrace.SpanExporter
	var metricExp sdkmetric.Exporter
	switch protocol {
	case "", "grpc":
		traceExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		metricExp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
	case "http":
		traceExp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, err
		}
		metricExp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, err
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetMeterProvider(mp)

	p := &Provider{
		Enabled:               true,
		tracer:                tp.Tracer(instrumentationName),
		meter:                 mp.Meter(instrumentationName),
		shutdownTraceProvider: tp.Shutdown,
		shutdownMeterProvider: mp.Shutdown,
	}
	p.initInstruments()
	return p, nil
}

func (p *Provider) initInstruments() {
	if p == nil {
		return
	}
	// Use meter to create instruments; ignore errors to keep telemetry best-effort.
	p.postsCounter, _ = p.meter.Int64Counter("scout_posts_total")
	p.demotionsCounter, _ = p.meter.Int64Counter("scout_policy_demotions_total")
	p.inputErrorsCounter, _ = p.meter.Int64Counter("scout_input_errors_total")
	p.fallbacksCounter, _ = p.meter.Int64Counter("scout_similarity_fallbacks_total")
	p.batchDuration, _ = p.meter.Float64Histogram("scout_batch_duration_ms")
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return noop.NewMeterProvider().Meter("")
	}
	return p.meter
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTraceProvider != nil {
		_ = p.shutdownTraceProvider(ctx)
	}
	if p.shutdownMeterProvider != nil {
		_ = p.shutdownMeterProvider(ctx)
	}
}

// StartBatch opens the span covering one scoring batch.
func (p *Provider) StartBatch(ctx context.Context, posts int, backend string) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, "score_and_draft",
		trace.WithAttributes(Attrs(
			"scout.posts", posts,
			"scout.similarity_backend", backend,
		)...),
	)
}

// RecordPost counts one finished entry by category.
func (p *Provider) RecordPost(ctx context.Context, category string, demoted bool) {
	if p == nil {
		return
	}
	labels := metric.WithAttributes(attribute.String("scout.category", category))
	p.postsCounter.Add(ctx, 1, labels)
	if demoted {
		p.demotionsCounter.Add(ctx, 1)
	}
}

// RecordInputError counts a post rejected as malformed.
func (p *Provider) RecordInputError(ctx context.Context) {
	if p == nil {
		return
	}
	p.inputErrorsCounter.Add(ctx, 1)
}

// RecordSimilarityFallback counts posts scored heuristic-only because the
// similarity backend degraded.
func (p *Provider) RecordSimilarityFallback(ctx context.Context, backend string) {
	if p == nil {
		return
	}
	p.fallbacksCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("scout.similarity_backend", backend)))
}

// RecordBatch records the wall time of a batch.
func (p *Provider) RecordBatch(ctx context.Context, posts int, durMs float64) {
	if p == nil {
		return
	}
	p.batchDuration.Record(ctx, durMs, metric.WithAttributes(attribute.Int("scout.posts", posts)))
}
