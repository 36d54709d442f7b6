// Package telemetry initializes OpenTelemetry tracing and metrics exporters.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope of the environment.
const ScopeName = "github.com/spachava753/nsoran"

// Options selects the OTLP/HTTP collector and how the process identifies
// itself to it. An empty Endpoint disables export.
type Options struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
}

// Shutdown flushes and stops the exporters.
type Shutdown func(ctx context.Context) error

// Init installs the global tracer and meter providers. With no endpoint the
// no-op providers of the otel package stay in place.
func Init(ctx context.Context, opts Options) (Shutdown, error) {
	if opts.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", opts.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := newTracerProvider(ctx, opts, res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, opts, res)
	if err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx))
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newTracerProvider(ctx context.Context, opts Options, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
}

func newMeterProvider(ctx context.Context, opts Options, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)), nil
}

// Meter returns the global meter of the environment.
func Meter() metric.Meter {
	return otel.GetMeterProvider().Meter(ScopeName)
}

// Tracer returns the global tracer of the environment.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(ScopeName)
}

// Instruments are the metrics recorded by an environment.
type Instruments struct {
	StepDuration metric.Float64Histogram
	IngestRows   metric.Int64Counter
	SyncRetries  metric.Int64Counter
}

// NewInstruments creates the environment instruments on m.
func NewInstruments(m metric.Meter) (*Instruments, error) {
	stepDuration, err := m.Float64Histogram("nsoran.step.duration",
		metric.WithDescription("Wall time of one environment step"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: step duration histogram: %w", err)
	}

	ingestRows, err := m.Int64Counter("nsoran.ingest.rows",
		metric.WithDescription("Metric rows newly stored by ingestion, by record kind; re-read boundary rows are not counted"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: ingest rows counter: %w", err)
	}

	syncRetries, err := m.Int64Counter("nsoran.sync.retries",
		metric.WithDescription("Bounded metrics-ready waits that timed out while the simulator was alive"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: sync retries counter: %w", err)
	}

	return &Instruments{
		StepDuration: stepDuration,
		IngestRows:   ingestRows,
		SyncRetries:  syncRetries,
	}, nil
}
