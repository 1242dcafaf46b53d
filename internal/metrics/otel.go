package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	defaultServiceName = "pollster"
	meterName          = "github.com/jpalmerr/pollster"
	otlpExportInterval = 15 * time.Second
)

// TelemetryConfig controls how metrics are exported.
type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OtlpEndpoint string
	OtlpInsecure bool
}

// Setup configures OpenTelemetry metrics with a Prometheus exporter and an
// optional OTLP/HTTP exporter.
//
// It returns the Recorder to pass to [pollster.WithObserver], the Prometheus
// HTTP handler (nil when disabled) and a shutdown function that flushes
// exporters.
func Setup(ctx context.Context, cfg TelemetryConfig) (*Recorder, http.Handler, func(context.Context) error, error) {
	if !cfg.Enabled {
		return NewRecorder(), nil, func(context.Context) error { return nil }, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}

	promReader, promHandler, err := prometheusComponents()
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(promReader)}

	if cfg.OtlpEndpoint != "" {
		otlpReader, err := buildOTLPReader(ctx, cfg.OtlpEndpoint, cfg.OtlpInsecure)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, sdkmetric.WithReader(otlpReader))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	opts = append(opts, sdkmetric.WithResource(res))

	provider := sdkmetric.NewMeterProvider(opts...)

	inst, err := newOtelInstruments(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, nil, nil, err
	}

	return newRecorder(inst), promHandler, provider.Shutdown, nil
}

func prometheusComponents() (sdkmetric.Reader, http.Handler, error) {
	reg := prometheus.NewRegistry()
	promExp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	return promExp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func buildOTLPReader(ctx context.Context, endpoint string, insecure bool) (sdkmetric.Reader, error) {
	otlpOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		otlpOpts = append(otlpOpts, otlpmetrichttp.WithInsecure())
	}
	otlpExp, err := otlpmetrichttp.New(ctx, otlpOpts...)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewPeriodicReader(otlpExp, sdkmetric.WithInterval(otlpExportInterval)), nil
}

type otelInstruments struct {
	ctx       context.Context
	cycles    metric.Int64Counter
	errors    metric.Int64Counter
	drops     metric.Int64Counter
	latencyMs metric.Float64Histogram
}

func newOtelInstruments(provider metric.MeterProvider) (*otelInstruments, error) {
	meter := provider.Meter(meterName)

	cycles, err := meter.Int64Counter("poller_cycles_total",
		metric.WithDescription("Completed fetch cycles per resource."))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("poller_errors_total",
		metric.WithDescription("Failed fetch cycles per resource."))
	if err != nil {
		return nil, err
	}
	drops, err := meter.Int64Counter("poller_dropped_results_total",
		metric.WithDescription("Results not delivered to a full subscriber buffer."))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("poller_cycle_duration_ms",
		metric.WithDescription("Fetch latency in milliseconds."))
	if err != nil {
		return nil, err
	}

	return &otelInstruments{
		ctx:       context.Background(),
		cycles:    cycles,
		errors:    errs,
		drops:     drops,
		latencyMs: latency,
	}, nil
}

func (o *otelInstruments) recordCycle(res string, latency time.Duration, err error) {
	if o == nil {
		return
	}
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrResource, res),
		attribute.String(AttrOutcome, outcome),
	)
	o.cycles.Add(o.ctx, 1, attrs)
	o.latencyMs.Record(o.ctx, float64(latency.Microseconds())/1000, attrs)
	if err != nil {
		o.errors.Add(o.ctx, 1, metric.WithAttributes(attribute.String(AttrResource, res)))
	}
}

func (o *otelInstruments) recordDrop(res string) {
	if o == nil {
		return
	}
	o.drops.Add(o.ctx, 1, metric.WithAttributes(attribute.String(AttrResource, res)))
}
