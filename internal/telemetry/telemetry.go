// Package telemetry sets up OpenTelemetry tracing and metrics for the
// service.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ErrUnknownExporter is returned for an exporter name Init does not know.
var ErrUnknownExporter = errors.New("unknown exporter")

// Config selects exporters. TraceExporter is "stdout" or "none";
// MetricExporter is "prometheus", "stdout" or "none".
type Config struct {
	ServiceName    string
	TraceExporter  string
	MetricExporter string
	PrettyPrint    bool
}

// Providers holds the installed providers.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider

	metricsHandler http.Handler
}

// MetricsHandler serves the Prometheus scrape endpoint, or nil when the
// prometheus exporter is not in use.
func (p *Providers) MetricsHandler() http.Handler {
	return p.metricsHandler
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		errs = append(errs, p.TracerProvider.Shutdown(ctx))
	}
	if p.MeterProvider != nil {
		errs = append(errs, p.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Init builds the providers described by cfg and installs them as the
// global otel providers, together with the W3C trace-context propagator.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	p := &Providers{}

	tp, err := initTracer(cfg, res)
	if err != nil {
		return nil, err
	}
	p.TracerProvider = tp

	mp, handler, err := initMeter(cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	p.MeterProvider = mp
	p.metricsHandler = handler

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

func initTracer(cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	switch cfg.TraceExporter {
	case "stdout":
		var opts []stdouttrace.Option
		if cfg.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		exporter, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		), nil
	case "none", "":
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	default:
		return nil, fmt.Errorf("%w: trace exporter %q", ErrUnknownExporter, cfg.TraceExporter)
	}
}

func initMeter(cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	switch cfg.MetricExporter {
	case "prometheus":
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		return mp, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil

	case "stdout":
		var opts []stdoutmetric.Option
		if cfg.PrettyPrint {
			opts = append(opts, stdoutmetric.WithPrettyPrint())
		}
		exporter, err := stdoutmetric.New(opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		), nil, nil

	case "none", "":
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: metric exporter %q", ErrUnknownExporter, cfg.MetricExporter)
	}
}
