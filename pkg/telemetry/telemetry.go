// Package telemetry exports client spans and metrics to an OTLP HTTP collector.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkMetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkTrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/dotcloud/go-client/pkg/client/trace"
	clientOtel "github.com/dotcloud/go-client/pkg/client/trace/otel"
)

const DefaultMetricsInterval = 15 * time.Second

// Config of the OTLP export. Export is disabled if the Endpoint is empty.
type Config struct {
	// Endpoint is the OTLP HTTP collector "host:port", e.g. "localhost:4318".
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	// Insecure disables TLS.
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Providers own the SDK tracer and meter providers, they must be shut down to flush the data.
type Providers struct {
	tracerProvider *sdkTrace.TracerProvider
	meterProvider  *sdkMetric.MeterProvider
}

// Setup creates providers exporting to the configured collector.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("telemetry endpoint is not set")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "dotcloud-go-client"
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create metric exporter: %w", err)
	}

	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(cfg.ServiceName))
	return &Providers{
		tracerProvider: sdkTrace.NewTracerProvider(
			sdkTrace.WithBatcher(traceExporter),
			sdkTrace.WithResource(res),
		),
		meterProvider: sdkMetric.NewMeterProvider(
			sdkMetric.WithReader(sdkMetric.NewPeriodicReader(metricExporter, sdkMetric.WithInterval(DefaultMetricsInterval))),
			sdkMetric.WithResource(res),
		),
	}, nil
}

// TraceFactory returns client hooks recording spans and metrics by the providers.
func (p *Providers) TraceFactory(opts ...clientOtel.Option) trace.Factory {
	opts = append([]clientOtel.Option{
		clientOtel.WithPropagators(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})),
	}, opts...)
	return clientOtel.NewTrace(p.tracerProvider, p.meterProvider, opts...)
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var err error
	if e := p.tracerProvider.Shutdown(ctx); e != nil {
		err = multierror.Append(err, fmt.Errorf("cannot shutdown tracer provider: %w", e))
	}
	if e := p.meterProvider.Shutdown(ctx); e != nil {
		err = multierror.Append(err, fmt.Errorf("cannot shutdown meter provider: %w", e))
	}
	return err
}
