// Package telemetry wires optional OpenTelemetry export into the tool.
// Everything is off unless UBLUE_OTEL_ENABLED=true; the disabled path
// installs no-op providers so instrumented code costs nothing.
//
// Environment:
//
//	UBLUE_OTEL_ENABLED=true           turn telemetry on
//	UBLUE_OTEL_STDOUT=true            mirror spans and metrics to stdout
//	OTEL_EXPORTER_OTLP_ENDPOINT=...   OTLP gRPC collector (host:port)
//	OTEL_SERVICE_NAME=...             override the service name
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/ULilBagel/ublue-rebase-tool"

// settings is the exporter selection derived from the environment, read
// once per Init.
type settings struct {
	stdout         bool
	traceEndpoint  string
	metricEndpoint string
}

func loadSettings() settings {
	s := settings{
		stdout:         os.Getenv("UBLUE_OTEL_STDOUT") == "true",
		traceEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		metricEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
	}
	if s.metricEndpoint == "" {
		s.metricEndpoint = s.traceEndpoint
	}
	// Enabled with nothing configured still has to land somewhere.
	if !s.stdout && s.traceEndpoint == "" {
		s.stdout = true
	}
	return s
}

var shutdownFns []func(context.Context) error

// Enabled reports whether telemetry is active (UBLUE_OTEL_ENABLED=true).
func Enabled() bool {
	return os.Getenv("UBLUE_OTEL_ENABLED") == "true"
}

// Init installs the global trace and meter providers. When telemetry is
// disabled this installs no-ops and returns immediately.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	s := loadSettings()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	if err := installTraces(ctx, s, res); err != nil {
		return fmt.Errorf("telemetry: traces: %w", err)
	}
	if err := installMetrics(ctx, s, res); err != nil {
		return fmt.Errorf("telemetry: metrics: %w", err)
	}
	return nil
}

func installTraces(ctx context.Context, s settings, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if s.stdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	if s.traceEndpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(s.traceEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)
	return nil
}

func installMetrics(ctx context.Context, s settings, res *resource.Resource) error {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if s.stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
		))
	}
	if s.metricEndpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, s.metricEndpoint)
		if err != nil {
			return err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second)),
		))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)
	return nil
}

// Tracer returns a tracer for the given instrumentation name, defaulting
// to the module scope.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter for the given instrumentation name, defaulting
// to the module scope.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes and stops the installed providers. Call it from the
// command's post-run with a short-lived context.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
}
