package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const operationScopeName = "github.com/ULilBagel/ublue-rebase-tool/orchestrator"

var (
	opOnce    sync.Once
	opCounter metric.Int64Counter
	opErrors  metric.Int64Counter
)

func operationInstruments() (metric.Int64Counter, metric.Int64Counter) {
	opOnce.Do(func() {
		m := Meter(operationScopeName)
		opCounter, _ = m.Int64Counter("ublue.operations",
			metric.WithDescription("Total privileged operations executed"),
		)
		opErrors, _ = m.Int64Counter("ublue.operation.errors",
			metric.WithDescription("Total privileged operations that failed"),
		)
	})
	return opCounter, opErrors
}

// RecordOperation counts one finished privileged operation. No-op when
// telemetry is disabled.
func RecordOperation(ctx context.Context, operation string, success bool) {
	if !Enabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("ublue.operation", operation),
		attribute.Bool("ublue.success", success),
	)
	ops, errs := operationInstruments()
	ops.Add(ctx, 1, attrs)
	if !success {
		errs.Add(ctx, 1, attrs)
	}
}

// StartOperationSpan opens a span around one privileged operation.
func StartOperationSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return Tracer(operationScopeName).Start(ctx, "operation."+operation,
		trace.WithAttributes(attribute.String("ublue.operation", operation)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
