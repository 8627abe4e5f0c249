// Package observability wires structured logging and OpenTelemetry
// metrics for the execution pipeline. The orchestrator's atomic
// counters stay authoritative; the otel instruments mirror them into
// whatever meter provider the process has installed.
package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SetupLogging installs a slog handler writing to stderr at the given
// level. Stdout stays reserved for the stdio transport. Format "json"
// produces machine-readable lines; anything else uses the text handler.
func SetupLogging(level, format string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ExecutionInstruments implements runtime.ExecutionObserver on top of
// OpenTelemetry counters and a duration histogram.
type ExecutionInstruments struct {
	executions metric.Int64Counter
	failures   metric.Int64Counter
	duration   metric.Float64Histogram
	fuel       metric.Int64Counter
}

// NewExecutionInstruments builds the instruments from the global meter
// provider. Without an installed SDK the instruments are no-ops, so
// this is always safe to wire.
func NewExecutionInstruments() (*ExecutionInstruments, error) {
	meter := otel.Meter("github.com/kamitools/kami")

	executions, err := meter.Int64Counter("kami.executions",
		metric.WithDescription("Tool executions completed"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("kami.execution.failures",
		metric.WithDescription("Tool executions that failed"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("kami.execution.duration",
		metric.WithDescription("Execution wall-clock duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	fuel, err := meter.Int64Counter("kami.execution.fuel",
		metric.WithDescription("Fuel consumed by executions"))
	if err != nil {
		return nil, err
	}

	return &ExecutionInstruments{
		executions: executions,
		failures:   failures,
		duration:   duration,
		fuel:       fuel,
	}, nil
}

// ObserveExecution implements runtime.ExecutionObserver.
func (i *ExecutionInstruments) ObserveExecution(toolID string, success bool, durationMS, fuelConsumed uint64) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("tool_id", toolID),
		attribute.Bool("success", success),
	)
	i.executions.Add(ctx, 1, attrs)
	if !success {
		i.failures.Add(ctx, 1, attrs)
	}
	i.duration.Record(ctx, float64(durationMS), attrs)
	i.fuel.Add(ctx, int64(fuelConsumed), attrs)
}
