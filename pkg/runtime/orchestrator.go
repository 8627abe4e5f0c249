package runtime

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kamitools/kami/pkg/types"
)

// ExecutionObserver receives one callback per completed execution.
// Implemented by pkg/observability to feed OpenTelemetry instruments;
// nil observers are skipped.
type ExecutionObserver interface {
	ObserveExecution(toolID string, success bool, durationMS, fuelConsumed uint64)
}

// ExecutionRecorder persists an audit record for every completed call,
// including runtime failures. Implemented by pkg/audit; recording is
// best-effort and must not fail the call.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, toolID, executionID, input string, result ExecutionResult)
}

// Config holds the orchestrator's construction-time settings.
type Config struct {
	// CacheSize bounds the component cache.
	CacheSize int `json:"cache_size"`
	// MaxConcurrent bounds parallel executions.
	MaxConcurrent int `json:"max_concurrent"`
	// RateLimit configures admission rate limiting; the zero value
	// disables it.
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// DefaultConfig matches a small single-node deployment.
func DefaultConfig() Config {
	return Config{CacheSize: 32, MaxConcurrent: 4}
}

// Orchestrator composes resolver, scheduler, rate limiter, and executor
// behind a single Execute entry point, and owns the metrics.
type Orchestrator struct {
	executor  ToolExecutor
	resolver  *Resolver
	scheduler *Scheduler
	limiter   *RateLimiter
	metrics   *ExecutionMetrics
	observer  ExecutionObserver
	recorder  ExecutionRecorder
	events    chan<- types.DomainEvent
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithRateLimiter attaches an execution rate limiter.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(o *Orchestrator) { o.limiter = limiter }
}

// WithObserver attaches an execution observer.
func WithObserver(observer ExecutionObserver) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

// WithRecorder attaches an execution recorder for audit receipts.
func WithRecorder(recorder ExecutionRecorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

// WithEventSink publishes lifecycle events to the channel. Sends are
// non-blocking: a full sink drops events rather than stalling calls.
func WithEventSink(events chan<- types.DomainEvent) Option {
	return func(o *Orchestrator) { o.events = events }
}

// NewOrchestrator wires the execution pipeline.
func NewOrchestrator(cfg Config, executor ToolExecutor, resolver *Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		executor:  executor,
		resolver:  resolver,
		scheduler: NewScheduler(cfg.MaxConcurrent),
		metrics:   NewExecutionMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs the tool with the given JSON input through the full
// pipeline: rate limit, cache probe, admission permit, resolve, execute. Every
// event it logs is attributable through a per-execution identifier.
func (o *Orchestrator) Execute(ctx context.Context, id types.ToolID, input string) (ExecutionResult, error) {
	executionID := uuid.NewString()
	logger := slog.With("tool", id, "execution_id", executionID)

	o.metrics.RecordAttempt()
	o.publish(types.ExecutionStarted(id, executionID))

	if o.limiter != nil && !o.limiter.Check(id) {
		o.metrics.RecordRateLimited()
		return ExecutionResult{}, types.ResourceExhausted("rate limit").
			WithHint("the tool exceeded its execution rate").
			WithFix("slow down calls or raise the rate_limit configuration")
	}

	if _, cached := o.resolver.Cache().Get(id); cached {
		o.metrics.RecordCacheHit()
	} else {
		o.metrics.RecordCacheMiss()
	}

	permit, err := o.scheduler.Acquire(ctx)
	if err != nil {
		o.metrics.RecordPoolExhausted()
		return ExecutionResult{}, err
	}
	defer permit.Release()

	entry, _, err := o.resolver.Resolve(ctx, id)
	if err != nil {
		o.metrics.RecordFailure()
		logger.Warn("resolution failed", "error", err)
		return ExecutionResult{}, err
	}

	result, err := o.executor.Execute(ctx, entry, input)
	if err != nil {
		o.metrics.RecordFailure()
		o.publish(types.ExecutionCompleted(id, executionID, 0, false))
		o.record(ctx, id, executionID, input, ExecutionResult{Content: err.Error()})
		if o.observer != nil {
			o.observer.ObserveExecution(id.String(), false, 0, 0)
		}
		logger.Warn("execution failed", "error", err)
		return ExecutionResult{}, err
	}

	if result.Success {
		o.metrics.RecordSuccess(result.FuelConsumed)
	} else {
		o.metrics.RecordFailure()
	}
	o.publish(types.ExecutionCompleted(id, executionID, result.DurationMS, result.Success))
	o.record(ctx, id, executionID, input, result)
	if o.observer != nil {
		o.observer.ObserveExecution(id.String(), result.Success, result.DurationMS, result.FuelConsumed)
	}

	logger.Info("execution complete",
		"success", result.Success,
		"duration_ms", result.DurationMS,
		"fuel_consumed", result.FuelConsumed,
	)

	return result, nil
}

func (o *Orchestrator) record(ctx context.Context, id types.ToolID, executionID, input string, result ExecutionResult) {
	if o.recorder == nil {
		return
	}
	o.recorder.RecordExecution(ctx, id.String(), executionID, input, result)
}

func (o *Orchestrator) publish(event types.DomainEvent) {
	if o.events == nil {
		return
	}
	select {
	case o.events <- event:
	default:
	}
}

// InvalidateCache drops the cached component for id.
func (o *Orchestrator) InvalidateCache(id types.ToolID) {
	o.resolver.Invalidate(id)
}

// Metrics returns the orchestrator's counters.
func (o *Orchestrator) Metrics() *ExecutionMetrics { return o.metrics }

// Scheduler exposes the admission gate for inspection.
func (o *Orchestrator) Scheduler() *Scheduler { return o.scheduler }

// Shutdown waits for in-flight executions to drain.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	slog.Info("orchestrator draining")
	return o.scheduler.Drain(ctx)
}
