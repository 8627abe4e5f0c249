package runtime

import (
	"context"
	"time"

	"github.com/kamitools/kami/pkg/engine"
	"github.com/kamitools/kami/pkg/sandbox"
	"github.com/kamitools/kami/pkg/types"
)

// outerTimeoutSlack is added to max_execution_ms for the wall-clock
// safety net wrapping the whole invocation, in case epoch preemption is
// inhibited (e.g. the guest is parked in a host call).
const outerTimeoutSlack = 500 * time.Millisecond

// ExecutionResult is the outcome of one tool execution. Content holds
// the tool's own JSON output on success or its own error payload on a
// domain failure; runtime-level failures travel as errors instead.
type ExecutionResult struct {
	Content      string `json:"content"`
	Success      bool   `json:"success"`
	DurationMS   uint64 `json:"duration_ms"`
	FuelConsumed uint64 `json:"fuel_consumed"`
}

// ToolExecutor runs a resolved component under its policy. The second
// implementation is a test double; this is one of the two deliberate
// polymorphism points in the core.
type ToolExecutor interface {
	Execute(ctx context.Context, entry CachedComponent, input string) (ExecutionResult, error)
}

// ExecutorOptions carries per-deployment executor knobs.
type ExecutorOptions struct {
	// InheritStdout pipes guest stdout through to the host.
	InheritStdout bool
	// InheritStderr pipes guest stderr through to the host.
	InheritStderr bool
	// SandboxDir, when set, is preopened for tools whose policy grants
	// filesystem access. Empty means no preopen regardless of policy.
	SandboxDir string
	// Env is passed to every execution, filtered per-tool by the
	// policy's env_allow_list.
	Env map[string]string
}

// WasmExecutor executes compiled components on the shared engine. It is
// stateless per call: the store, sandbox context, and preemption task
// live exactly as long as one invocation.
type WasmExecutor struct {
	engine *engine.Engine
	opts   ExecutorOptions
}

// NewWasmExecutor creates an executor bound to the shared engine.
func NewWasmExecutor(eng *engine.Engine, opts ExecutorOptions) *WasmExecutor {
	return &WasmExecutor{engine: eng, opts: opts}
}

// Execute runs the component with the input string under the entry's
// policy. The time budget is enforced twice: an epoch deadline armed by
// a sleeping preemption task at max_execution_ms, and an outer timeout
// at max_execution_ms + 500ms as a safety net.
func (e *WasmExecutor) Execute(ctx context.Context, entry CachedComponent, input string) (ExecutionResult, error) {
	policy := entry.Policy
	if err := policy.Validate(); err != nil {
		return ExecutionResult{}, err
	}

	sbx, err := sandbox.Build(policy, sandbox.Options{
		InheritStdout: e.opts.InheritStdout,
		InheritStderr: e.opts.InheritStderr,
		Env:           e.opts.Env,
		Dir:           e.opts.SandboxDir,
	})
	if err != nil {
		return ExecutionResult{}, err
	}

	session, err := engine.NewSession(e.engine, sbx, policy.Limits, input)
	if err != nil {
		return ExecutionResult{}, err
	}
	defer session.Close()

	start := time.Now()

	// Preemption task: one epoch tick after the budget elapses, unless
	// the call finishes first.
	preemptTimer := time.AfterFunc(policy.Limits.ExecutionTimeout(), func() {
		e.engine.IncrementEpoch()
	})
	defer preemptTimer.Stop()

	type callResult struct {
		outcome engine.Outcome
		err     error
	}
	done := make(chan callResult, 1)
	go func() {
		outcome, runErr := session.Run(entry.Artifact, input)
		done <- callResult{outcome: outcome, err: runErr}
	}()

	outer := time.NewTimer(policy.Limits.ExecutionTimeout() + outerTimeoutSlack)
	defer outer.Stop()

	var res callResult
	select {
	case res = <-done:
	case <-outer.C:
		// The guest wedged past both budgets; make sure the epoch trap
		// fires so the runner goroutine unwinds, then report the budget.
		e.engine.IncrementEpoch()
		return ExecutionResult{}, types.Timeout(policy.Limits.MaxExecutionMS)
	case <-ctx.Done():
		e.engine.IncrementEpoch()
		return ExecutionResult{}, ctx.Err()
	}

	durationMS := uint64(time.Since(start).Milliseconds())
	fuelConsumed := session.FuelConsumed()

	if res.err != nil {
		if types.KindOf(res.err) == types.KindTimeout {
			return ExecutionResult{}, types.Timeout(policy.Limits.MaxExecutionMS).WithCause(res.err)
		}
		return ExecutionResult{}, res.err
	}

	return ExecutionResult{
		Content:      res.outcome.Content,
		Success:      res.outcome.Ok,
		DurationMS:   durationMS,
		FuelConsumed: fuelConsumed,
	}, nil
}
