package audit

import (
	"context"
	"log/slog"

	"github.com/kamitools/kami/pkg/runtime"
)

// Recorder adapts Store to the orchestrator's recorder hook: one
// receipt per completed call, runtime failures included. Recording is
// best-effort; a failed write is logged and never fails the call.
type Recorder struct {
	store *Store
}

// NewRecorder wraps a receipt store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// RecordExecution implements runtime.ExecutionRecorder.
func (r *Recorder) RecordExecution(ctx context.Context, toolID, executionID, input string, result runtime.ExecutionResult) {
	receipt, err := NewReceipt(toolID, executionID, []byte(input), []byte(result.Content), result.Success, result.DurationMS)
	if err != nil {
		slog.Warn("audit receipt not recorded", "tool", toolID, "execution_id", executionID, "error", err)
		return
	}
	if err := r.store.Append(ctx, receipt); err != nil {
		slog.Warn("audit receipt not persisted", "tool", toolID, "execution_id", executionID, "error", err)
	}
}
