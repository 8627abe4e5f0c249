package types

import "time"

// EventType names a tool lifecycle event.
type EventType string

const (
	// EventToolInstalled fires when a tool lands in the catalog.
	EventToolInstalled EventType = "tool_installed"
	// EventExecutionStarted fires when an execution begins.
	EventExecutionStarted EventType = "execution_started"
	// EventExecutionCompleted fires when an execution returns.
	EventExecutionCompleted EventType = "execution_completed"
	// EventToolRemoved fires when a tool leaves the catalog.
	EventToolRemoved EventType = "tool_removed"
)

// DomainEvent is an attributable record of one tool lifecycle transition.
// Execution events carry the per-execution identifier from the
// orchestrator.
type DomainEvent struct {
	Type        EventType `json:"type"`
	ToolID      ToolID    `json:"tool_id"`
	ExecutionID string    `json:"execution_id,omitempty"`
	DurationMS  uint64    `json:"duration_ms,omitempty"`
	Success     bool      `json:"success,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToolInstalled builds a tool-installed event.
func ToolInstalled(id ToolID) DomainEvent {
	return DomainEvent{Type: EventToolInstalled, ToolID: id, Timestamp: time.Now().UTC()}
}

// ExecutionStarted builds an execution-started event.
func ExecutionStarted(id ToolID, executionID string) DomainEvent {
	return DomainEvent{Type: EventExecutionStarted, ToolID: id, ExecutionID: executionID, Timestamp: time.Now().UTC()}
}

// ExecutionCompleted builds an execution-completed event.
func ExecutionCompleted(id ToolID, executionID string, durationMS uint64, success bool) DomainEvent {
	return DomainEvent{
		Type:        EventExecutionCompleted,
		ToolID:      id,
		ExecutionID: executionID,
		DurationMS:  durationMS,
		Success:     success,
		Timestamp:   time.Now().UTC(),
	}
}

// ToolRemoved builds a tool-removed event.
func ToolRemoved(id ToolID) DomainEvent {
	return DomainEvent{Type: EventToolRemoved, ToolID: id, Timestamp: time.Now().UTC()}
}
