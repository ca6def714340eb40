package workflow

import (
	"time"
)

// RunStatus represents the lifecycle status of a workflow run.
type RunStatus string

const (
	// StatusPending indicates the run is created and persisted but not yet dispatched.
	StatusPending RunStatus = "pending"
	// StatusRunning indicates node execution has started.
	StatusRunning RunStatus = "running"
	// StatusCompleted indicates all required executors returned without fatal error.
	StatusCompleted RunStatus = "completed"
	// StatusFailed indicates an unrecoverable error ended the run.
	StatusFailed RunStatus = "failed"
	// StatusCancelled indicates an external cancel request was accepted.
	StatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the status is a terminal state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine allows moving to the given
// status. Transitions are one-way: pending → running → terminal, and a
// pending run may be cancelled or failed before it starts.
func (s RunStatus) CanTransition(to RunStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled || to == StatusFailed
	case StatusRunning:
		return to.IsTerminal()
	default:
		return false
	}
}

// TraceEntry is one recorded step of execution. The trace is append-only and
// its ordering is execution order.
type TraceEntry struct {
	NodeID    string    `json:"node_id"`
	NodeKind  NodeKind  `json:"node_kind"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Run represents one execution attempt of a compiled canvas graph.
type Run struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id,omitempty"`
	CanvasID   string `json:"canvas_id"`
	WorkflowID string `json:"workflow_id,omitempty"`

	Status   RunStatus `json:"status"`
	Strategy Strategy  `json:"strategy,omitempty"`

	Input  map[string]any `json:"input,omitempty"`
	Output any            `json:"output,omitempty"`
	Trace  []TraceEntry   `json:"trace,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ExecutionTime is the elapsed duration in seconds, set only at a
	// terminal status as completed_at − started_at.
	ExecutionTime float64 `json:"execution_time,omitempty"`
}

// IsTerminal returns true if the run reached a terminal status.
func (r *Run) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Duration returns the run duration, or the time since start if still running.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(*r.StartedAt)
	}
	return time.Since(*r.StartedAt)
}
