package workflow

import (
	"context"
	"time"
)

// ============================================================
// Boundary interfaces (avoid coupling the engine to storage,
// transports, or capability backends)
// ============================================================

// StatusUpdate carries the fields written alongside a status transition.
type StatusUpdate struct {
	Error         string
	Output        any
	StartedAt     *time.Time
	CompletedAt   *time.Time
	ExecutionTime float64
	Strategy      Strategy
}

// RunFilter selects runs when listing.
type RunFilter struct {
	ProjectID string
	CanvasID  string
	Status    []RunStatus
	Limit     int
	Offset    int
}

// RunStore is the durable store for runs. Each call is one checkpoint: a
// commit either fully reflects the write or not at all.
type RunStore interface {
	// Create persists a new run and returns its id.
	Create(ctx context.Context, run *Run) (string, error)
	// AppendTrace appends one trace entry to the run.
	AppendTrace(ctx context.Context, runID string, entry TraceEntry) error
	// SetStatus transitions the run's status and writes the update fields.
	SetStatus(ctx context.Context, runID string, status RunStatus, update StatusUpdate) error
	// Get retrieves a run snapshot by id.
	Get(ctx context.Context, runID string) (*Run, error)
	// List retrieves runs matching the filter, newest first.
	List(ctx context.Context, filter RunFilter) ([]*Run, error)
}

// CanvasProvider is the management API's read path for compiled graphs.
type CanvasProvider interface {
	GetGraph(ctx context.Context, canvasID string) (*Graph, error)
}

// ToolProvider resolves and invokes a tool by name.
type ToolProvider interface {
	Invoke(ctx context.Context, toolName string, inputs map[string]any) (any, error)
}

// AgentSpec describes an agent configuration handed to the agent provider.
type AgentSpec struct {
	Name      string   `json:"name,omitempty"`
	Role      string   `json:"role"`
	Goal      string   `json:"goal,omitempty"`
	Backstory string   `json:"backstory,omitempty"`
	Tools     []string `json:"tools,omitempty"`
}

// CrewTask is one task on a crew's shared task list.
type CrewTask struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	AgentIndex  int    `json:"agent_index"`
}

// TaskResult is the result of one crew task.
type TaskResult struct {
	TaskID     string `json:"task_id"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// CrewResult aggregates a multi-agent execution.
type CrewResult struct {
	TaskResults map[string]*TaskResult `json:"task_results"`
	Output      any                    `json:"output,omitempty"`
	Duration    time.Duration          `json:"duration"`
}

// AgentProvider performs agent reasoning behind an opaque call contract.
// The engine never interprets how the result is computed.
type AgentProvider interface {
	// Invoke runs a single agent against a task description.
	Invoke(ctx context.Context, spec AgentSpec, task string) (any, error)
	// InvokeCrew coordinates several agents cooperatively on a shared task
	// list and returns the aggregated result.
	InvokeCrew(ctx context.Context, agents []AgentSpec, tasks []CrewTask) (*CrewResult, error)
}

// ConditionEvaluator evaluates a boolean expression against run state.
// Implementations must be side-effect free.
type ConditionEvaluator interface {
	Evaluate(expression string, state map[string]any) (bool, error)
}

// ============================================================
// Events
// ============================================================

// EventType identifies a run event pushed to clients.
type EventType string

const (
	// EventWorkflowStatus is emitted on every status transition.
	EventWorkflowStatus EventType = "workflow_status"
	// EventWorkflowResult is emitted once when the run reaches a terminal
	// status, carrying the final output.
	EventWorkflowResult EventType = "workflow_result"
)

// Event is one run event for delivery to connected clients.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Status    RunStatus `json:"status"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives run events. Publish must not block the coordinator;
// implementations drop or buffer as needed.
type EventSink interface {
	Publish(event Event)
}

// NopEventSink discards all events.
type NopEventSink struct{}

// Publish implements EventSink.
func (NopEventSink) Publish(Event) {}

// ============================================================
// Metrics
// ============================================================

// MetricsRecorder receives engine measurements. The zero-value NopMetrics
// is used when no collector is wired.
type MetricsRecorder interface {
	RecordRun(strategy Strategy, status RunStatus, duration time.Duration)
	RecordNode(kind NodeKind, failed bool, duration time.Duration)
	RunStarted()
	RunFinished()
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordRun(Strategy, RunStatus, time.Duration) {}
func (NopMetrics) RecordNode(NodeKind, bool, time.Duration)     {}
func (NopMetrics) RunStarted()                                  {}
func (NopMetrics) RunFinished()                                 {}
