package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/internal/pool"
	"github.com/BaSui01/canvasflow/types"
)

// ExecuteRequest asks the coordinator to run a canvas.
type ExecuteRequest struct {
	ProjectID  string         `json:"project_id,omitempty"`
	CanvasID   string         `json:"canvas_id"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

// ExecuteResult is the synchronous outcome of one run.
type ExecuteResult struct {
	WorkflowID    string    `json:"workflow_id,omitempty"`
	RunID         string    `json:"run_id"`
	Status        RunStatus `json:"status"`
	Strategy      Strategy  `json:"strategy"`
	Result        any       `json:"result,omitempty"`
	Error         string    `json:"error,omitempty"`
	ExecutionTime float64   `json:"execution_time"`
}

// CoordinatorConfig configures the run coordinator.
type CoordinatorConfig struct {
	// NodeTimeout bounds a single node execution. Zero means no bound
	// beyond the run context.
	NodeTimeout time.Duration `json:"node_timeout"`
	// MaxSteps bounds the branching walk as a loop guard. Zero picks a
	// multiple of the graph's node count.
	MaxSteps int `json:"max_steps"`
	// Pool controls the worker pool that node executions run on.
	Pool pool.GoroutinePoolConfig `json:"pool"`
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		NodeTimeout: 5 * time.Minute,
		Pool:        pool.DefaultGoroutinePoolConfig(),
	}
}

// Coordinator 运行协调器：编译画布、选择策略、驱动节点执行
// Coordinator owns the run lifecycle. It compiles the canvas, classifies the
// strategy, walks the graph with the strategy's algorithm, checkpoints every
// step to the run store, and pushes run events to connected clients.
type Coordinator struct {
	config    CoordinatorConfig
	store     RunStore
	canvases  CanvasProvider
	executors executorSet
	agents    AgentProvider
	registry  *Registry
	events    EventSink
	metrics   MetricsRecorder
	pool      *pool.GoroutinePool
	logger    *zap.Logger
}

// NewCoordinator wires a coordinator from its capabilities. store, canvases
// and registry are required; nil events and metrics fall back to no-ops.
func NewCoordinator(
	config CoordinatorConfig,
	store RunStore,
	canvases CanvasProvider,
	tools ToolProvider,
	agents AgentProvider,
	evaluator ConditionEvaluator,
	registry *Registry,
	events EventSink,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *Coordinator {
	if events == nil {
		events = NopEventSink{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		config:    config,
		store:     store,
		canvases:  canvases,
		executors: newExecutorSet(tools, agents, evaluator),
		agents:    agents,
		registry:  registry,
		events:    events,
		metrics:   metrics,
		pool:      pool.NewGoroutinePool(config.Pool),
		logger:    logger.With(zap.String("component", "run_coordinator")),
	}
}

// Close releases the coordinator's worker pool.
func (c *Coordinator) Close() {
	c.pool.Close()
}

// ============================================================
// Execute
// ============================================================

// ExecuteWorkflow compiles and runs the canvas synchronously, returning the
// run outcome. Graph compilation failures are returned as errors; run-level
// node failures are reported through the result's status and trace instead.
func (c *Coordinator) ExecuteWorkflow(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	graph, err := c.canvases.GetGraph(ctx, req.CanvasID)
	if err != nil {
		return nil, err
	}

	strategy := Classify(graph)

	run := &Run{
		ID:         uuid.NewString(),
		ProjectID:  req.ProjectID,
		CanvasID:   req.CanvasID,
		WorkflowID: req.WorkflowID,
		Status:     StatusPending,
		Strategy:   strategy,
		Input:      req.Input,
		CreatedAt:  time.Now().UTC(),
	}
	runID, err := c.store.Create(ctx, run)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to persist run").WithCause(err)
	}
	run.ID = runID

	c.logger.Info("工作流启动 | workflow run dispatched",
		zap.String("run_id", runID),
		zap.String("canvas_id", req.CanvasID),
		zap.String("strategy", string(strategy)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := c.registry.Register(runID, cancel); err != nil {
		return nil, err
	}
	defer c.registry.Remove(runID)

	// Checkpoints outlive the request: once a run is accepted, its status and
	// trace must land in the store even if the caller disconnects mid-run.
	storeCtx := context.WithoutCancel(ctx)

	started := time.Now().UTC()
	if err := c.transition(storeCtx, run, StatusRunning, StatusUpdate{StartedAt: &started, Strategy: strategy}); err != nil {
		return nil, err
	}
	c.metrics.RunStarted()
	defer c.metrics.RunFinished()

	state := NewRunState(req.Input)

	var output any
	var runErr error
	switch strategy {
	case StrategyMultiAgent:
		output, runErr = c.runMultiAgent(runCtx, run, graph, state)
	case StrategyBranching:
		output, runErr = c.runBranching(runCtx, run, graph, state)
	default:
		output, runErr = c.runSequential(runCtx, run, graph, state)
	}

	return c.finish(storeCtx, run, started, output, runErr)
}

// finish transitions the run to its terminal status, records metrics, and
// emits the final result event.
func (c *Coordinator) finish(ctx context.Context, run *Run, started time.Time, output any, runErr error) (*ExecuteResult, error) {
	completed := time.Now().UTC()
	elapsed := completed.Sub(started)

	status := StatusCompleted
	errMsg := ""
	switch {
	case errors.Is(runErr, context.Canceled):
		status = StatusCancelled
		errMsg = "cancelled by request"
	case runErr != nil:
		status = StatusFailed
		errMsg = runErr.Error()
	}

	update := StatusUpdate{
		Error:         errMsg,
		Output:        output,
		CompletedAt:   &completed,
		ExecutionTime: elapsed.Seconds(),
		Strategy:      run.Strategy,
	}
	if err := c.transition(ctx, run, status, update); err != nil {
		// The walk already happened; surface the persistence failure but keep
		// the computed outcome in the log.
		c.logger.Error("终态写入失败 | failed to checkpoint terminal status",
			zap.String("run_id", run.ID), zap.Error(err))
		return nil, err
	}
	c.metrics.RecordRun(run.Strategy, status, elapsed)

	c.events.Publish(Event{
		Type:      EventWorkflowResult,
		RunID:     run.ID,
		Status:    status,
		Payload:   output,
		Timestamp: completed,
	})

	c.logger.Info("工作流结束 | workflow run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Float64("execution_time", elapsed.Seconds()))

	return &ExecuteResult{
		WorkflowID:    run.WorkflowID,
		RunID:         run.ID,
		Status:        status,
		Strategy:      run.Strategy,
		Result:        output,
		Error:         errMsg,
		ExecutionTime: elapsed.Seconds(),
	}, nil
}

// transition validates the status change, persists it, and pushes the status
// event. It keeps the in-memory run in sync with the store.
func (c *Coordinator) transition(ctx context.Context, run *Run, to RunStatus, update StatusUpdate) error {
	if !run.Status.CanTransition(to) {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot transition run from %s to %s", run.Status, to))
	}
	if err := c.store.SetStatus(ctx, run.ID, to, update); err != nil {
		return types.NewError(types.ErrInternalError, "failed to checkpoint status").WithCause(err)
	}
	run.Status = to
	if update.StartedAt != nil {
		run.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		run.CompletedAt = update.CompletedAt
		run.ExecutionTime = update.ExecutionTime
	}

	c.events.Publish(Event{
		Type:      EventWorkflowStatus,
		RunID:     run.ID,
		Status:    to,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// ============================================================
// Strategy walks
// ============================================================

// runSequential executes every node once, in declaration order, ignoring
// edges. Node errors are recorded in the trace and do not stop the walk;
// only cancellation aborts it.
func (c *Coordinator) runSequential(ctx context.Context, run *Run, graph *Graph, state *RunState) (any, error) {
	var lastResult any
	for _, node := range graph.Nodes() {
		select {
		case <-ctx.Done():
			return c.collectOutput(state, lastResult), context.Canceled
		default:
		}

		result, err := c.executeNode(ctx, run, node, state)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return c.collectOutput(state, lastResult), context.Canceled
			}
			// Recorded in the trace; the sequential walk keeps going.
			continue
		}
		if result != nil {
			lastResult = result
		}
	}
	return c.collectOutput(state, lastResult), nil
}

// runBranching walks the graph from the entry node following edges. A
// condition node routes by its boolean result against edge labels; any other
// node follows its first outgoing edge. The walk ends at a node with no
// outgoing edge, on a revisit (loop guard), or at the step cap. Unlike the
// sequential walk, a node error here fails the run.
func (c *Coordinator) runBranching(ctx context.Context, run *Run, graph *Graph, state *RunState) (any, error) {
	maxSteps := c.config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 2 * len(graph.Nodes())
	}

	visited := make(map[string]bool, len(graph.Nodes()))
	current := graph.Entry()
	var lastResult any

	for step := 0; step < maxSteps; step++ {
		select {
		case <-ctx.Done():
			return c.collectOutput(state, lastResult), context.Canceled
		default:
		}
		if visited[current] {
			c.logger.Warn("分支回路，提前结束 | branching walk revisited a node, stopping",
				zap.String("run_id", run.ID), zap.String("node_id", current))
			break
		}
		visited[current] = true

		node, ok := graph.Node(current)
		if !ok {
			return nil, types.NewError(types.ErrMalformedGraph, "walk reached unknown node "+current)
		}

		result, err := c.executeNode(ctx, run, node, state)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return c.collectOutput(state, lastResult), context.Canceled
			}
			return c.collectOutput(state, lastResult), err
		}
		if result != nil {
			lastResult = result
		}

		next := c.nextNode(node, result, graph)
		if next == "" {
			break
		}
		current = next
	}

	return c.collectOutput(state, lastResult), nil
}

// nextNode picks the successor of a node during the branching walk.
func (c *Coordinator) nextNode(node Node, result any, graph *Graph) string {
	edges := graph.OutEdges(node.ID)
	if len(edges) == 0 {
		return ""
	}

	if node.Kind == KindCondition {
		branch := "false"
		if b, ok := result.(bool); ok && b {
			branch = "true"
		}
		for _, edge := range edges {
			if edge.Label == branch {
				return edge.Target
			}
		}
		// No labeled edge for the taken branch: unlabeled edges act as the
		// fallthrough path.
		for _, edge := range edges {
			if edge.Label == "" {
				return edge.Target
			}
		}
		return ""
	}

	return edges[0].Target
}

// runMultiAgent derives a crew plan from the agent nodes and hands the whole
// plan to the agent provider's crew capability. A crew error fails the run.
func (c *Coordinator) runMultiAgent(ctx context.Context, run *Run, graph *Graph, state *RunState) (any, error) {
	if c.agents == nil {
		return nil, types.NewError(types.ErrCapabilityUnavailable, "agent provider not configured")
	}

	plan, err := BuildCrewPlan(graph)
	if err != nil {
		return nil, err
	}

	// Input and output nodes still run so the payload reaches the crew state
	// and the exports reach the final output.
	for _, node := range graph.Nodes() {
		if node.Kind != KindInput {
			continue
		}
		if _, err := c.executeNode(ctx, run, node, state); err != nil && errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
	}

	started := time.Now()
	crewResult, err := c.invokeCrew(ctx, plan)
	elapsed := time.Since(started)
	if err != nil {
		c.appendTrace(ctx, run, TraceEntry{
			NodeID:    "crew",
			NodeKind:  KindAgent,
			Error:     err.Error(),
			Failed:    true,
			Timestamp: time.Now().UTC(),
		})
		c.metrics.RecordNode(KindAgent, true, elapsed)
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, types.NewError(types.ErrNodeExecution, "crew execution failed").WithCause(err)
	}
	c.metrics.RecordNode(KindAgent, false, elapsed)

	// Aggregated crew entry first, then one entry per crew task in plan order.
	c.appendTrace(ctx, run, TraceEntry{
		NodeID:    "crew",
		NodeKind:  KindAgent,
		Result:    crewResult.Output,
		Timestamp: time.Now().UTC(),
	})
	for _, task := range plan.Tasks {
		entry := TraceEntry{NodeID: task.ID, NodeKind: KindAgent, Timestamp: time.Now().UTC()}
		if tr, ok := crewResult.TaskResults[task.ID]; ok {
			entry.Result = tr.Output
			entry.Error = tr.Error
			entry.Failed = tr.Error != ""
			state.Values[task.ID] = tr.Output
		}
		c.appendTrace(ctx, run, entry)
	}

	for _, node := range graph.Nodes() {
		if node.Kind != KindOutput {
			continue
		}
		if _, err := c.executeNode(ctx, run, node, state); err != nil && errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
	}

	return c.collectOutput(state, crewResult.Output), nil
}

// invokeCrew runs the crew call on the worker pool. SubmitWait blocks until
// the provider returns, so the result below is safe to read afterwards.
func (c *Coordinator) invokeCrew(ctx context.Context, plan *CrewPlan) (*CrewResult, error) {
	var result *CrewResult
	err := c.pool.SubmitWait(ctx, func(taskCtx context.Context) error {
		r, err := c.agents.InvokeCrew(taskCtx, plan.Agents, plan.Tasks)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, context.Canceled
		}
		return nil, err
	}
	return result, nil
}

// ============================================================
// Node execution
// ============================================================

// executeNode dispatches one node to its executor on the worker pool,
// appends the trace entry, and records node metrics. The returned error is
// the node's failure; the trace entry is written either way.
func (c *Coordinator) executeNode(ctx context.Context, run *Run, node Node, state *RunState) (any, error) {
	exec, err := c.executors.resolve(node.Kind)
	if err != nil {
		return nil, err
	}

	nodeCtx := ctx
	if c.config.NodeTimeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, c.config.NodeTimeout)
		defer cancel()
	}

	started := time.Now()
	var result any
	execErr := c.pool.SubmitWait(nodeCtx, func(taskCtx context.Context) error {
		r, err := exec.Execute(taskCtx, node, state)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	elapsed := time.Since(started)

	entry := TraceEntry{
		NodeID:    node.ID,
		NodeKind:  node.Kind,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	if execErr != nil {
		entry.Error = execErr.Error()
		entry.Failed = true
		c.logger.Warn("节点执行失败 | node execution failed",
			zap.String("run_id", run.ID),
			zap.String("node_id", node.ID),
			zap.String("node_kind", string(node.Kind)),
			zap.Error(execErr))
	}
	c.appendTrace(ctx, run, entry)
	c.metrics.RecordNode(node.Kind, execErr != nil, elapsed)

	if execErr != nil {
		if ctx.Err() != nil {
			return result, context.Canceled
		}
		return result, execErr
	}
	return result, nil
}

// appendTrace checkpoints one trace entry. The store write is detached from
// the walk context so a cancelled run still records its tail. A failed append
// is logged, not fatal: losing a trace line must not abort the run.
func (c *Coordinator) appendTrace(ctx context.Context, run *Run, entry TraceEntry) {
	run.Trace = append(run.Trace, entry)
	if err := c.store.AppendTrace(context.WithoutCancel(ctx), run.ID, entry); err != nil {
		c.logger.Error("轨迹写入失败 | failed to checkpoint trace entry",
			zap.String("run_id", run.ID),
			zap.String("node_id", entry.NodeID),
			zap.Error(err))
	}
}

// collectOutput prefers the output nodes' exports; a run without output
// nodes falls back to the last non-nil node result.
func (c *Coordinator) collectOutput(state *RunState, lastResult any) any {
	if len(state.Output) > 0 {
		return state.Output
	}
	return lastResult
}

// ============================================================
// Cancel / inspect
// ============================================================

// CancelWorkflow requests cancellation of a run. Unknown runs return
// RUN_NOT_FOUND; runs already at a terminal status return RUN_FINISHED. The
// request is best-effort: an in-flight capability call completes before the
// run turns cancelled, and the walk stops at the next step boundary.
func (c *Coordinator) CancelWorkflow(ctx context.Context, runID string) error {
	run, err := c.store.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		return types.NewError(types.ErrRunFinished,
			fmt.Sprintf("run %s already finished with status %s", runID, run.Status))
	}

	if c.registry.Cancel(runID) {
		return nil
	}

	// Not in flight (e.g. pending in another process that died): finalize
	// the record directly so the status cannot stay non-terminal forever.
	now := time.Now().UTC()
	update := StatusUpdate{
		Error:       "cancelled by request",
		CompletedAt: &now,
	}
	if run.StartedAt != nil {
		update.ExecutionTime = now.Sub(*run.StartedAt).Seconds()
	}
	if err := c.store.SetStatus(ctx, runID, StatusCancelled, update); err != nil {
		// The run may have reached a terminal status between our snapshot and
		// this write; report that as the usual finished rejection.
		if types.GetErrorCode(err) == types.ErrInvalidTransition {
			return types.NewError(types.ErrRunFinished,
				fmt.Sprintf("run %s already finished", runID)).WithCause(err)
		}
		return types.NewError(types.ErrInternalError, "failed to mark run cancelled").WithCause(err)
	}
	c.events.Publish(Event{
		Type:      EventWorkflowStatus,
		RunID:     runID,
		Status:    StatusCancelled,
		Timestamp: now,
	})
	return nil
}

// GetRun returns the persisted snapshot of a run.
func (c *Coordinator) GetRun(ctx context.Context, runID string) (*Run, error) {
	return c.store.Get(ctx, runID)
}

// ListRuns returns persisted runs matching the filter, newest first.
func (c *Coordinator) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	return c.store.List(ctx, filter)
}

// ActiveRuns returns the number of in-flight runs in this process.
func (c *Coordinator) ActiveRuns() int {
	return c.registry.Active()
}
