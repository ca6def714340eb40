// Package workflow implements the CanvasFlow execution engine: it compiles a
// visual canvas (nodes + edges) into an executable graph, classifies the
// execution strategy, drives a run through its status lifecycle, and records
// an append-only execution trace.
//
// The engine owns no storage or network concerns of its own. It talks to the
// outside world through narrow interfaces (RunStore, CanvasProvider,
// ToolProvider, AgentProvider, ConditionEvaluator, EventSink) so that the
// management API, capability backends, and transports remain swappable.
package workflow
