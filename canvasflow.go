// Package canvasflow provides a top-level convenience entry point for
// embedding the workflow engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/canvasflow"
//
//	engine, err := canvasflow.New()
//	engine, err := canvasflow.New(canvasflow.WithLogger(logger))
//	engine, err := canvasflow.New(canvasflow.WithRunStore(myStore))
//
// The zero-option engine keeps runs and canvases in process memory and uses
// the built-in tool registry and local agent provider. Production servers
// should wire their own stores; see cmd/canvasflow.
package canvasflow

import (
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/events"
	"github.com/BaSui01/canvasflow/providers"
	"github.com/BaSui01/canvasflow/store"
	"github.com/BaSui01/canvasflow/workflow"
	"github.com/BaSui01/canvasflow/workflow/dsl"
)

// Engine bundles the coordinator with the canvas store it reads from, so an
// embedding application can save canvases and execute them with one handle.
type Engine struct {
	*workflow.Coordinator

	// Canvases is the canvas store the coordinator compiles graphs from.
	Canvases store.CanvasStore
	// Events is the hub run events are published to.
	Events *events.Hub
}

type options struct {
	config    workflow.CoordinatorConfig
	runStore  workflow.RunStore
	canvases  store.CanvasStore
	tools     workflow.ToolProvider
	agents    workflow.AgentProvider
	evaluator workflow.ConditionEvaluator
	metrics   workflow.MetricsRecorder
	logger    *zap.Logger
}

// Option configures the engine created by [New].
type Option func(*options)

// WithConfig overrides the coordinator configuration.
func WithConfig(config workflow.CoordinatorConfig) Option {
	return func(o *options) { o.config = config }
}

// WithRunStore sets a custom run store (GORM or Redis backed, see store/).
func WithRunStore(s workflow.RunStore) Option {
	return func(o *options) { o.runStore = s }
}

// WithCanvasStore sets a custom canvas store.
func WithCanvasStore(s store.CanvasStore) Option {
	return func(o *options) { o.canvases = s }
}

// WithToolProvider sets a custom tool provider.
func WithToolProvider(p workflow.ToolProvider) Option {
	return func(o *options) { o.tools = p }
}

// WithAgentProvider sets a custom agent provider.
func WithAgentProvider(p workflow.AgentProvider) Option {
	return func(o *options) { o.agents = p }
}

// WithEvaluator sets a custom condition evaluator.
func WithEvaluator(e workflow.ConditionEvaluator) Option {
	return func(o *options) { o.evaluator = e }
}

// WithMetrics sets a metrics recorder.
func WithMetrics(m workflow.MetricsRecorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a ready-to-use engine. All options are optional.
func New(opts ...Option) (*Engine, error) {
	o := options{
		config: workflow.DefaultCoordinatorConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.runStore == nil {
		o.runStore = store.NewMemoryStore()
	}
	if o.canvases == nil {
		o.canvases = store.NewMemoryCanvasStore()
	}
	if o.tools == nil {
		o.tools = providers.NewToolRegistry(o.logger)
	}
	if o.agents == nil {
		o.agents = providers.NewLocalAgentProvider(o.logger)
	}
	if o.evaluator == nil {
		o.evaluator = dsl.NewEvaluator()
	}

	hub := events.NewHub(o.logger)
	coordinator := workflow.NewCoordinator(
		o.config,
		o.runStore,
		o.canvases,
		o.tools,
		o.agents,
		o.evaluator,
		workflow.NewRegistry(o.logger),
		hub,
		o.metrics,
		o.logger,
	)

	return &Engine{
		Coordinator: coordinator,
		Canvases:    o.canvases,
		Events:      hub,
	}, nil
}
