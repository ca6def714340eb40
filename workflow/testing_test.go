package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/canvasflow/types"
)

// fakeTools invokes a function table keyed by tool name.
type fakeTools struct {
	fns map[string]func(inputs map[string]any) (any, error)
}

func (f *fakeTools) Invoke(_ context.Context, toolName string, inputs map[string]any) (any, error) {
	fn, ok := f.fns[toolName]
	if !ok {
		return nil, types.NewError(types.ErrCapabilityUnavailable, "unknown tool "+toolName)
	}
	return fn(inputs)
}

// fakeAgents answers every invocation deterministically and records calls.
type fakeAgents struct {
	mu          sync.Mutex
	invoked     []string
	crewCalls   int
	invokeErr   error
	crewErr     error
	invokeDelay time.Duration
}

func (f *fakeAgents) Invoke(ctx context.Context, spec AgentSpec, task string) (any, error) {
	if f.invokeDelay > 0 {
		select {
		case <-time.After(f.invokeDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.invoked = append(f.invoked, spec.Role)
	f.mu.Unlock()
	if f.invokeErr != nil {
		return nil, f.invokeErr
	}
	return fmt.Sprintf("%s done: %s", spec.Role, task), nil
}

func (f *fakeAgents) InvokeCrew(_ context.Context, agents []AgentSpec, tasks []CrewTask) (*CrewResult, error) {
	f.mu.Lock()
	f.crewCalls++
	f.mu.Unlock()
	if f.crewErr != nil {
		return nil, f.crewErr
	}
	results := make(map[string]*TaskResult, len(tasks))
	var last any
	for _, task := range tasks {
		out := fmt.Sprintf("%s: %s", agents[task.AgentIndex].Role, task.Description)
		results[task.ID] = &TaskResult{TaskID: task.ID, Output: out}
		last = out
	}
	return &CrewResult{TaskResults: results, Output: last}, nil
}

// fakeEvaluator resolves a single state key and compares.
type fakeEvaluator struct {
	result bool
	err    error
}

func (f *fakeEvaluator) Evaluate(string, map[string]any) (bool, error) {
	return f.result, f.err
}

// memStore is a minimal in-memory RunStore for coordinator tests. The real
// stores live in the store package, which depends on this one.
type memStore struct {
	mu   sync.Mutex
	runs map[string]*Run
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*Run)}
}

func (s *memStore) Create(_ context.Context, run *Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	clone := *run
	s.runs[run.ID] = &clone
	return run.ID, nil
}

func (s *memStore) AppendTrace(_ context.Context, runID string, entry TraceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return types.NewError(types.ErrRunNotFound, "run not found: "+runID)
	}
	run.Trace = append(run.Trace, entry)
	return nil
}

func (s *memStore) SetStatus(_ context.Context, runID string, status RunStatus, update StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return types.NewError(types.ErrRunNotFound, "run not found: "+runID)
	}
	run.Status = status
	run.ErrorMessage = update.Error
	if update.Output != nil {
		run.Output = update.Output
	}
	if update.StartedAt != nil {
		run.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		run.CompletedAt = update.CompletedAt
		run.ExecutionTime = update.ExecutionTime
	}
	if update.Strategy != "" {
		run.Strategy = update.Strategy
	}
	return nil
}

func (s *memStore) Get(_ context.Context, runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, types.NewError(types.ErrRunNotFound, "run not found: "+runID)
	}
	clone := *run
	return &clone, nil
}

func (s *memStore) List(_ context.Context, _ RunFilter) ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		clone := *run
		out = append(out, &clone)
	}
	return out, nil
}

// graphProvider serves pre-built graphs by canvas id.
type graphProvider struct {
	graphs map[string]*Graph
}

func (p *graphProvider) GetGraph(_ context.Context, canvasID string) (*Graph, error) {
	g, ok := p.graphs[canvasID]
	if !ok {
		return nil, types.NewError(types.ErrInvalidRequest, "canvas not found: "+canvasID)
	}
	return g, nil
}

// captureSink records events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(event Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *captureSink) byType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
