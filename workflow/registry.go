package workflow

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/types"
)

// Registry tracks in-flight runs and their cancellation handles.
// 注册表：记录运行中的工作流及其取消句柄
//
// At most one handle exists per run id; a run is registered exactly once for
// the running portion of its lifetime and removed when it reaches a terminal
// status.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]context.CancelFunc
	logger  *zap.Logger
}

// NewRegistry creates an empty run registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handles: make(map[string]context.CancelFunc),
		logger:  logger.With(zap.String("component", "run_registry")),
	}
}

// Register records the cancel handle for a run. Registering an id twice is a
// coordinator bug and returns INVALID_TRANSITION.
func (r *Registry) Register(runID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[runID]; exists {
		return types.NewError(types.ErrInvalidTransition, "run is already registered: "+runID)
	}
	r.handles[runID] = cancel
	return nil
}

// Cancel fires the run's cancel handle if present. It returns false when the
// run is unknown, which the caller treats as already finished.
func (r *Registry) Cancel(runID string) bool {
	r.mu.Lock()
	cancel, ok := r.handles[runID]
	if ok {
		delete(r.handles, runID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	r.logger.Info("取消信号已发送 | cancel signal delivered", zap.String("run_id", runID))
	return true
}

// Remove drops the run's handle without firing it. Called when a run reaches
// a terminal status on its own. Removing an unknown id is a no-op.
func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	delete(r.handles, runID)
	r.mu.Unlock()
}

// Active returns the number of registered in-flight runs.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// IsActive reports whether the run currently holds a cancel handle.
func (r *Registry) IsActive(runID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[runID]
	return ok
}
