package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/BaSui01/canvasflow/types"
	"github.com/BaSui01/canvasflow/workflow"
)

// MemoryStore 内存运行存储，适合测试和单进程部署
// MemoryStore keeps runs in process memory guarded by a RWMutex. Snapshots
// returned by Get and List are deep copies: callers never observe later
// mutations.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*workflow.Run
	// order preserves creation order for listing, newest first on read.
	order []string
}

// NewMemoryStore creates an empty in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*workflow.Run)}
}

// Create persists a new run, assigning an id when absent.
func (s *MemoryStore) Create(_ context.Context, run *workflow.Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, exists := s.runs[run.ID]; exists {
		return "", types.NewError(types.ErrInvalidRequest, "run already exists: "+run.ID)
	}
	s.runs[run.ID] = cloneRun(run)
	s.order = append(s.order, run.ID)
	return run.ID, nil
}

// AppendTrace appends one trace entry to the run.
func (s *MemoryStore) AppendTrace(_ context.Context, runID string, entry workflow.TraceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return types.NewError(types.ErrRunNotFound, "run not found: "+runID)
	}
	run.Trace = append(run.Trace, entry)
	return nil
}

// SetStatus transitions the run's status and applies the update fields.
func (s *MemoryStore) SetStatus(_ context.Context, runID string, status workflow.RunStatus, update workflow.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return types.NewError(types.ErrRunNotFound, "run not found: "+runID)
	}
	if !run.Status.CanTransition(status) {
		return types.NewError(types.ErrInvalidTransition,
			"cannot transition run from "+string(run.Status)+" to "+string(status))
	}

	run.Status = status
	applyUpdate(run, update)
	return nil
}

// Get retrieves a snapshot of one run.
func (s *MemoryStore) Get(_ context.Context, runID string) (*workflow.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, types.NewError(types.ErrRunNotFound, "run not found: "+runID)
	}
	return cloneRun(run), nil
}

// List retrieves runs matching the filter, newest first.
func (s *MemoryStore) List(_ context.Context, filter workflow.RunFilter) ([]*workflow.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*workflow.Run, 0, len(s.order))
	for _, id := range s.order {
		run := s.runs[id]
		if filterMatches(run, filter) {
			matched = append(matched, run)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	matched = paginate(matched, filter)
	out := make([]*workflow.Run, len(matched))
	for i, run := range matched {
		out[i] = cloneRun(run)
	}
	return out, nil
}

// Count returns the number of stored runs.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func applyUpdate(run *workflow.Run, update workflow.StatusUpdate) {
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
}

func filterMatches(run *workflow.Run, filter workflow.RunFilter) bool {
	if filter.ProjectID != "" && run.ProjectID != filter.ProjectID {
		return false
	}
	if filter.CanvasID != "" && run.CanvasID != filter.CanvasID {
		return false
	}
	if len(filter.Status) > 0 {
		ok := false
		for _, st := range filter.Status {
			if run.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func paginate(runs []*workflow.Run, filter workflow.RunFilter) []*workflow.Run {
	if filter.Offset > 0 {
		if filter.Offset >= len(runs) {
			return nil
		}
		runs = runs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(runs) {
		runs = runs[:filter.Limit]
	}
	return runs
}

func cloneRun(run *workflow.Run) *workflow.Run {
	clone := *run
	if run.Trace != nil {
		clone.Trace = make([]workflow.TraceEntry, len(run.Trace))
		copy(clone.Trace, run.Trace)
	}
	if run.Input != nil {
		clone.Input = make(map[string]any, len(run.Input))
		for k, v := range run.Input {
			clone.Input[k] = v
		}
	}
	return &clone
}
