package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BaSui01/canvasflow/types"
	"github.com/BaSui01/canvasflow/workflow"
)

// The three store implementations share one behavior suite: the engine must
// not care which backend holds the checkpoints.
func storeImplementations(t *testing.T) map[string]workflow.RunStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	gormStore, err := NewGormStore(db)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]workflow.RunStore{
		"memory": NewMemoryStore(),
		"gorm":   gormStore,
		"redis":  NewRedisStoreWithClient(client, "test:", 0),
	}
}

func newRun(canvasID string) *workflow.Run {
	return &workflow.Run{
		CanvasID:  canvasID,
		ProjectID: "p1",
		Status:    workflow.StatusPending,
		Input:     map[string]any{"q": "hello"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestRunStore_CreateAndGet(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := s.Create(ctx, newRun("c1"))
			require.NoError(t, err)
			require.NotEmpty(t, id)

			run, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "c1", run.CanvasID)
			assert.Equal(t, workflow.StatusPending, run.Status)
			assert.Equal(t, map[string]any{"q": "hello"}, run.Input)

			_, err = s.Get(ctx, "missing")
			require.Error(t, err)
			assert.Equal(t, types.ErrRunNotFound, types.GetErrorCode(err))
		})
	}
}

func TestRunStore_AppendTracePreservesOrder(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Create(ctx, newRun("c1"))
			require.NoError(t, err)

			for i, nodeID := range []string{"in", "work", "out"} {
				err := s.AppendTrace(ctx, id, workflow.TraceEntry{
					NodeID:    nodeID,
					NodeKind:  workflow.KindTool,
					Result:    float64(i),
					Timestamp: time.Now().UTC(),
				})
				require.NoError(t, err)
			}

			run, err := s.Get(ctx, id)
			require.NoError(t, err)
			require.Len(t, run.Trace, 3)
			assert.Equal(t, "in", run.Trace[0].NodeID)
			assert.Equal(t, "work", run.Trace[1].NodeID)
			assert.Equal(t, "out", run.Trace[2].NodeID)

			err = s.AppendTrace(ctx, "missing", workflow.TraceEntry{NodeID: "x"})
			require.Error(t, err)
			assert.Equal(t, types.ErrRunNotFound, types.GetErrorCode(err))
		})
	}
}

func TestRunStore_StatusTransitions(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Create(ctx, newRun("c1"))
			require.NoError(t, err)

			started := time.Now().UTC()
			err = s.SetStatus(ctx, id, workflow.StatusRunning, workflow.StatusUpdate{
				StartedAt: &started,
				Strategy:  workflow.StrategySequential,
			})
			require.NoError(t, err)

			completed := started.Add(2 * time.Second)
			err = s.SetStatus(ctx, id, workflow.StatusCompleted, workflow.StatusUpdate{
				Output:        map[string]any{"answer": "42"},
				CompletedAt:   &completed,
				ExecutionTime: 2.0,
			})
			require.NoError(t, err)

			run, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, workflow.StatusCompleted, run.Status)
			assert.Equal(t, workflow.StrategySequential, run.Strategy)
			assert.Equal(t, map[string]any{"answer": "42"}, run.Output)
			assert.Equal(t, 2.0, run.ExecutionTime)
			require.NotNil(t, run.StartedAt)
			require.NotNil(t, run.CompletedAt)

			// Terminal status is immutable.
			err = s.SetStatus(ctx, id, workflow.StatusCancelled, workflow.StatusUpdate{})
			require.Error(t, err)
			assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))

			run, err = s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, workflow.StatusCompleted, run.Status)
		})
	}
}

func TestRunStore_IllegalFirstTransition(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Create(ctx, newRun("c1"))
			require.NoError(t, err)

			err = s.SetStatus(ctx, id, workflow.StatusCompleted, workflow.StatusUpdate{})
			require.Error(t, err, "pending cannot jump straight to completed")
			assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
		})
	}
}

func TestRunStore_ListFilters(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			base := time.Now().UTC().Add(-time.Hour)
			for i, canvasID := range []string{"c1", "c1", "c2"} {
				run := newRun(canvasID)
				run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
				_, err := s.Create(ctx, run)
				require.NoError(t, err)
			}

			all, err := s.List(ctx, workflow.RunFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.True(t, !all[0].CreatedAt.Before(all[1].CreatedAt), "newest first")

			c1Only, err := s.List(ctx, workflow.RunFilter{CanvasID: "c1"})
			require.NoError(t, err)
			assert.Len(t, c1Only, 2)

			pending, err := s.List(ctx, workflow.RunFilter{Status: []workflow.RunStatus{workflow.StatusPending}})
			require.NoError(t, err)
			assert.Len(t, pending, 3)

			limited, err := s.List(ctx, workflow.RunFilter{Limit: 2})
			require.NoError(t, err)
			assert.Len(t, limited, 2)

			offset, err := s.List(ctx, workflow.RunFilter{Offset: 2})
			require.NoError(t, err)
			assert.Len(t, offset, 1)
		})
	}
}

func TestMemoryStore_SnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.Create(ctx, newRun("c1"))
	require.NoError(t, err)

	first, err := s.Get(ctx, id)
	require.NoError(t, err)
	first.Input["q"] = "mutated"
	first.Trace = append(first.Trace, workflow.TraceEntry{NodeID: "bogus"})

	second, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", second.Input["q"], "snapshot mutation must not leak back")
	assert.Empty(t, second.Trace)
}
