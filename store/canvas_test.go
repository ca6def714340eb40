package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BaSui01/canvasflow/types"
	"github.com/BaSui01/canvasflow/workflow"
)

func canvasStores(t *testing.T) map[string]CanvasStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	gs, err := NewGormCanvasStore(db)
	require.NoError(t, err)

	return map[string]CanvasStore{
		"memory": NewMemoryCanvasStore(),
		"gorm":   gs,
	}
}

func TestCanvasStore_SaveAndCompile(t *testing.T) {
	canvas := &workflow.Canvas{
		Nodes: []workflow.Node{
			{ID: "in", Kind: workflow.KindInput, Config: workflow.NodeConfig{Data: map[string]any{"x": 1}}},
			{ID: "out", Kind: workflow.KindOutput},
		},
		Edges: []workflow.Edge{{Source: "in", Target: "out"}},
	}

	for name, s := range canvasStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := s.Save(ctx, "", "p1", canvas)
			require.NoError(t, err)
			require.NotEmpty(t, id)

			stored, err := s.GetCanvas(ctx, id)
			require.NoError(t, err)
			assert.Len(t, stored.Nodes, 2)

			graph, err := s.GetGraph(ctx, id)
			require.NoError(t, err)
			assert.Len(t, graph.Nodes(), 2)
			assert.Equal(t, "in", graph.Entry())
		})
	}
}

func TestCanvasStore_Upsert(t *testing.T) {
	for name, s := range canvasStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := &workflow.Canvas{Nodes: []workflow.Node{{ID: "a", Kind: workflow.KindInput}}}
			id, err := s.Save(ctx, "fixed", "p1", first)
			require.NoError(t, err)
			assert.Equal(t, "fixed", id)

			second := &workflow.Canvas{Nodes: []workflow.Node{
				{ID: "a", Kind: workflow.KindInput},
				{ID: "b", Kind: workflow.KindOutput},
			}}
			_, err = s.Save(ctx, "fixed", "p1", second)
			require.NoError(t, err)

			stored, err := s.GetCanvas(ctx, "fixed")
			require.NoError(t, err)
			assert.Len(t, stored.Nodes, 2, "save replaces the document")
		})
	}
}

func TestCanvasStore_UnknownCanvas(t *testing.T) {
	for name, s := range canvasStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetGraph(context.Background(), "ghost")
			require.Error(t, err)
		})
	}
}

func TestCanvasStore_MalformedCanvasFailsOnCompile(t *testing.T) {
	for name, s := range canvasStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bad := &workflow.Canvas{
				Nodes: []workflow.Node{{ID: "a", Kind: workflow.KindInput}},
				Edges: []workflow.Edge{{Source: "a", Target: "ghost"}},
			}
			id, err := s.Save(ctx, "", "p1", bad)
			require.NoError(t, err, "storing a malformed canvas is allowed")

			_, err = s.GetGraph(ctx, id)
			require.Error(t, err, "compiling it is not")
			assert.Equal(t, types.ErrMalformedGraph, types.GetErrorCode(err))
		})
	}
}
