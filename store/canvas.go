package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BaSui01/canvasflow/types"
	"github.com/BaSui01/canvasflow/workflow"
)

// CanvasStore persists canvas documents and serves compiled graphs to the
// engine. GetGraph compiles on read so a malformed canvas fails the run that
// references it, not the write that stored it.
type CanvasStore interface {
	workflow.CanvasProvider
	// Save upserts a canvas document and returns its id.
	Save(ctx context.Context, canvasID, projectID string, canvas *workflow.Canvas) (string, error)
	// GetCanvas returns the stored canvas document.
	GetCanvas(ctx context.Context, canvasID string) (*workflow.Canvas, error)
}

// ============================================================
// Memory
// ============================================================

// MemoryCanvasStore keeps canvases in process memory.
type MemoryCanvasStore struct {
	mu       sync.RWMutex
	canvases map[string]*workflow.Canvas
}

// NewMemoryCanvasStore creates an empty in-memory canvas store.
func NewMemoryCanvasStore() *MemoryCanvasStore {
	return &MemoryCanvasStore{canvases: make(map[string]*workflow.Canvas)}
}

// Save upserts a canvas, assigning an id when absent.
func (s *MemoryCanvasStore) Save(_ context.Context, canvasID, _ string, canvas *workflow.Canvas) (string, error) {
	if canvasID == "" {
		canvasID = uuid.NewString()
	}
	s.mu.Lock()
	s.canvases[canvasID] = canvas
	s.mu.Unlock()
	return canvasID, nil
}

// GetCanvas returns the stored canvas document.
func (s *MemoryCanvasStore) GetCanvas(_ context.Context, canvasID string) (*workflow.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	canvas, ok := s.canvases[canvasID]
	if !ok {
		return nil, types.NewError(types.ErrInvalidRequest, "canvas not found: "+canvasID).WithHTTPStatus(404)
	}
	return canvas, nil
}

// GetGraph implements workflow.CanvasProvider.
func (s *MemoryCanvasStore) GetGraph(ctx context.Context, canvasID string) (*workflow.Graph, error) {
	canvas, err := s.GetCanvas(ctx, canvasID)
	if err != nil {
		return nil, err
	}
	return workflow.BuildGraph(canvas)
}

// ============================================================
// GORM
// ============================================================

// CanvasRecord is the database row for one canvas. The node and edge lists
// live in a JSON text column; the engine interprets nothing else.
type CanvasRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	ProjectID  string `gorm:"size:64;index"`
	CanvasData string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName keeps the table name stable across GORM naming strategies.
func (CanvasRecord) TableName() string { return "canvases" }

// GormCanvasStore persists canvases through GORM.
type GormCanvasStore struct {
	db *gorm.DB
}

// NewGormCanvasStore migrates the schema and returns a store bound to db.
func NewGormCanvasStore(db *gorm.DB) (*GormCanvasStore, error) {
	if err := db.AutoMigrate(&CanvasRecord{}); err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to migrate canvas schema").WithCause(err)
	}
	return &GormCanvasStore{db: db}, nil
}

// Save upserts a canvas document, assigning an id when absent.
func (s *GormCanvasStore) Save(ctx context.Context, canvasID, projectID string, canvas *workflow.Canvas) (string, error) {
	if canvasID == "" {
		canvasID = uuid.NewString()
	}
	raw, err := json.Marshal(canvas)
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to encode canvas").WithCause(err)
	}

	record := CanvasRecord{ID: canvasID, ProjectID: projectID, CanvasData: string(raw)}
	err = s.db.WithContext(ctx).
		Where("id = ?", canvasID).
		Assign(map[string]any{"canvas_data": record.CanvasData, "project_id": projectID}).
		FirstOrCreate(&record).Error
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to save canvas").WithCause(err)
	}
	return canvasID, nil
}

// GetCanvas returns the stored canvas document.
func (s *GormCanvasStore) GetCanvas(ctx context.Context, canvasID string) (*workflow.Canvas, error) {
	var record CanvasRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", canvasID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrInvalidRequest, "canvas not found: "+canvasID).WithHTTPStatus(404)
		}
		return nil, types.NewError(types.ErrInternalError, "failed to load canvas").WithCause(err)
	}

	var canvas workflow.Canvas
	if err := json.Unmarshal([]byte(record.CanvasData), &canvas); err != nil {
		return nil, types.NewError(types.ErrInternalError, "corrupt canvas payload").WithCause(err)
	}
	return &canvas, nil
}

// GetGraph implements workflow.CanvasProvider.
func (s *GormCanvasStore) GetGraph(ctx context.Context, canvasID string) (*workflow.Graph, error) {
	canvas, err := s.GetCanvas(ctx, canvasID)
	if err != nil {
		return nil, err
	}
	return workflow.BuildGraph(canvas)
}
