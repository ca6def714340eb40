package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/canvasflow/types"
	"github.com/BaSui01/canvasflow/workflow"
)

// RunRecord 运行记录表结构
// RunRecord is the database row for one run. Input, output and trace are
// stored as JSON text so the schema works unchanged on SQLite, PostgreSQL
// and MySQL.
type RunRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	ProjectID  string `gorm:"size:64;index"`
	CanvasID   string `gorm:"size:64;index"`
	WorkflowID string `gorm:"size:64"`

	Status   string `gorm:"size:16;index"`
	Strategy string `gorm:"size:16"`

	Input  string `gorm:"type:text"`
	Output string `gorm:"type:text"`
	Trace  string `gorm:"type:text"`

	ErrorMessage string `gorm:"type:text"`

	CreatedAt     time.Time `gorm:"index"`
	StartedAt     *time.Time
	CompletedAt   *time.Time
	ExecutionTime float64
}

// TableName keeps the table name stable across GORM naming strategies.
func (RunRecord) TableName() string { return "workflow_runs" }

// GormStore persists runs through GORM. Works with the SQLite, PostgreSQL
// and MySQL drivers.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the schema and returns a store bound to db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to migrate run schema").WithCause(err)
	}
	return &GormStore{db: db}, nil
}

// Create persists a new run, assigning an id when absent.
func (s *GormStore) Create(ctx context.Context, run *workflow.Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	record, err := toRecord(run)
	if err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to create run").WithCause(err)
	}
	return run.ID, nil
}

// AppendTrace appends one trace entry inside a transaction: the read-append-
// write is atomic so concurrent appenders cannot drop entries.
func (s *GormStore) AppendTrace(ctx context.Context, runID string, entry workflow.TraceEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record RunRecord
		if err := withLock(tx).First(&record, "id = ?", runID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.NewError(types.ErrRunNotFound, "run not found: "+runID)
			}
			return types.NewError(types.ErrInternalError, "failed to load run").WithCause(err)
		}

		var trace []workflow.TraceEntry
		if record.Trace != "" {
			if err := json.Unmarshal([]byte(record.Trace), &trace); err != nil {
				return types.NewError(types.ErrInternalError, "corrupt trace payload").WithCause(err)
			}
		}
		trace = append(trace, entry)
		raw, err := json.Marshal(trace)
		if err != nil {
			return types.NewError(types.ErrInternalError, "failed to encode trace").WithCause(err)
		}

		return tx.Model(&RunRecord{}).Where("id = ?", runID).
			Update("trace", string(raw)).Error
	})
}

// SetStatus transitions the run's status and applies the update fields. The
// state machine is enforced inside the transaction so a cancel racing a
// completion cannot overwrite a terminal status.
func (s *GormStore) SetStatus(ctx context.Context, runID string, status workflow.RunStatus, update workflow.StatusUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record RunRecord
		if err := withLock(tx).First(&record, "id = ?", runID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.NewError(types.ErrRunNotFound, "run not found: "+runID)
			}
			return types.NewError(types.ErrInternalError, "failed to load run").WithCause(err)
		}

		from := workflow.RunStatus(record.Status)
		if !from.CanTransition(status) {
			return types.NewError(types.ErrInvalidTransition,
				"cannot transition run from "+record.Status+" to "+string(status))
		}

		changes := map[string]any{
			"status":        string(status),
			"error_message": update.Error,
		}
		if update.Output != nil {
			raw, err := json.Marshal(update.Output)
			if err != nil {
				return types.NewError(types.ErrInternalError, "failed to encode output").WithCause(err)
			}
			changes["output"] = string(raw)
		}
		if update.StartedAt != nil {
			changes["started_at"] = update.StartedAt
		}
		if update.CompletedAt != nil {
			changes["completed_at"] = update.CompletedAt
			changes["execution_time"] = update.ExecutionTime
		}
		if update.Strategy != "" {
			changes["strategy"] = string(update.Strategy)
		}

		return tx.Model(&RunRecord{}).Where("id = ?", runID).Updates(changes).Error
	})
}

// Get retrieves one run by id.
func (s *GormStore) Get(ctx context.Context, runID string) (*workflow.Run, error) {
	var record RunRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrRunNotFound, "run not found: "+runID)
		}
		return nil, types.NewError(types.ErrInternalError, "failed to load run").WithCause(err)
	}
	return fromRecord(&record)
}

// List retrieves runs matching the filter, newest first.
func (s *GormStore) List(ctx context.Context, filter workflow.RunFilter) ([]*workflow.Run, error) {
	query := s.db.WithContext(ctx).Model(&RunRecord{}).Order("created_at DESC")
	if filter.ProjectID != "" {
		query = query.Where("project_id = ?", filter.ProjectID)
	}
	if filter.CanvasID != "" {
		query = query.Where("canvas_id = ?", filter.CanvasID)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			statuses[i] = string(st)
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []RunRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to list runs").WithCause(err)
	}

	out := make([]*workflow.Run, 0, len(records))
	for i := range records {
		run, err := fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// withLock adds SELECT ... FOR UPDATE on backends that support it. SQLite
// serializes writers on its own.
func withLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func toRecord(run *workflow.Run) (*RunRecord, error) {
	record := &RunRecord{
		ID:            run.ID,
		ProjectID:     run.ProjectID,
		CanvasID:      run.CanvasID,
		WorkflowID:    run.WorkflowID,
		Status:        string(run.Status),
		Strategy:      string(run.Strategy),
		ErrorMessage:  run.ErrorMessage,
		CreatedAt:     run.CreatedAt,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
		ExecutionTime: run.ExecutionTime,
	}
	if run.Input != nil {
		raw, err := json.Marshal(run.Input)
		if err != nil {
			return nil, types.NewError(types.ErrInternalError, "failed to encode input").WithCause(err)
		}
		record.Input = string(raw)
	}
	if run.Output != nil {
		raw, err := json.Marshal(run.Output)
		if err != nil {
			return nil, types.NewError(types.ErrInternalError, "failed to encode output").WithCause(err)
		}
		record.Output = string(raw)
	}
	if len(run.Trace) > 0 {
		raw, err := json.Marshal(run.Trace)
		if err != nil {
			return nil, types.NewError(types.ErrInternalError, "failed to encode trace").WithCause(err)
		}
		record.Trace = string(raw)
	}
	return record, nil
}

func fromRecord(record *RunRecord) (*workflow.Run, error) {
	run := &workflow.Run{
		ID:            record.ID,
		ProjectID:     record.ProjectID,
		CanvasID:      record.CanvasID,
		WorkflowID:    record.WorkflowID,
		Status:        workflow.RunStatus(record.Status),
		Strategy:      workflow.Strategy(record.Strategy),
		ErrorMessage:  record.ErrorMessage,
		CreatedAt:     record.CreatedAt,
		StartedAt:     record.StartedAt,
		CompletedAt:   record.CompletedAt,
		ExecutionTime: record.ExecutionTime,
	}
	if record.Input != "" {
		if err := json.Unmarshal([]byte(record.Input), &run.Input); err != nil {
			return nil, types.NewError(types.ErrInternalError, "corrupt input payload").WithCause(err)
		}
	}
	if record.Output != "" {
		if err := json.Unmarshal([]byte(record.Output), &run.Output); err != nil {
			return nil, types.NewError(types.ErrInternalError, "corrupt output payload").WithCause(err)
		}
	}
	if record.Trace != "" {
		if err := json.Unmarshal([]byte(record.Trace), &run.Trace); err != nil {
			return nil, types.NewError(types.ErrInternalError, "corrupt trace payload").WithCause(err)
		}
	}
	return run, nil
}
