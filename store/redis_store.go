package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/canvasflow/types"
	"github.com/BaSui01/canvasflow/workflow"
)

// RedisStore persists runs in Redis for distributed deployments. Run
// documents live under hash-free string keys; sorted sets indexed by creation
// time serve the list queries.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisStoreConfig configures the Redis run store.
type RedisStoreConfig struct {
	Addr      string        `json:"addr" yaml:"addr"`
	Password  string        `json:"password" yaml:"password"`
	DB        int           `json:"db" yaml:"db"`
	PoolSize  int           `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"`
}

// NewRedisStore connects to Redis and returns a run store. The connection is
// verified with a ping before the store is handed out.
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "failed to connect to redis").WithCause(err)
	}

	return NewRedisStoreWithClient(client, config.KeyPrefix, config.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests that run
// against miniredis.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "canvasflow:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "run:",
		ttl:       ttl,
	}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks store health.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) runKey(runID string) string   { return s.keyPrefix + "data:" + runID }
func (s *RedisStore) traceKey(runID string) string { return s.keyPrefix + "trace:" + runID }
func (s *RedisStore) allKey() string               { return s.keyPrefix + "all" }
func (s *RedisStore) canvasKey(id string) string   { return s.keyPrefix + "canvas:" + id }
func (s *RedisStore) projectKey(id string) string  { return s.keyPrefix + "project:" + id }

// Create persists a new run, assigning an id when absent.
func (s *RedisStore) Create(ctx context.Context, run *workflow.Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	data, err := json.Marshal(run)
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to encode run").WithCause(err)
	}

	score := float64(run.CreatedAt.UnixNano())
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.runKey(run.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: run.ID})
	if run.CanvasID != "" {
		pipe.ZAdd(ctx, s.canvasKey(run.CanvasID), redis.Z{Score: score, Member: run.ID})
	}
	if run.ProjectID != "" {
		pipe.ZAdd(ctx, s.projectKey(run.ProjectID), redis.Z{Score: score, Member: run.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to persist run").WithCause(err)
	}
	return run.ID, nil
}

// AppendTrace appends one trace entry. The trace lives in its own list so
// appends never race the run document.
func (s *RedisStore) AppendTrace(ctx context.Context, runID string, entry workflow.TraceEntry) error {
	exists, err := s.client.Exists(ctx, s.runKey(runID)).Result()
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to check run").WithCause(err)
	}
	if exists == 0 {
		return types.NewError(types.ErrRunNotFound, "run not found: "+runID)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to encode trace entry").WithCause(err)
	}
	if err := s.client.RPush(ctx, s.traceKey(runID), data).Err(); err != nil {
		return types.NewError(types.ErrInternalError, "failed to append trace entry").WithCause(err)
	}
	if s.ttl > 0 {
		s.client.Expire(ctx, s.traceKey(runID), s.ttl)
	}
	return nil
}

// SetStatus transitions the run's status and applies the update fields.
func (s *RedisStore) SetStatus(ctx context.Context, runID string, status workflow.RunStatus, update workflow.StatusUpdate) error {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if !run.Status.CanTransition(status) {
		return types.NewError(types.ErrInvalidTransition,
			"cannot transition run from "+string(run.Status)+" to "+string(status))
	}

	run.Status = status
	applyUpdate(run, update)

	data, err := json.Marshal(run)
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to encode run").WithCause(err)
	}
	if err := s.client.Set(ctx, s.runKey(runID), data, s.ttl).Err(); err != nil {
		return types.NewError(types.ErrInternalError, "failed to persist run").WithCause(err)
	}
	return nil
}

// Get retrieves one run with its trace.
func (s *RedisStore) Get(ctx context.Context, runID string) (*workflow.Run, error) {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, s.traceKey(runID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, types.NewError(types.ErrInternalError, "failed to load trace").WithCause(err)
	}
	for _, item := range raw {
		var entry workflow.TraceEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, types.NewError(types.ErrInternalError, "corrupt trace entry").WithCause(err)
		}
		run.Trace = append(run.Trace, entry)
	}
	return run, nil
}

// List retrieves runs matching the filter, newest first.
func (s *RedisStore) List(ctx context.Context, filter workflow.RunFilter) ([]*workflow.Run, error) {
	indexKey := s.allKey()
	switch {
	case filter.CanvasID != "":
		indexKey = s.canvasKey(filter.CanvasID)
	case filter.ProjectID != "":
		indexKey = s.projectKey(filter.ProjectID)
	}

	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to list runs").WithCause(err)
	}

	out := make([]*workflow.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.Get(ctx, id)
		if err != nil {
			// Expired documents leave dangling index members behind.
			if types.GetErrorCode(err) == types.ErrRunNotFound {
				continue
			}
			return nil, err
		}
		if !filterMatches(run, filter) {
			continue
		}
		out = append(out, run)
	}
	return paginate(out, filter), nil
}

func (s *RedisStore) loadRun(ctx context.Context, runID string) (*workflow.Run, error) {
	data, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, types.NewError(types.ErrRunNotFound, "run not found: "+runID)
		}
		return nil, types.NewError(types.ErrInternalError, "failed to load run").WithCause(err)
	}
	var run workflow.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, types.NewError(types.ErrInternalError, "corrupt run payload").WithCause(err)
	}
	return &run, nil
}
