package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisRegistry stores one JSON record per task under "task:<id>". Each write
// replaces the whole value; there is no merge. The read-then-write in
// Transition is not guarded by WATCH because a record has exactly one writer,
// the worker that created it. The monotonic check only defends against that
// worker's own delayed writes.
type RedisRegistry struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisRegistry(rdb *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, ttl: ttl, now: time.Now}
}

func taskKey(id string) string { return "task:" + id }

func (r *RedisRegistry) Create(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	rec.UpdatedAt = rec.CreatedAt
	return r.write(ctx, rec)
}

func (r *RedisRegistry) Transition(ctx context.Context, taskID string, next State, message string, result any) error {
	cur, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if stale(cur, next) {
		log.WithFields(log.Fields{
			"task_id": taskID,
			"from":    cur.State,
			"to":      next,
		}).Warn("dropping stale task transition")
		return nil
	}
	return r.write(ctx, advance(cur, next, message, result, r.now()))
}

func (r *RedisRegistry) Get(ctx context.Context, taskID string) (Record, error) {
	data, err := r.rdb.Get(ctx, taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("fetch task %s: %w", taskID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return rec, nil
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisRegistry) write(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", rec.TaskID, err)
	}
	if err := r.rdb.Set(ctx, taskKey(rec.TaskID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store task %s: %w", rec.TaskID, err)
	}
	return nil
}
