package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisRecord is the stored JSON layout: envelope metadata plus the payload.
type redisRecord struct {
	Envelope
	Payload json.RawMessage `json:"payload"`
}

// RedisStore keeps artifacts in Redis under "<stage>:<session>" keys, exactly
// one key per artifact. SET is the single-key atomic write the store contract
// relies on. TTL, when configured, is the only eviction policy; this core
// never deletes artifacts itself.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (r *RedisStore) Put(ctx context.Context, sessionID string, key Key, payload any) error {
	if err := checkPayload(key, payload); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s artifact: %w", key, err)
	}
	rec := redisRecord{
		Envelope: Envelope{SessionID: sessionID, Stage: key, StoredAt: r.now()},
		Payload:  raw,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", key, err)
	}
	if err := r.rdb.Set(ctx, storageKey(sessionID, key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store %s artifact: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, sessionID string, key Key, out any) error {
	if err := checkOut(key, out); err != nil {
		return err
	}
	data, err := r.rdb.Get(ctx, storageKey(sessionID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("fetch %s artifact: %w", key, err)
	}
	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode %s envelope: %w", key, err)
	}
	if err := json.Unmarshal(rec.Payload, out); err != nil {
		return fmt.Errorf("decode %s artifact: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Exists(ctx context.Context, sessionID string, key Key) (bool, error) {
	n, err := r.rdb.Exists(ctx, storageKey(sessionID, key)).Result()
	if err != nil {
		return false, fmt.Errorf("check %s artifact: %w", key, err)
	}
	return n > 0, nil
}

func (r *RedisStore) Sessions(ctx context.Context, key Key) ([]string, error) {
	prefix := string(key) + ":"
	var ids []string
	iter := r.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s artifacts: %w", key, err)
	}
	return ids, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
