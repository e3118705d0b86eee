package task

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// MemoryRegistry is an in-process Registry for tests and single-node runs.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: map[string]Record{}, now: time.Now}
}

func (m *MemoryRegistry) Create(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	rec.UpdatedAt = rec.CreatedAt
	m.records[rec.TaskID] = rec
	return nil
}

func (m *MemoryRegistry) Transition(ctx context.Context, taskID string, next State, message string, result any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[taskID]
	if !ok {
		return ErrNotFound
	}
	if stale(cur, next) {
		log.WithFields(log.Fields{
			"task_id": taskID,
			"from":    cur.State,
			"to":      next,
		}).Warn("dropping stale task transition")
		return nil
	}
	m.records[taskID] = advance(cur, next, message, result, m.now())
	return nil
}

func (m *MemoryRegistry) Get(ctx context.Context, taskID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[taskID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryRegistry) Ping(ctx context.Context) error { return nil }
