package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	envelope Envelope
	payload  []byte
}

// MemoryStore is an in-process Store with the same overwrite semantics as the
// Redis backend. It backs tests and single-node runs without Redis.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryStore) Put(ctx context.Context, sessionID string, key Key, payload any) error {
	if err := checkPayload(key, payload); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s artifact: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[storageKey(sessionID, key)] = memoryEntry{
		envelope: Envelope{SessionID: sessionID, Stage: key, StoredAt: m.now()},
		payload:  raw,
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string, key Key, out any) error {
	if err := checkOut(key, out); err != nil {
		return err
	}
	m.mu.RLock()
	entry, ok := m.entries[storageKey(sessionID, key)]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(entry.payload, out); err != nil {
		return fmt.Errorf("decode %s artifact: %w", key, err)
	}
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, sessionID string, key Key) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[storageKey(sessionID, key)]
	return ok, nil
}

func (m *MemoryStore) Sessions(ctx context.Context, key Key) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, entry := range m.entries {
		if entry.envelope.Stage == key {
			ids = append(ids, entry.envelope.SessionID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
