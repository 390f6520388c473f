package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory. Only suitable for single
// process deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Key]UsageRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key]UsageRecord)}
}

func (m *MemoryStore) Increment(_ context.Context, key Key, now time.Time, window time.Duration) (UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || !rec.ResetTime.After(now) {
		rec = UsageRecord{ResetTime: now.Add(window)}
	}
	rec.Count++
	m.records[key] = rec
	return rec, nil
}

// DeleteExpired deletes all records expired at now and returns the amount
// deleted.
func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for k, rec := range m.records {
		if !rec.ResetTime.After(now) {
			delete(m.records, k)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the amount of tracked counters.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
