package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	id      string
	expires time.Time
}

// MemoryStore is a process-local Store. Sessions slide: every Resolve pushes
// the expiry ttl into the future. A ttl of zero never expires sessions.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Resolve returns the user's live session or starts a new one.
func (m *MemoryStore) Resolve(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[userID]
	if !ok || m.expired(e, now) {
		e = entry{id: NewID()}
	}
	if m.ttl > 0 {
		e.expires = now.Add(m.ttl)
	}
	m.entries[userID] = e
	return e.id, nil
}

// Expire removes the user's session.
func (m *MemoryStore) Expire(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired sessions and reports how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for user, e := range m.entries {
		if m.expired(e, now) {
			delete(m.entries, user)
			n++
		}
	}
	return n
}

// Len reports how many sessions are held, including expired ones not yet swept.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) expired(e entry, now time.Time) bool {
	return m.ttl > 0 && !now.Before(e.expires)
}

// SweepEvery runs Sweep on a ticker until stop is called.
func (m *MemoryStore) SweepEvery(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				m.Sweep()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
