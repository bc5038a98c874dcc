// Package session stores the security sessions the rule engine consults on
// every request.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("session not found")

// MaxIdle is how long an untouched session is kept before cleanup reaps it.
const MaxIdle = 24 * time.Hour

// Record is one security session.
type Record struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id,omitempty"`
	Email           string    `json:"email,omitempty"`
	IsAuthenticated bool      `json:"is_authenticated"`
	Roles           []string  `json:"roles,omitempty"`
	Permissions     []string  `json:"permissions,omitempty"`
	CSRFToken       string    `json:"csrf_token,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
}

type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	Save(ctx context.Context, rec Record) error
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	// PurgeIdle removes sessions whose last activity is before cutoff.
	PurgeIdle(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return clone(rec), nil
}

func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = clone(rec)
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	rec.LastActivity = at
	m.sessions[id] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) PurgeIdle(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, rec := range m.sessions {
		if rec.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			purged++
		}
	}
	return purged, nil
}

// IDs lists the stored session ids in sorted order.
func (m *MemoryStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *MemoryStore) Close() error { return nil }

func clone(rec Record) Record {
	rec.Roles = append([]string(nil), rec.Roles...)
	rec.Permissions = append([]string(nil), rec.Permissions...)
	return rec
}
