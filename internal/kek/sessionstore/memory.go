// Package sessionstore keeps recovery sessions outside the database: in
// process memory for single-node deployments, or in Redis with a TTL when
// several servers share recovery state.
package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// ErrSessionExists indicates a session id that is already stored.
var ErrSessionExists = errors.Wrap(errors.ErrConflict, "recovery session already exists")

type memoryEntry struct {
	session *kekDomain.RecoverySession
	expires time.Time
}

// MemoryStore is a mutex-protected in-process session store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func memoryKey(tenantID string, id uuid.UUID) string {
	return tenantID + "/" + id.String()
}

// Create stores session until ttl elapses.
func (m *MemoryStore) Create(_ context.Context, session *kekDomain.RecoverySession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictExpired()
	key := memoryKey(session.TenantID, session.ID)
	if _, ok := m.sessions[key]; ok {
		return ErrSessionExists
	}
	m.sessions[key] = memoryEntry{session: cloneSession(session), expires: m.now().Add(ttl)}
	return nil
}

// Get returns a copy of the stored session.
func (m *MemoryStore) Get(_ context.Context, tenantID string, id uuid.UUID) (*kekDomain.RecoverySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.lookup(tenantID, id)
	if err != nil {
		return nil, err
	}
	return cloneSession(entry.session), nil
}

// Update applies fn to a copy of the session under the store lock.
func (m *MemoryStore) Update(
	_ context.Context,
	tenantID string,
	id uuid.UUID,
	fn func(session *kekDomain.RecoverySession) error,
) (*kekDomain.RecoverySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.lookup(tenantID, id)
	if err != nil {
		return nil, err
	}

	updated := cloneSession(entry.session)
	if err := fn(updated); err != nil {
		return nil, err
	}
	entry.session = updated
	m.sessions[memoryKey(tenantID, id)] = entry
	return cloneSession(updated), nil
}

// Delete removes the session.
func (m *MemoryStore) Delete(_ context.Context, tenantID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup(tenantID, id); err != nil {
		return err
	}
	delete(m.sessions, memoryKey(tenantID, id))
	return nil
}

// lookup must be called with mu held.
func (m *MemoryStore) lookup(tenantID string, id uuid.UUID) (memoryEntry, error) {
	key := memoryKey(tenantID, id)
	entry, ok := m.sessions[key]
	if !ok {
		return memoryEntry{}, kekDomain.ErrRecoverySessionNotFound
	}
	if !m.now().Before(entry.expires) {
		delete(m.sessions, key)
		return memoryEntry{}, kekDomain.ErrRecoverySessionNotFound
	}
	return entry, nil
}

func (m *MemoryStore) evictExpired() {
	now := m.now()
	for key, entry := range m.sessions {
		if !now.Before(entry.expires) {
			delete(m.sessions, key)
		}
	}
}

func cloneSession(s *kekDomain.RecoverySession) *kekDomain.RecoverySession {
	c := *s
	c.Shares = make([]kekDomain.SealedShare, len(s.Shares))
	for i, share := range s.Shares {
		share.Payload = append([]byte(nil), share.Payload...)
		c.Shares[i] = share
	}
	return &c
}
