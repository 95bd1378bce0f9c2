package keyhierarchy

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// KEKChain caches resolved KEKs by version for one tenant. It is safe for
// concurrent use and zeroes every key on Close.
type KEKChain struct {
	mu       sync.RWMutex
	activeID uuid.UUID
	keys     map[uuid.UUID]*KEK
}

// NewKEKChain creates an empty chain.
func NewKEKChain() *KEKChain {
	return &KEKChain{keys: make(map[uuid.UUID]*KEK)}
}

// Put stores kek, replacing and zeroing any previous key of the same version.
func (c *KEKChain) Put(kek *KEK) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.keys[kek.VersionID]; ok && old != kek {
		old.Close()
	}
	c.keys[kek.VersionID] = kek
}

// Get returns the cached KEK of versionID.
func (c *KEKChain) Get(versionID uuid.UUID) (*KEK, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	kek, ok := c.keys[versionID]
	return kek, ok
}

// SetActive records the active version id.
func (c *KEKChain) SetActive(versionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeID = versionID
}

// ActiveID returns the active version id, uuid.Nil when unknown.
func (c *KEKChain) ActiveID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeID
}

// Versions returns the cached version ids, newest first.
func (c *KEKChain) Versions() []uuid.UUID {
	c.mu.RLock()
	ids := make([]uuid.UUID, 0, len(c.keys))
	for id := range c.keys {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) > 0
	})
	return ids
}

// Close zeroes and forgets every key.
func (c *KEKChain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, kek := range c.keys {
		kek.Close()
	}
	c.keys = make(map[uuid.UUID]*KEK)
	c.activeID = uuid.Nil
}
