package client

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/keyhierarchy"
)

// grantSource is the part of the key registry the key ring reads.
type grantSource interface {
	GetActiveVersion(ctx context.Context, tenantID string) (*kekDomain.KEKVersion, error)
	GetGrant(ctx context.Context, tenantID, userID string, versionID uuid.UUID) (*kekDomain.UserKEKGrant, error)
	ListGrants(ctx context.Context, tenantID, userID string) ([]*kekDomain.UserKEKGrant, error)
}

// keyRing resolves the KEKs one user may use. A version is usable only while
// the user holds a grant for it: wrapped grants are opened with the key pair,
// derivation grants are derived from the master secret. Resolved KEKs are
// cached in a KEKChain until the secret changes or the ring is closed.
type keyRing struct {
	tenantID  string
	userID    string
	grants    grantSource
	hierarchy *keyhierarchy.Manager
	chain     *keyhierarchy.KEKChain

	// resolveMu serializes cache misses so a KEK handed out is never
	// replaced, and zeroed, by a concurrent resolution of the same version.
	resolveMu sync.Mutex
	mu        sync.RWMutex
	secret    []byte
	keyPair   *cryptoDomain.KeyPair
}

func newKeyRing(
	tenantID, userID string,
	grants grantSource,
	hierarchy *keyhierarchy.Manager,
	secret []byte,
	keyPair *cryptoDomain.KeyPair,
) *keyRing {
	return &keyRing{
		tenantID:  tenantID,
		userID:    userID,
		grants:    grants,
		hierarchy: hierarchy,
		chain:     keyhierarchy.NewKEKChain(),
		secret:    secret,
		keyPair:   keyPair,
	}
}

// ActiveKEK returns the KEK of the tenant's active version.
func (r *keyRing) ActiveKEK(ctx context.Context) (*keyhierarchy.KEK, error) {
	version, err := r.grants.GetActiveVersion(ctx, r.tenantID)
	if err != nil {
		return nil, err
	}
	r.chain.SetActive(version.ID)
	return r.KEK(ctx, version.ID)
}

// KEK returns the KEK of versionID or ErrAccessDenied.
func (r *keyRing) KEK(ctx context.Context, versionID uuid.UUID) (*keyhierarchy.KEK, error) {
	if kek, ok := r.chain.Get(versionID); ok {
		return kek, nil
	}

	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()

	if kek, ok := r.chain.Get(versionID); ok {
		return kek, nil
	}

	grant, err := r.grants.GetGrant(ctx, r.tenantID, r.userID, versionID)
	if err != nil {
		if errors.Is(err, kekDomain.ErrGrantNotFound) {
			return nil, kekDomain.ErrAccessDenied
		}
		return nil, err
	}

	kek, err := r.resolve(grant)
	if err != nil {
		return nil, err
	}
	r.chain.Put(kek)
	return kek, nil
}

func (r *keyRing) resolve(grant *kekDomain.UserKEKGrant) (*keyhierarchy.KEK, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch {
	case grant.IsWrapped() && r.keyPair != nil:
		return r.hierarchy.UnwrapGrant(grant, r.keyPair)
	case len(r.secret) > 0:
		return r.hierarchy.DeriveKEK(r.secret, grant.KEKVersionID, r.tenantID)
	default:
		return nil, kekDomain.ErrAccessDenied
	}
}

// Versions returns the versions the user holds grants for, newest first.
func (r *keyRing) Versions(ctx context.Context) ([]uuid.UUID, error) {
	grants, err := r.grants.ListGrants(ctx, r.tenantID, r.userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(grants))
	for _, grant := range grants {
		ids = append(ids, grant.KEKVersionID)
	}
	// Version ids are UUIDv7, so byte order is creation order.
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) > 0
	})
	return ids, nil
}

// withSecret calls fn with the master secret. fn must not retain it.
func (r *keyRing) withSecret(fn func(secret []byte) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.secret) == 0 {
		return ErrNoMasterSecret
	}
	return fn(r.secret)
}

func (r *keyRing) pair() *cryptoDomain.KeyPair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keyPair
}

// adopt replaces the master secret and drops every cached KEK.
func (r *keyRing) adopt(secret []byte) {
	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	cryptoDomain.Zero(r.secret)
	r.secret = secret
	r.chain.Close()
}

// close zeroes the secret, the private key and every cached KEK.
func (r *keyRing) close() {
	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	cryptoDomain.Zero(r.secret)
	r.secret = nil
	r.keyPair.Close()
	r.keyPair = nil
	r.chain.Close()
}
