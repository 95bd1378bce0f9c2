package usecase_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
	"github.com/allisson/logvault/internal/logs/usecase"
	"github.com/allisson/logvault/internal/testutil"
)

// fakeRegistry answers grant questions from a fixed table.
type fakeRegistry struct {
	mu     sync.Mutex
	active uuid.UUID
	grants map[string]bool
}

func newFakeRegistry(active uuid.UUID) *fakeRegistry {
	return &fakeRegistry{active: active, grants: make(map[string]bool)}
}

func (f *fakeRegistry) grant(userID string, versionID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[userID+"|"+versionID.String()] = true
}

func (f *fakeRegistry) activate(versionID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = versionID
}

func (f *fakeRegistry) GetActiveVersion(_ context.Context, tenantID string) (*kekDomain.KEKVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == uuid.Nil {
		return nil, kekDomain.ErrNoActiveVersion
	}
	return &kekDomain.KEKVersion{ID: f.active, TenantID: tenantID, Status: kekDomain.StatusActive}, nil
}

func (f *fakeRegistry) GetGrant(
	_ context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
) (*kekDomain.UserKEKGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.grants[userID+"|"+versionID.String()] {
		return nil, kekDomain.ErrGrantNotFound
	}
	return &kekDomain.UserKEKGrant{TenantID: tenantID, UserID: userID, KEKVersionID: versionID}, nil
}

type logStoreFixture struct {
	store    usecase.LogStore
	registry *fakeRegistry
	logs     *testutil.LogRepository
	keys     *testutil.LogKeyRepository
	entries  *testutil.EntryRepository
	version  uuid.UUID
}

func newLogStoreFixture() *logStoreFixture {
	version := uuid.Must(uuid.NewV7())
	f := &logStoreFixture{
		registry: newFakeRegistry(version),
		logs:     testutil.NewLogRepository(),
		keys:     testutil.NewLogKeyRepository(),
		entries:  testutil.NewEntryRepository(),
		version:  version,
	}
	f.registry.grant("alice", version)
	f.store = usecase.NewLogStore(testutil.NoopTxManager{}, f.logs, f.keys, f.entries, f.registry)
	return f
}

func newLogKey(logID, versionID uuid.UUID) *logsDomain.LogKey {
	return &logsDomain.LogKey{
		LogID:        logID,
		KEKVersionID: versionID,
		Algorithm:    cryptoDomain.AESGCM,
		EncryptedKey: []byte("wrapped-dek"),
		Nonce:        []byte("nonce-123456"),
	}
}

// createLog registers a log named name as alice under the active version.
func (f *logStoreFixture) createLog(ctx context.Context, name string) (*logsDomain.Log, error) {
	log := &logsDomain.Log{ID: uuid.New(), EncryptedName: name, KEKVersionID: f.version}
	return f.store.CreateLog(ctx, "acme", "alice", log, newLogKey(log.ID, f.version))
}

func newEntry(logID, versionID uuid.UUID, tokens ...string) *logsDomain.EncryptedLogEntry {
	return &logsDomain.EncryptedLogEntry{
		ID:           uuid.New(),
		LogID:        logID,
		KEKVersionID: versionID,
		Algorithm:    cryptoDomain.AESGCM,
		Ciphertext:   []byte("ciphertext"),
		Nonce:        []byte("nonce-123456"),
		SearchTokens: tokens,
	}
}
