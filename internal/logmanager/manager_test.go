package logmanager_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authService "github.com/allisson/logvault/internal/auth/service"
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/kek/sessionstore"
	kekUsecase "github.com/allisson/logvault/internal/kek/usecase"
	"github.com/allisson/logvault/internal/keyhierarchy"
	"github.com/allisson/logvault/internal/logmanager"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
	logsUsecase "github.com/allisson/logvault/internal/logs/usecase"
	"github.com/allisson/logvault/internal/testutil"
)

const tenant = "acme"

var masterSecret = []byte("S")

// ring derives KEKs from the master secret for the versions it was given.
type ring struct {
	mu        sync.Mutex
	hierarchy *keyhierarchy.Manager
	active    uuid.UUID
	versions  []uuid.UUID
	keys      map[uuid.UUID]*keyhierarchy.KEK
}

func newRing(hierarchy *keyhierarchy.Manager) *ring {
	return &ring{hierarchy: hierarchy, keys: make(map[uuid.UUID]*keyhierarchy.KEK)}
}

func (r *ring) add(t *testing.T, versionID uuid.UUID, active bool) {
	t.Helper()
	kek, err := r.hierarchy.DeriveKEK(masterSecret, versionID, tenant)
	require.NoError(t, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[versionID] = kek
	r.versions = append([]uuid.UUID{versionID}, r.versions...)
	if active {
		r.active = versionID
	}
}

func (r *ring) ActiveKEK(ctx context.Context) (*keyhierarchy.KEK, error) {
	return r.KEK(ctx, r.active)
}

func (r *ring) KEK(_ context.Context, versionID uuid.UUID) (*keyhierarchy.KEK, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kek, ok := r.keys[versionID]
	if !ok {
		return nil, kekDomain.ErrAccessDenied
	}
	return kek, nil
}

func (r *ring) Versions(context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.versions...), nil
}

type fixture struct {
	kek       kekUsecase.KekService
	store     logsUsecase.LogStore
	hierarchy *keyhierarchy.Manager
	alice     *logmanager.Manager
	aliceRing *ring
	v1        uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	kek := kekUsecase.NewKekService(
		testutil.NoopTxManager{},
		testutil.NewKEKVersionRepository(),
		testutil.NewGrantRepository(),
		testutil.NewPublicKeyRepository(),
		testutil.NewTenantStateRepository(),
		testutil.NewRotationJobRepository(),
		testutil.NewLogRepository(),
		sessionstore.NewMemoryStore(),
		authService.NewSecretService(),
		time.Hour,
	)
	store := logsUsecase.NewLogStore(
		testutil.NoopTxManager{},
		testutil.NewLogRepository(),
		testutil.NewLogKeyRepository(),
		testutil.NewEntryRepository(),
		kek,
	)
	hierarchy := keyhierarchy.NewManager(
		cryptoService.NewKeyDeriver(),
		cryptoService.NewAEADManager(),
		cryptoService.NewSealer(),
		cryptoDomain.AESGCM,
	)

	result, err := kek.CreateKEKVersion(ctx, tenant, "alice", "initial")
	require.NoError(t, err)

	f := &fixture{kek: kek, store: store, hierarchy: hierarchy, v1: result.Version.ID}
	f.aliceRing = newRing(hierarchy)
	f.aliceRing.add(t, f.v1, true)
	f.alice = f.manager("alice", f.aliceRing)
	return f
}

func (f *fixture) manager(userID string, keys logmanager.KeyRing) *logmanager.Manager {
	return logmanager.New(
		tenant,
		userID,
		f.hierarchy,
		cryptoService.NewAEADManager(),
		f.store,
		keys,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

// rotate creates a new version as alice and returns it; logs are not moved.
func (f *fixture) rotate(t *testing.T, removed ...string) *kekDomain.RotationResult {
	t.Helper()
	result, err := f.kek.RotateKEK(context.Background(), tenant, "alice", "quarterly", removed)
	require.NoError(t, err)
	f.aliceRing.add(t, result.Version.ID, true)
	return result
}

func (f *fixture) kekOf(t *testing.T, versionID uuid.UUID) *keyhierarchy.KEK {
	t.Helper()
	kek, err := f.aliceRing.KEK(context.Background(), versionID)
	require.NoError(t, err)
	return kek
}

func messages(t *testing.T, entries []logmanager.DecryptedEntry) []string {
	t.Helper()
	out := make([]string, len(entries))
	for i, e := range entries {
		require.NoError(t, e.Err)
		out[i] = e.Data["message"].(string)
	}
	return out
}

func TestManager_LogNames(t *testing.T) {
	f := newFixture(t)
	kek := f.kekOf(t, f.v1)

	t.Run("Success_DeterministicRoundTrip", func(t *testing.T) {
		a, err := f.alice.EncryptLogName(kek, "sys")
		require.NoError(t, err)
		b, err := f.alice.EncryptLogName(kek, "sys")
		require.NoError(t, err)
		assert.Equal(t, a, b)

		name, err := f.alice.DecryptLogName(kek, a)
		require.NoError(t, err)
		assert.Equal(t, "sys", name)
	})

	t.Run("Success_Reencrypt", func(t *testing.T) {
		other, err := f.hierarchy.DeriveKEK(masterSecret, uuid.Must(uuid.NewV7()), tenant)
		require.NoError(t, err)
		defer other.Close()

		enc, err := f.alice.EncryptLogName(kek, "sys")
		require.NoError(t, err)
		moved, err := f.alice.ReencryptLogName(enc, kek, other)
		require.NoError(t, err)
		assert.NotEqual(t, enc, moved)

		name, err := f.alice.DecryptLogName(other, moved)
		require.NoError(t, err)
		assert.Equal(t, "sys", name)
	})

	t.Run("Error_WrongKEK", func(t *testing.T) {
		other, err := f.hierarchy.DeriveKEK([]byte("other secret"), f.v1, tenant)
		require.NoError(t, err)
		defer other.Close()

		enc, err := f.alice.EncryptLogName(kek, "sys")
		require.NoError(t, err)

		_, err = f.alice.DecryptLogName(other, enc)
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
		_, err = f.alice.ReencryptLogName(enc, other, kek)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyMismatch)
	})

	t.Run("Error_Malformed", func(t *testing.T) {
		_, err := f.alice.DecryptLogName(kek, "not base64!")
		assert.ErrorIs(t, err, logmanager.ErrMalformedName)
		_, err = f.alice.EncryptLogName(kek, "")
		assert.ErrorIs(t, err, logmanager.ErrEmptyLogName)
	})
}

func TestManager_AppendAndRead(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RoundTrip", func(t *testing.T) {
		f := newFixture(t)

		stored, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk full", "code": 507}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, f.v1, stored.KEKVersionID)
		assert.NotContains(t, string(stored.Ciphertext), "disk")
		assert.NotEmpty(t, stored.SearchTokens)

		entries, err := f.alice.ReadEntries(ctx, "sys", logsDomain.EntryFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.NoError(t, entries[0].Err)
		assert.Equal(t, "disk full", entries[0].Data["message"])
		assert.Equal(t, float64(507), entries[0].Data["code"])

		logs, err := f.alice.ListLogs(ctx)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "sys", logs[0].Name)
	})

	t.Run("Success_ReusesLog", func(t *testing.T) {
		f := newFixture(t)

		a, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "one"}, time.Time{})
		require.NoError(t, err)
		b, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "two"}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, a.LogID, b.LogID)
	})

	t.Run("Success_AppendMidRotation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "before"}, time.Time{})
		require.NoError(t, err)
		v2 := f.rotate(t).Version.ID

		after, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "after"}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, v2, after.KEKVersionID)

		log, err := f.store.GetLog(ctx, tenant, after.LogID)
		require.NoError(t, err)
		assert.Equal(t, v2, log.KEKVersionID)

		entries, err := f.alice.ReadEntries(ctx, "sys", logsDomain.EntryFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"before", "after"}, messages(t, entries))
	})

	t.Run("Error_TamperedEntry", func(t *testing.T) {
		f := newFixture(t)
		for _, msg := range []string{"one", "two"} {
			_, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": msg}, time.Time{})
			require.NoError(t, err)
		}
		stored, err := f.store.ListEntries(ctx, tenant, logsDomain.EntryFilter{})
		require.NoError(t, err)
		require.Len(t, stored, 2)

		stored[0].Ciphertext[0] ^= 0x01
		decrypted := f.alice.DecryptEntries(ctx, stored)
		assert.ErrorIs(t, decrypted[0].Err, cryptoDomain.ErrIntegrity)
		require.NoError(t, decrypted[1].Err)
		assert.Equal(t, "two", decrypted[1].Data["message"])

		stored[0].Ciphertext[0] ^= 0x01
		stored[0].Nonce[0] ^= 0x01
		decrypted = f.alice.DecryptEntries(ctx, stored[:1])
		assert.ErrorIs(t, decrypted[0].Err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Success_ReadAfterNameMovedToUnreadableVersion", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk full"}, time.Time{})
		require.NoError(t, err)
		_, err = f.kek.ProvisionKEKForUser(ctx, tenant, "bob", f.v1, nil)
		require.NoError(t, err)

		result := f.rotate(t, "bob")
		v2 := result.Version.ID
		require.NoError(t, f.alice.ReencryptLog(ctx, first.LogID, f.kekOf(t, f.v1), f.kekOf(t, v2), kekDomain.ModeRekey))

		log, err := f.store.GetLog(ctx, tenant, first.LogID)
		require.NoError(t, err)
		newKey, err := f.store.GetLogKey(ctx, tenant, "alice", first.LogID, v2)
		require.NoError(t, err)
		assert.Equal(t, log.EncryptedName, newKey.EncryptedName)

		bobRing := newRing(f.hierarchy)
		bobRing.add(t, f.v1, true)
		bob := f.manager("bob", bobRing)

		resolved, kek, err := bob.ResolveLog(ctx, "sys")
		require.NoError(t, err)
		assert.Equal(t, first.LogID, resolved.ID)
		assert.Equal(t, f.v1, kek.VersionID)

		entries, err := bob.ReadEntries(ctx, "sys", logsDomain.EntryFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"disk full"}, messages(t, entries))
	})

	t.Run("Error_UnknownLog", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.alice.ReadEntries(ctx, "missing", logsDomain.EntryFilter{})
		assert.ErrorIs(t, err, logsDomain.ErrLogNotFound)
	})
}

func TestManager_ReencryptLog(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RewrapKeepsDEK", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk full"}, time.Time{})
		require.NoError(t, err)
		result := f.rotate(t)
		from, to := f.kekOf(t, f.v1), f.kekOf(t, result.Version.ID)

		require.NoError(t, f.alice.ReencryptLog(ctx, first.LogID, from, to, kekDomain.ModeRewrap))
		require.NoError(t, f.alice.ReencryptLog(ctx, first.LogID, from, to, kekDomain.ModeRewrap))

		oldKey, err := f.store.GetLogKey(ctx, tenant, "alice", first.LogID, f.v1)
		require.NoError(t, err)
		newKey, err := f.store.GetLogKey(ctx, tenant, "alice", first.LogID, to.VersionID)
		require.NoError(t, err)

		oldDEK, _, err := f.hierarchy.DeriveDEK(from, first.LogID, oldKey)
		require.NoError(t, err)
		newDEK, _, err := f.hierarchy.DeriveDEK(to, first.LogID, newKey)
		require.NoError(t, err)
		assert.Equal(t, oldDEK.Key, newDEK.Key)

		log, _, err := f.alice.ResolveLog(ctx, "sys")
		require.NoError(t, err)
		assert.Equal(t, to.VersionID, log.KEKVersionID)
	})

	t.Run("Success_RekeyFreshDEK", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk full"}, time.Time{})
		require.NoError(t, err)
		result := f.rotate(t)
		from, to := f.kekOf(t, f.v1), f.kekOf(t, result.Version.ID)

		require.NoError(t, f.alice.ReencryptLog(ctx, first.LogID, from, to, kekDomain.ModeRekey))

		oldKey, err := f.store.GetLogKey(ctx, tenant, "alice", first.LogID, f.v1)
		require.NoError(t, err)
		newKey, err := f.store.GetLogKey(ctx, tenant, "alice", first.LogID, to.VersionID)
		require.NoError(t, err)
		oldDEK, _, err := f.hierarchy.DeriveDEK(from, first.LogID, oldKey)
		require.NoError(t, err)
		newDEK, _, err := f.hierarchy.DeriveDEK(to, first.LogID, newKey)
		require.NoError(t, err)
		assert.NotEqual(t, oldDEK.Key, newDEK.Key)
	})

	t.Run("Success_RewrapLogLeftBehindByInterruptedRotation", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk full"}, time.Time{})
		require.NoError(t, err)
		interrupted := f.rotate(t)

		session, token, err := f.kek.InitiateRecovery(ctx, tenant, "alice", 2, 3, [32]byte{1})
		require.NoError(t, err)
		for index := byte(1); index <= 2; index++ {
			_, err = f.kek.CollectShare(ctx, tenant, session.ID, kekDomain.SealedShare{Index: index, Payload: []byte{index}})
			require.NoError(t, err)
		}
		recovered, err := f.kek.CompleteRecovery(ctx, tenant, "alice", session.ID, token)
		require.NoError(t, err)
		f.aliceRing.add(t, recovered.Version.ID, true)

		from, to := f.kekOf(t, interrupted.Version.ID), f.kekOf(t, recovered.Version.ID)
		require.NoError(t, f.alice.ReencryptLog(ctx, first.LogID, from, to, kekDomain.ModeRewrap))

		oldKey, err := f.store.GetLogKey(ctx, tenant, "alice", first.LogID, f.v1)
		require.NoError(t, err)
		newKey, err := f.store.GetLogKey(ctx, tenant, "alice", first.LogID, to.VersionID)
		require.NoError(t, err)
		oldDEK, _, err := f.hierarchy.DeriveDEK(f.kekOf(t, f.v1), first.LogID, oldKey)
		require.NoError(t, err)
		newDEK, _, err := f.hierarchy.DeriveDEK(to, first.LogID, newKey)
		require.NoError(t, err)
		assert.Equal(t, oldDEK.Key, newDEK.Key)

		read, err := f.alice.Search(ctx, logmanager.SearchRequest{LogName: "sys", Query: "disk"})
		require.NoError(t, err)
		assert.Equal(t, []string{"disk full"}, messages(t, read.Entries))
	})

	t.Run("Error_WrongSourceKEK", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk full"}, time.Time{})
		require.NoError(t, err)
		result := f.rotate(t)
		wrong, err := f.hierarchy.DeriveKEK([]byte("not S"), f.v1, tenant)
		require.NoError(t, err)
		defer wrong.Close()

		err = f.alice.ReencryptLog(ctx, first.LogID, wrong, f.kekOf(t, result.Version.ID), kekDomain.ModeRewrap)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyMismatch)
	})
}

func TestManager_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_AcrossRotation", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk full"}, time.Time{})
		require.NoError(t, err)
		result := f.rotate(t)
		require.NoError(t, f.alice.ReencryptLog(
			ctx, first.LogID, f.kekOf(t, f.v1), f.kekOf(t, result.Version.ID), kekDomain.ModeRewrap,
		))
		_, err = f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk ok"}, time.Time{})
		require.NoError(t, err)
		_, err = f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "cpu hot"}, time.Time{})
		require.NoError(t, err)

		found, err := f.alice.Search(ctx, logmanager.SearchRequest{LogName: "sys", Query: "disk"})
		require.NoError(t, err)
		assert.Equal(t, []string{"disk full", "disk ok"}, messages(t, found.Entries))

		found, err = f.alice.Search(ctx, logmanager.SearchRequest{Query: "DISK ok"})
		require.NoError(t, err)
		assert.Equal(t, []string{"disk ok"}, messages(t, found.Entries))
	})

	t.Run("Success_RekeyedLogHasTwoGroups", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk full"}, time.Time{})
		require.NoError(t, err)
		f.rotate(t)
		_, err = f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk ok"}, time.Time{})
		require.NoError(t, err)

		found, err := f.alice.Search(ctx, logmanager.SearchRequest{Query: "disk"})
		require.NoError(t, err)
		assert.Equal(t, []string{"disk full", "disk ok"}, messages(t, found.Entries))
	})

	t.Run("Success_FieldFilter", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk full", "level": "error"}, time.Time{})
		require.NoError(t, err)
		_, err = f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk ok", "level": "info"}, time.Time{})
		require.NoError(t, err)

		found, err := f.alice.Search(ctx, logmanager.SearchRequest{
			Query:   "disk",
			Filters: map[string]string{"level": "ERROR"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"disk full"}, messages(t, found.Entries))
	})

	t.Run("Success_PartialAccess", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk full"}, time.Time{})
		require.NoError(t, err)
		_, err = f.alice.AppendEntry(ctx, "other", map[string]any{"message": "disk other"}, time.Time{})
		require.NoError(t, err)

		result := f.rotate(t)
		v2 := result.Version.ID
		require.NoError(t, f.alice.ReencryptLog(ctx, first.LogID, f.kekOf(t, f.v1), f.kekOf(t, v2), kekDomain.ModeRekey))
		_, err = f.alice.AppendEntry(ctx, "sys", map[string]any{"message": "disk ok"}, time.Time{})
		require.NoError(t, err)

		_, err = f.kek.ProvisionKEKForUser(ctx, tenant, "bob", v2, nil)
		require.NoError(t, err)
		bobRing := newRing(f.hierarchy)
		bobRing.add(t, v2, true)
		bob := f.manager("bob", bobRing)

		entries, err := bob.ReadEntries(ctx, "sys", logsDomain.EntryFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.ErrorIs(t, entries[0].Err, kekDomain.ErrAccessDenied)
		require.NoError(t, entries[1].Err)
		assert.Equal(t, "disk ok", entries[1].Data["message"])

		found, err := bob.Search(ctx, logmanager.SearchRequest{Query: "disk"})
		require.NoError(t, err)
		assert.Equal(t, []string{"disk ok"}, messages(t, found.Entries))
		require.Len(t, found.Skipped, 1)
	})

	t.Run("Error_EmptyQuery", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.alice.Search(ctx, logmanager.SearchRequest{Query: "  "})
		assert.ErrorIs(t, err, logmanager.ErrEmptyQuery)
	})
}
