package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	apperrors "github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

func TestLogStore_CreateLog(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CreateLogWithKey", func(t *testing.T) {
		f := newLogStoreFixture()

		log, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)
		assert.Equal(t, "acme", log.TenantID)
		assert.False(t, log.CreatedAt.IsZero())

		key, err := f.keys.Get(ctx, "acme", log.ID, f.version)
		require.NoError(t, err)
		assert.Equal(t, []byte("wrapped-dek"), key.EncryptedKey)
	})

	t.Run("Error_DuplicateName", func(t *testing.T) {
		f := newLogStoreFixture()
		_, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)

		_, err = f.createLog(ctx, "enc-sys")
		assert.ErrorIs(t, err, logsDomain.ErrLogExists)
	})

	t.Run("Error_InactiveVersion", func(t *testing.T) {
		f := newLogStoreFixture()
		old := f.version
		f.registry.activate(uuid.Must(uuid.NewV7()))

		log := &logsDomain.Log{ID: uuid.New(), EncryptedName: "enc-sys", KEKVersionID: old}
		_, err := f.store.CreateLog(ctx, "acme", "alice", log, newLogKey(log.ID, old))
		assert.ErrorIs(t, err, logsDomain.ErrInactiveVersion)
	})

	t.Run("Error_NoGrant", func(t *testing.T) {
		f := newLogStoreFixture()

		log := &logsDomain.Log{ID: uuid.New(), EncryptedName: "enc-sys", KEKVersionID: f.version}
		_, err := f.store.CreateLog(ctx, "acme", "mallory", log, newLogKey(log.ID, f.version))
		assert.ErrorIs(t, err, kekDomain.ErrAccessDenied)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("Error_KeyForAnotherLog", func(t *testing.T) {
		f := newLogStoreFixture()

		log := &logsDomain.Log{ID: uuid.New(), EncryptedName: "enc-sys", KEKVersionID: f.version}
		_, err := f.store.CreateLog(ctx, "acme", "alice", log, newLogKey(uuid.New(), f.version))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_UnknownAlgorithm", func(t *testing.T) {
		f := newLogStoreFixture()

		log := &logsDomain.Log{ID: uuid.New(), EncryptedName: "enc-sys", KEKVersionID: f.version}
		key := newLogKey(log.ID, f.version)
		key.Algorithm = cryptoDomain.Algorithm("rot13")
		_, err := f.store.CreateLog(ctx, "acme", "alice", log, key)
		assert.Error(t, err)
	})
}

func TestLogStore_PutLogKey(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_IdenticalKeyIsIdempotent", func(t *testing.T) {
		f := newLogStoreFixture()
		log, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)

		key, err := f.store.PutLogKey(ctx, "acme", "alice", newLogKey(log.ID, f.version))
		require.NoError(t, err)
		assert.Equal(t, []byte("wrapped-dek"), key.EncryptedKey)
	})

	t.Run("Error_DifferentKeyForSameVersion", func(t *testing.T) {
		f := newLogStoreFixture()
		log, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)

		key := newLogKey(log.ID, f.version)
		key.EncryptedKey = []byte("other-dek")
		_, err = f.store.PutLogKey(ctx, "acme", "alice", key)
		assert.ErrorIs(t, err, logsDomain.ErrLogKeyExists)
	})

	t.Run("Success_KeyForNewVersion", func(t *testing.T) {
		f := newLogStoreFixture()
		log, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)

		next := uuid.Must(uuid.NewV7())
		f.registry.grant("alice", next)
		_, err = f.store.PutLogKey(ctx, "acme", "alice", newLogKey(log.ID, next))
		require.NoError(t, err)

		keys, err := f.store.ListLogKeys(ctx, "acme", "alice", log.ID)
		require.NoError(t, err)
		require.Len(t, keys, 2)
		assert.Equal(t, next, keys[0].KEKVersionID)
	})

	t.Run("Error_UnknownLog", func(t *testing.T) {
		f := newLogStoreFixture()

		_, err := f.store.PutLogKey(ctx, "acme", "alice", newLogKey(uuid.New(), f.version))
		assert.ErrorIs(t, err, logsDomain.ErrLogNotFound)
	})
}

func TestLogStore_FindLogKeyByName(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_NameKeptAfterRename", func(t *testing.T) {
		f := newLogStoreFixture()
		log, err := f.createLog(ctx, "enc-sys-v1")
		require.NoError(t, err)

		next := uuid.Must(uuid.NewV7())
		f.registry.grant("alice", next)
		key := newLogKey(log.ID, next)
		key.EncryptedName = "enc-sys-v2"
		_, err = f.store.PutLogKey(ctx, "acme", "alice", key)
		require.NoError(t, err)
		_, err = f.store.UpdateLogName(ctx, "acme", "alice", log.ID, "enc-sys-v2", next)
		require.NoError(t, err)

		// bob only ever held the first version.
		f.registry.grant("bob", f.version)
		_, err = f.store.GetLogByName(ctx, "acme", "enc-sys-v1")
		assert.ErrorIs(t, err, logsDomain.ErrLogNotFound)

		found, err := f.store.FindLogKeyByName(ctx, "acme", "bob", f.version, "enc-sys-v1")
		require.NoError(t, err)
		assert.Equal(t, log.ID, found.LogID)
		assert.Equal(t, f.version, found.KEKVersionID)
	})

	t.Run("Error_NoGrantForVersion", func(t *testing.T) {
		f := newLogStoreFixture()
		_, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)

		_, err = f.store.FindLogKeyByName(ctx, "acme", "mallory", f.version, "enc-sys")
		assert.ErrorIs(t, err, kekDomain.ErrAccessDenied)
	})

	t.Run("Error_UnknownName", func(t *testing.T) {
		f := newLogStoreFixture()

		_, err := f.store.FindLogKeyByName(ctx, "acme", "alice", f.version, "enc-other")
		assert.ErrorIs(t, err, logsDomain.ErrLogKeyNotFound)
	})

	t.Run("Error_EmptyName", func(t *testing.T) {
		f := newLogStoreFixture()

		_, err := f.store.FindLogKeyByName(ctx, "acme", "alice", f.version, "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestLogStore_ListLogKeys(t *testing.T) {
	ctx := context.Background()
	f := newLogStoreFixture()
	log, err := f.createLog(ctx, "enc-sys")
	require.NoError(t, err)

	next := uuid.Must(uuid.NewV7())
	f.registry.grant("alice", next)
	_, err = f.store.PutLogKey(ctx, "acme", "alice", newLogKey(log.ID, next))
	require.NoError(t, err)

	t.Run("Success_OnlyGrantedVersions", func(t *testing.T) {
		// bob joined after the rotation and holds the new version only.
		f.registry.grant("bob", next)

		keys, err := f.store.ListLogKeys(ctx, "acme", "bob", log.ID)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, next, keys[0].KEKVersionID)
	})

	t.Run("Error_GetWithoutGrant", func(t *testing.T) {
		_, err := f.store.GetLogKey(ctx, "acme", "bob", log.ID, f.version)
		assert.ErrorIs(t, err, kekDomain.ErrAccessDenied)
	})
}

func TestLogStore_UpdateLogName(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_Rename", func(t *testing.T) {
		f := newLogStoreFixture()
		log, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)

		next := uuid.Must(uuid.NewV7())
		f.registry.grant("alice", next)
		updated, err := f.store.UpdateLogName(ctx, "acme", "alice", log.ID, "enc-sys-v2", next)
		require.NoError(t, err)
		assert.Equal(t, next, updated.KEKVersionID)

		got, err := f.store.GetLogByName(ctx, "acme", "enc-sys-v2")
		require.NoError(t, err)
		assert.Equal(t, log.ID, got.ID)
	})

	t.Run("Error_NoGrantForTargetVersion", func(t *testing.T) {
		f := newLogStoreFixture()
		log, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)

		_, err = f.store.UpdateLogName(ctx, "acme", "alice", log.ID, "enc-sys-v2", uuid.Must(uuid.NewV7()))
		assert.ErrorIs(t, err, kekDomain.ErrAccessDenied)
	})
}

func TestLogStore_AppendEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_DefaultsTimestamp", func(t *testing.T) {
		f := newLogStoreFixture()
		log, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)

		entry, err := f.store.AppendEntry(ctx, "acme", "alice", newEntry(log.ID, f.version, "t1"))
		require.NoError(t, err)
		assert.Equal(t, "acme", entry.TenantID)
		assert.False(t, entry.Timestamp.IsZero())
		assert.Len(t, f.entries.All(), 1)
	})

	t.Run("Error_OldVersionAfterRotation", func(t *testing.T) {
		f := newLogStoreFixture()
		log, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)
		f.registry.activate(uuid.Must(uuid.NewV7()))

		_, err = f.store.AppendEntry(ctx, "acme", "alice", newEntry(log.ID, f.version))
		assert.ErrorIs(t, err, logsDomain.ErrInactiveVersion)
	})

	t.Run("Error_NoKeyForVersion", func(t *testing.T) {
		f := newLogStoreFixture()
		log, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)

		next := uuid.Must(uuid.NewV7())
		f.registry.activate(next)
		f.registry.grant("alice", next)

		_, err = f.store.AppendEntry(ctx, "acme", "alice", newEntry(log.ID, next))
		assert.ErrorIs(t, err, logsDomain.ErrLogKeyNotFound)
	})

	t.Run("Error_MissingCiphertext", func(t *testing.T) {
		f := newLogStoreFixture()
		entry := newEntry(uuid.New(), f.version)
		entry.Ciphertext = nil

		_, err := f.store.AppendEntry(ctx, "acme", "alice", entry)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_DuplicateEntryID", func(t *testing.T) {
		f := newLogStoreFixture()
		log, err := f.createLog(ctx, "enc-sys")
		require.NoError(t, err)
		entry := newEntry(log.ID, f.version)

		_, err = f.store.AppendEntry(ctx, "acme", "alice", entry)
		require.NoError(t, err)
		_, err = f.store.AppendEntry(ctx, "acme", "alice", entry)
		assert.ErrorIs(t, err, logsDomain.ErrEntryExists)
	})
}

func TestLogStore_ListEntriesAndSearch(t *testing.T) {
	ctx := context.Background()
	f := newLogStoreFixture()
	log, err := f.createLog(ctx, "enc-sys")
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, tokens := range [][]string{{"disk", "full"}, {"disk", "ok"}, {"cpu"}} {
		entry := newEntry(log.ID, f.version, tokens...)
		entry.Timestamp = base.Add(time.Duration(i) * time.Minute)
		_, err := f.store.AppendEntry(ctx, "acme", "alice", entry)
		require.NoError(t, err)
	}

	t.Run("Success_ListOrderedByTimestamp", func(t *testing.T) {
		entries, err := f.store.ListEntries(ctx, "acme", logsDomain.EntryFilter{LogID: &log.ID})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.True(t, entries[0].Timestamp.Before(entries[2].Timestamp))
	})

	t.Run("Success_ListRange", func(t *testing.T) {
		from, to := base.Add(time.Minute), base.Add(2*time.Minute)
		entries, err := f.store.ListEntries(ctx, "acme", logsDomain.EntryFilter{From: &from, To: &to})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, []string{"disk", "ok"}, entries[0].SearchTokens)
	})

	t.Run("Error_ListUnknownLog", func(t *testing.T) {
		other := uuid.New()
		_, err := f.store.ListEntries(ctx, "acme", logsDomain.EntryFilter{LogID: &other})
		assert.ErrorIs(t, err, logsDomain.ErrLogNotFound)
	})

	t.Run("Success_SearchAllTokensOfAGroup", func(t *testing.T) {
		entries, err := f.store.Search(ctx, "acme", logsDomain.SearchQuery{Groups: [][]string{{"disk"}}})
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		entries, err = f.store.Search(ctx, "acme", logsDomain.SearchQuery{Groups: [][]string{{"disk", "full"}}})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("Success_SearchAnyGroup", func(t *testing.T) {
		entries, err := f.store.Search(ctx, "acme", logsDomain.SearchQuery{Groups: [][]string{{"cpu"}, {"full"}}})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("Success_SearchIsTenantScoped", func(t *testing.T) {
		entries, err := f.store.Search(ctx, "globex", logsDomain.SearchQuery{Groups: [][]string{{"disk"}}})
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Error_SearchWithoutTokens", func(t *testing.T) {
		_, err := f.store.Search(ctx, "acme", logsDomain.SearchQuery{Groups: [][]string{{}}})
		assert.ErrorIs(t, err, logsDomain.ErrEmptySearch)
	})
}
