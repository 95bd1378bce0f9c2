package client_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	authService "github.com/allisson/logvault/internal/auth/service"
	"github.com/allisson/logvault/internal/client"
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
	apperrors "github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/kek/sessionstore"
	kekUsecase "github.com/allisson/logvault/internal/kek/usecase"
	"github.com/allisson/logvault/internal/logmanager"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
	logsUsecase "github.com/allisson/logvault/internal/logs/usecase"
	"github.com/allisson/logvault/internal/testutil"
)

const tenant = "acme"

// server is the in-process server half: the key registry, the ciphertext
// store and retention over in-memory repositories.
type server struct {
	deps client.Deps
}

func newServer(t *testing.T) *server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	logRepo := testutil.NewLogRepository()
	entryRepo := testutil.NewEntryRepository()
	keys := kekUsecase.NewKekService(
		testutil.NoopTxManager{},
		testutil.NewKEKVersionRepository(),
		testutil.NewGrantRepository(),
		testutil.NewPublicKeyRepository(),
		testutil.NewTenantStateRepository(),
		testutil.NewRotationJobRepository(),
		logRepo,
		sessionstore.NewMemoryStore(),
		authService.NewSecretService(),
		time.Hour,
	)
	store := logsUsecase.NewLogStore(
		testutil.NoopTxManager{},
		logRepo,
		testutil.NewLogKeyRepository(),
		entryRepo,
		keys,
	)
	retention := logsUsecase.NewRetentionService(
		testutil.NoopTxManager{},
		testutil.NewRetentionPolicyRepository(),
		logRepo,
		entryRepo,
		nil,
		logger,
	)
	return &server{deps: client.Deps{Keys: keys, Logs: store, Retention: retention, Logger: logger}}
}

func principal(userID string, role authDomain.Role) *authDomain.Principal {
	return &authDomain.Principal{TenantID: tenant, UserID: userID, Role: role}
}

func (s *server) withSecret(t *testing.T, userID string, secret string) *client.Client {
	t.Helper()
	c := client.New(s.deps, client.WithRotationBackOff(time.Millisecond, time.Millisecond))
	require.NoError(t, c.Initialize(context.Background(), principal(userID, authDomain.RoleAdmin), []byte(secret)))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (s *server) withKeyPair(t *testing.T, userID string) (*client.Client, *cryptoDomain.KeyPair) {
	t.Helper()
	keyPair, err := cryptoService.NewSealer().GenerateKeyPair()
	require.NoError(t, err)

	c := client.New(s.deps, client.WithRotationBackOff(time.Millisecond, time.Millisecond))
	require.NoError(t, c.InitializeWithKeyPair(context.Background(), principal(userID, authDomain.RoleAdmin), keyPair))
	t.Cleanup(func() { _ = c.Close() })
	return c, keyPair
}

func messages(entries []logmanager.DecryptedEntry) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Err != nil {
			out = append(out, "error: "+entry.Err.Error())
			continue
		}
		msg, _ := entry.Data["msg"].(string)
		out = append(out, msg)
	}
	return out
}

func TestClient_EndToEnd_LogRotation(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	sys := srv.withSecret(t, "sys", "S")

	created, err := sys.CreateKEKVersion(ctx, "initial")
	require.NoError(t, err)
	v1 := created.Version.ID

	_, err = sys.AppendEntry(ctx, "sys", map[string]any{"msg": "disk full"}, time.Time{})
	require.NoError(t, err)

	result, err := sys.Search(ctx, logmanager.SearchRequest{Query: "disk"})
	require.NoError(t, err)
	assert.Equal(t, []string{"disk full"}, messages(result.Entries))

	outcome, err := sys.RotateKEK(ctx, "quarterly", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Completed())
	assert.Equal(t, kekDomain.ModeRewrap, outcome.Job.Mode)
	require.NotNil(t, outcome.Report)
	assert.Len(t, outcome.Report.Done, 1)
	assert.Empty(t, outcome.Report.Failed)
	v2 := outcome.Version.ID

	versions, err := sys.GetKEKVersions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, v2, versions[0].ID)
	assert.Equal(t, kekDomain.StatusActive, versions[0].Status)
	assert.Equal(t, v1, versions[1].ID)
	assert.Equal(t, kekDomain.StatusDecryptOnly, versions[1].Status)

	entry, err := sys.AppendEntry(ctx, "sys", map[string]any{"msg": "disk ok"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, v2, entry.KEKVersionID)

	read, err := sys.ReadEntries(ctx, "sys", logsDomain.EntryFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"disk full", "disk ok"}, messages(read))

	result, err = sys.Search(ctx, logmanager.SearchRequest{Query: "disk"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"disk full", "disk ok"}, messages(result.Entries))
	assert.Empty(t, result.Skipped)

	logs, err := sys.ListLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "sys", logs[0].Name)
	assert.Equal(t, v2, logs[0].Log.KEKVersionID)
}

func TestClient_EndToEnd_Recovery(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)

	sys := srv.withSecret(t, "sys", "S")
	created, err := sys.CreateKEKVersion(ctx, "initial")
	require.NoError(t, err)
	_, err = sys.AppendEntry(ctx, "sys", map[string]any{"msg": "disk full"}, time.Time{})
	require.NoError(t, err)
	shares, err := sys.SplitMasterSecret(5, 3)
	require.NoError(t, err)
	require.Len(t, shares, 5)
	require.NoError(t, sys.Close())

	// The secret is lost; sys recovers with a fresh key pair.
	recovering, _ := srv.withKeyPair(t, "sys")
	session, token, err := recovering.InitiateRecovery(ctx, 3, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	holders := []string{"h1", "h2", "h3"}
	submit := func(i int) {
		holder, _ := srv.withKeyPair(t, holders[i])
		_, err := holder.SubmitShare(ctx, session.ID, shares[i])
		require.NoError(t, err)
	}

	submit(0)
	submit(1)
	_, err = recovering.CompleteRecovery(ctx, session.ID, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, cryptoDomain.ErrInsufficientShares)

	submit(2)
	outcome, err := recovering.CompleteRecovery(ctx, session.ID, token)
	require.NoError(t, err)
	assert.NotEqual(t, created.Version.ID, outcome.Version.ID)
	assert.Equal(t, kekDomain.StatusActive, outcome.Version.Status)
	assert.True(t, outcome.Completed())
	assert.Equal(t, session.ID, outcome.Session)

	versions, err := recovering.GetKEKVersions(ctx)
	require.NoError(t, err)
	for _, version := range versions[1:] {
		assert.NotEqual(t, outcome.Version.ID, version.ID)
	}

	_, err = recovering.AppendEntry(ctx, "sys", map[string]any{"msg": "disk recovered"}, time.Time{})
	require.NoError(t, err)
	result, err := recovering.Search(ctx, logmanager.SearchRequest{Query: "disk", LogName: "sys"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"disk full", "disk recovered"}, messages(result.Entries))
}

func TestClient_CompleteRecovery(t *testing.T) {
	ctx := context.Background()

	t.Run("Error_SharesOfAnotherSecret", func(t *testing.T) {
		srv := newServer(t)
		sys := srv.withSecret(t, "sys", "S")
		_, err := sys.CreateKEKVersion(ctx, "initial")
		require.NoError(t, err)
		_, err = sys.AppendEntry(ctx, "sys", map[string]any{"msg": "disk full"}, time.Time{})
		require.NoError(t, err)

		offline := client.New(srv.deps)
		require.NoError(t, offline.Initialize(ctx, nil, []byte("not-S")))
		shares, err := offline.SplitMasterSecret(3, 2)
		require.NoError(t, err)

		recovering, _ := srv.withKeyPair(t, "sys")
		session, token, err := recovering.InitiateRecovery(ctx, 2, 3)
		require.NoError(t, err)
		for _, share := range shares[:2] {
			_, err := recovering.SubmitShare(ctx, session.ID, share)
			require.NoError(t, err)
		}

		_, err = recovering.CompleteRecovery(ctx, session.ID, token)
		assert.ErrorIs(t, err, client.ErrSecretMismatch)

		// The session survives a rejected attempt and can be cancelled.
		require.NoError(t, recovering.CancelRecovery(ctx, session.ID))
		_, err = sys.CreateKEKVersion(ctx, "after cancel")
		assert.NoError(t, err)
	})

	t.Run("Error_WrongToken", func(t *testing.T) {
		srv := newServer(t)
		sys := srv.withSecret(t, "sys", "S")
		_, err := sys.CreateKEKVersion(ctx, "initial")
		require.NoError(t, err)
		shares, err := sys.SplitMasterSecret(2, 2)
		require.NoError(t, err)

		recovering, _ := srv.withKeyPair(t, "sys")
		session, _, err := recovering.InitiateRecovery(ctx, 2, 2)
		require.NoError(t, err)
		for _, share := range shares {
			_, err := recovering.SubmitShare(ctx, session.ID, share)
			require.NoError(t, err)
		}

		_, err = recovering.CompleteRecovery(ctx, session.ID, "not-the-token")
		assert.ErrorIs(t, err, kekDomain.ErrInvalidCompletionToken)
	})

	t.Run("Error_NoReadableLogKey", func(t *testing.T) {
		srv := newServer(t)
		sys := srv.withSecret(t, "sys", "S")
		_, err := sys.CreateKEKVersion(ctx, "initial")
		require.NoError(t, err)
		_, err = sys.AppendEntry(ctx, "sys", map[string]any{"msg": "disk full"}, time.Time{})
		require.NoError(t, err)
		shares, err := sys.SplitMasterSecret(3, 2)
		require.NoError(t, err)

		// erin holds no grant, so no log key can confirm the secret.
		erin, _ := srv.withKeyPair(t, "erin")
		session, token, err := erin.InitiateRecovery(ctx, 2, 3)
		require.NoError(t, err)
		for _, share := range shares[:2] {
			_, err := erin.SubmitShare(ctx, session.ID, share)
			require.NoError(t, err)
		}

		_, err = erin.CompleteRecovery(ctx, session.ID, token)
		assert.ErrorIs(t, err, client.ErrSecretUnverified)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		require.NoError(t, erin.CancelRecovery(ctx, session.ID))
	})

	t.Run("Success_TenantWithoutLogs", func(t *testing.T) {
		srv := newServer(t)
		sys := srv.withSecret(t, "sys", "S")
		_, err := sys.CreateKEKVersion(ctx, "initial")
		require.NoError(t, err)
		shares, err := sys.SplitMasterSecret(2, 2)
		require.NoError(t, err)

		recovering, _ := srv.withKeyPair(t, "sys")
		session, token, err := recovering.InitiateRecovery(ctx, 2, 2)
		require.NoError(t, err)
		for _, share := range shares {
			_, err := recovering.SubmitShare(ctx, session.ID, share)
			require.NoError(t, err)
		}

		outcome, err := recovering.CompleteRecovery(ctx, session.ID, token)
		require.NoError(t, err)
		assert.Equal(t, kekDomain.StatusActive, outcome.Version.Status)
	})

	t.Run("Error_NoKeyPair", func(t *testing.T) {
		srv := newServer(t)
		sys := srv.withSecret(t, "sys", "S")

		_, _, err := sys.InitiateRecovery(ctx, 2, 3)
		assert.ErrorIs(t, err, client.ErrNoKeyPair)
	})
}

func TestClient_RotateKEK_RemovedUser(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	sys := srv.withSecret(t, "sys", "S")
	bob := srv.withSecret(t, "bob", "S")

	created, err := sys.CreateKEKVersion(ctx, "initial")
	require.NoError(t, err)
	_, err = sys.ProvisionKEKForUser(ctx, "bob", created.Version.ID)
	require.NoError(t, err)
	_, err = sys.AppendEntry(ctx, "sys", map[string]any{"msg": "before removal"}, time.Time{})
	require.NoError(t, err)

	read, err := bob.ReadEntries(ctx, "sys", logsDomain.EntryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"before removal"}, messages(read))

	outcome, err := sys.RotateKEK(ctx, "offboard bob", []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, kekDomain.ModeRekey, outcome.Job.Mode)
	assert.True(t, outcome.Completed())

	_, err = sys.AppendEntry(ctx, "sys", map[string]any{"msg": "after removal"}, time.Time{})
	require.NoError(t, err)

	t.Run("Error_AppendUnderNewVersion", func(t *testing.T) {
		_, err := bob.AppendEntry(ctx, "sys", map[string]any{"msg": "bob"}, time.Time{})
		assert.ErrorIs(t, err, kekDomain.ErrAccessDenied)
	})

	t.Run("Success_ReadsOldGenerationAfterNameMoved", func(t *testing.T) {
		read, err := bob.ReadEntries(ctx, "sys", logsDomain.EntryFilter{})
		require.NoError(t, err)
		require.Len(t, read, 2)
		assert.Equal(t, "before removal", messages(read)[0])
		assert.NoError(t, read[0].Err)
		assert.Error(t, read[1].Err)
		assert.Nil(t, read[1].Data)
	})

	t.Run("Error_UnknownLogStillMissing", func(t *testing.T) {
		_, err := bob.ReadEntries(ctx, "audit", logsDomain.EntryFilter{})
		assert.ErrorIs(t, err, logsDomain.ErrLogNotFound)
	})

	t.Run("Success_SearchSeesOnlyOldGeneration", func(t *testing.T) {
		result, err := bob.Search(ctx, logmanager.SearchRequest{Query: "removal"})
		require.NoError(t, err)
		assert.Equal(t, []string{"before removal"}, messages(result.Entries))

		result, err = sys.Search(ctx, logmanager.SearchRequest{Query: "removal"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"before removal", "after removal"}, messages(result.Entries))
	})
}

func TestClient_RotateKEK_KeyPairUser(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	sys := srv.withSecret(t, "sys", "S")
	bob, _ := srv.withKeyPair(t, "bob")

	created, err := sys.CreateKEKVersion(ctx, "initial")
	require.NoError(t, err)
	_, err = bob.RegisterPublicKey(ctx)
	require.NoError(t, err)
	grant, err := sys.ProvisionKEKForUser(ctx, "bob", created.Version.ID)
	require.NoError(t, err)
	require.True(t, grant.IsWrapped())
	_, err = bob.AppendEntry(ctx, "bob", map[string]any{"msg": "before rotation"}, time.Time{})
	require.NoError(t, err)

	outcome, err := sys.RotateKEK(ctx, "quarterly", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Completed())

	t.Run("Success_GrantSealedForNewVersion", func(t *testing.T) {
		grant, err := srv.deps.Keys.GetGrant(ctx, tenant, "bob", outcome.Version.ID)
		require.NoError(t, err)
		assert.True(t, grant.IsWrapped())
	})

	t.Run("Success_AppendsAfterRotation", func(t *testing.T) {
		_, err := bob.AppendEntry(ctx, "bob", map[string]any{"msg": "after rotation"}, time.Time{})
		require.NoError(t, err)

		read, err := bob.ReadEntries(ctx, "bob", logsDomain.EntryFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"before rotation", "after rotation"}, messages(read))
	})

	t.Run("Success_DerivationGrantWithoutPublicKey", func(t *testing.T) {
		_, err := sys.ProvisionKEKForUser(ctx, "dave", outcome.Version.ID)
		require.NoError(t, err)

		next, err := sys.RotateKEK(ctx, "monthly", nil)
		require.NoError(t, err)

		grant, err := srv.deps.Keys.GetGrant(ctx, tenant, "dave", next.Version.ID)
		require.NoError(t, err)
		assert.False(t, grant.IsWrapped())
		grant, err = srv.deps.Keys.GetGrant(ctx, tenant, "bob", next.Version.ID)
		require.NoError(t, err)
		assert.True(t, grant.IsWrapped())
	})
}

func TestClient_ProvisionKEKForUser(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	sys := srv.withSecret(t, "sys", "S")
	created, err := sys.CreateKEKVersion(ctx, "initial")
	require.NoError(t, err)
	_, err = sys.AppendEntry(ctx, "sys", map[string]any{"msg": "hello carol"}, time.Time{})
	require.NoError(t, err)

	t.Run("Success_WrappedGrantForRegisteredKey", func(t *testing.T) {
		carol, _ := srv.withKeyPair(t, "carol")
		_, err := carol.RegisterPublicKey(ctx)
		require.NoError(t, err)

		grant, err := sys.ProvisionKEKForUser(ctx, "carol", created.Version.ID)
		require.NoError(t, err)
		assert.True(t, grant.IsWrapped())

		read, err := carol.ReadEntries(ctx, "sys", logsDomain.EntryFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"hello carol"}, messages(read))
	})

	t.Run("Success_DerivationGrantWithoutKey", func(t *testing.T) {
		grant, err := sys.ProvisionKEKForUser(ctx, "dave", created.Version.ID)
		require.NoError(t, err)
		assert.False(t, grant.IsWrapped())
	})

	t.Run("Error_NoGrant", func(t *testing.T) {
		erin, _ := srv.withKeyPair(t, "erin")

		_, err := erin.ReadEntries(ctx, "sys", logsDomain.EntryFilter{})
		assert.ErrorIs(t, err, logsDomain.ErrLogNotFound)
	})

	t.Run("Error_RegisterWithoutKeyPair", func(t *testing.T) {
		_, err := sys.RegisterPublicKey(ctx)
		assert.ErrorIs(t, err, client.ErrNoKeyPair)
	})
}

func TestClient_RetentionPolicy(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	sys := srv.withSecret(t, "sys", "S")
	_, err := sys.CreateKEKVersion(ctx, "initial")
	require.NoError(t, err)
	_, err = sys.AppendEntry(ctx, "sys", map[string]any{"msg": "disk full"}, time.Time{})
	require.NoError(t, err)

	policy, err := sys.SetRetentionPolicy(ctx, "sys", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, policy.RetentionPeriod)

	got, err := sys.GetRetentionPolicy(ctx, "sys")
	require.NoError(t, err)
	assert.Equal(t, policy.LogID, got.LogID)

	require.NoError(t, sys.DeleteRetentionPolicy(ctx, "sys"))
	_, err = sys.GetRetentionPolicy(ctx, "sys")
	assert.ErrorIs(t, err, logsDomain.ErrRetentionPolicyNotFound)

	_, err = sys.SetRetentionPolicy(ctx, "missing", time.Hour)
	assert.ErrorIs(t, err, logsDomain.ErrLogNotFound)
}

func TestClient_Lifecycle(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)

	t.Run("Error_NotInitialized", func(t *testing.T) {
		c := client.New(srv.deps)

		_, err := c.GetKEKVersions(ctx)
		assert.ErrorIs(t, err, client.ErrNotInitialized)
		_, err = c.SplitMasterSecret(3, 2)
		assert.ErrorIs(t, err, client.ErrNotInitialized)
		_, err = c.AppendEntry(ctx, "sys", map[string]any{"msg": "x"}, time.Time{})
		assert.ErrorIs(t, err, client.ErrNotInitialized)
	})

	t.Run("Error_NotAuthenticated", func(t *testing.T) {
		c := client.New(srv.deps)
		require.NoError(t, c.Initialize(ctx, nil, []byte("S")))

		_, err := c.AppendEntry(ctx, "sys", map[string]any{"msg": "x"}, time.Time{})
		assert.ErrorIs(t, err, client.ErrNotAuthenticated)
		_, err = c.RotateKEK(ctx, "quarterly", nil)
		assert.ErrorIs(t, err, client.ErrNotAuthenticated)

		shares, err := c.SplitMasterSecret(5, 3)
		require.NoError(t, err)
		combined, err := cryptoService.CombineShares(shares[1:4])
		require.NoError(t, err)
		assert.Equal(t, []byte("S"), combined)
	})

	t.Run("Error_EmptySecret", func(t *testing.T) {
		c := client.New(srv.deps)

		err := c.Initialize(ctx, principal("sys", authDomain.RoleAdmin), nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrEmptySecret)
	})

	t.Run("Error_AfterClose", func(t *testing.T) {
		c := client.New(srv.deps)
		require.NoError(t, c.Initialize(ctx, principal("sys", authDomain.RoleAdmin), []byte("S")))
		require.NoError(t, c.Close())

		_, err := c.GetKEKVersions(ctx)
		assert.ErrorIs(t, err, client.ErrNotInitialized)
	})

	t.Run("Error_NoActiveVersion", func(t *testing.T) {
		c := srv.withSecret(t, "sys", "S")

		_, err := c.AppendEntry(ctx, "sys", map[string]any{"msg": "x"}, time.Time{})
		assert.ErrorIs(t, err, kekDomain.ErrNoActiveVersion)
	})
}

func TestClient_ResumeRotation(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	sys := srv.withSecret(t, "sys", "S")
	_, err := sys.CreateKEKVersion(ctx, "initial")
	require.NoError(t, err)
	_, err = sys.AppendEntry(ctx, "sys", map[string]any{"msg": "disk full"}, time.Time{})
	require.NoError(t, err)

	rotated, err := srv.deps.Keys.RotateKEK(ctx, tenant, "sys", "server side only", nil)
	require.NoError(t, err)
	require.False(t, rotated.Job.IsCompleted())

	outcome, err := sys.ResumeRotation(ctx)
	require.NoError(t, err)
	assert.True(t, outcome.Completed())
	assert.Equal(t, rotated.Version.ID, outcome.Version.ID)
	require.NotNil(t, outcome.Report)
	assert.Len(t, outcome.Report.Done, 1)

	again, err := sys.ResumeRotation(ctx)
	require.NoError(t, err)
	assert.True(t, again.Completed())
	assert.Nil(t, again.Report)

}
