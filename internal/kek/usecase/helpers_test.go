package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	authService "github.com/allisson/logvault/internal/auth/service"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/kek/sessionstore"
	"github.com/allisson/logvault/internal/kek/usecase"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
	"github.com/allisson/logvault/internal/testutil"
)

const tenant = "acme"

type kekFixture struct {
	service  usecase.KekService
	versions *testutil.KEKVersionRepository
	grants   *testutil.GrantRepository
	states   *testutil.TenantStateRepository
	jobs     *testutil.RotationJobRepository
	logs     *testutil.LogRepository
	sessions *sessionstore.MemoryStore
}

func newKekFixture() *kekFixture {
	f := &kekFixture{
		versions: testutil.NewKEKVersionRepository(),
		grants:   testutil.NewGrantRepository(),
		states:   testutil.NewTenantStateRepository(),
		jobs:     testutil.NewRotationJobRepository(),
		logs:     testutil.NewLogRepository(),
		sessions: sessionstore.NewMemoryStore(),
	}
	f.service = usecase.NewKekService(
		testutil.NoopTxManager{},
		f.versions,
		f.grants,
		testutil.NewPublicKeyRepository(),
		f.states,
		f.jobs,
		f.logs,
		f.sessions,
		authService.NewSecretService(),
		time.Hour,
	)
	return f
}

// bootstrap creates the first version for alice.
func (f *kekFixture) bootstrap(t *testing.T) *kekDomain.KEKVersion {
	t.Helper()
	result, err := f.service.CreateKEKVersion(context.Background(), tenant, "alice", "initial")
	require.NoError(t, err)
	return result.Version
}

func (f *kekFixture) addLogs(t *testing.T, versionID uuid.UUID, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.Must(uuid.NewV7())
		require.NoError(t, f.logs.Create(context.Background(), &logsDomain.Log{
			ID:            ids[i],
			TenantID:      tenant,
			EncryptedName: ids[i].String(),
			KEKVersionID:  versionID,
		}))
	}
	return ids
}

func (f *kekFixture) state(t *testing.T) *kekDomain.TenantKeyState {
	t.Helper()
	state, err := f.states.Get(context.Background(), tenant)
	require.NoError(t, err)
	return state
}

func recipientKey() [32]byte {
	var key [32]byte
	key[0] = 9
	return key
}
