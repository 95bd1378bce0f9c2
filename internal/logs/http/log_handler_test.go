package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	authHTTP "github.com/allisson/logvault/internal/auth/http"
	"github.com/allisson/logvault/internal/httputil"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/logs/http/dto"
	logsUsecase "github.com/allisson/logvault/internal/logs/usecase"
	"github.com/allisson/logvault/internal/testutil"
)

const tenant = "acme"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// registry grants every user in grants access to the active version only.
type registry struct {
	mu     sync.Mutex
	active uuid.UUID
	grants map[string]bool
}

func (r *registry) GetActiveVersion(_ context.Context, tenantID string) (*kekDomain.KEKVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &kekDomain.KEKVersion{ID: r.active, TenantID: tenantID, Status: kekDomain.StatusActive}, nil
}

func (r *registry) GetGrant(
	_ context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
) (*kekDomain.UserKEKGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if versionID != r.active || !r.grants[userID] {
		return nil, kekDomain.ErrGrantNotFound
	}
	return &kekDomain.UserKEKGrant{TenantID: tenantID, UserID: userID, KEKVersionID: versionID}, nil
}

type fixture struct {
	router  *gin.Engine
	version uuid.UUID
	entries *testutil.EntryRepository
	user    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		version: uuid.Must(uuid.NewV7()),
		entries: testutil.NewEntryRepository(),
		user:    "alice",
	}
	reg := &registry{active: f.version, grants: map[string]bool{"alice": true}}
	logRepo := testutil.NewLogRepository()
	store := logsUsecase.NewLogStore(testutil.NoopTxManager{}, logRepo, testutil.NewLogKeyRepository(), f.entries, reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	retention := logsUsecase.NewRetentionService(
		testutil.NoopTxManager{},
		testutil.NewRetentionPolicyRepository(),
		logRepo,
		f.entries,
		nil,
		logger,
	)

	logHandler := NewLogHandler(store, logger)
	entryHandler := NewEntryHandler(store, logger)
	retentionHandler := NewRetentionHandler(retention, logger)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		principal := &authDomain.Principal{TenantID: tenant, UserID: f.user, Role: authDomain.RoleAdmin}
		c.Request = c.Request.WithContext(authHTTP.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	})
	v1 := router.Group("/v1")
	v1.POST("/logs", logHandler.CreateHandler)
	v1.GET("/logs", logHandler.ListHandler)
	v1.GET("/logs/lookup", logHandler.LookupHandler)
	v1.PUT("/logs/:logId/name", logHandler.UpdateNameHandler)
	v1.PUT("/logs/:logId/keys/:versionId", logHandler.PutKeyHandler)
	v1.GET("/logs/:logId/keys", logHandler.ListKeysHandler)
	v1.POST("/logs/:logId/entries", entryHandler.AppendHandler)
	v1.GET("/logs/:logId/entries", entryHandler.ListHandler)
	v1.GET("/search", entryHandler.SearchHandler)
	v1.PUT("/logs/:logId/retention", retentionHandler.SetHandler)
	v1.GET("/logs/:logId/retention", retentionHandler.GetHandler)
	v1.DELETE("/logs/:logId/retention", retentionHandler.DeleteHandler)
	v1.GET("/logs/:logId/retention/expired", retentionHandler.ExpiredHandler)
	v1.GET("/retention-policies", retentionHandler.ListHandler)
	f.router = router

	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func token(b byte) string {
	return base64.RawURLEncoding.EncodeToString(bytes.Repeat([]byte{b}, 32))
}

func (f *fixture) wrappedKey() dto.WrappedKeyRequest {
	return dto.WrappedKeyRequest{Algorithm: "aes-gcm", EncryptedKey: b64("wrapped-dek"), Nonce: b64("nonce-123456")}
}

func (f *fixture) createLog(t *testing.T, name string) dto.LogResponse {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/logs", dto.CreateLogRequest{
		ID:            uuid.Must(uuid.NewV7()).String(),
		EncryptedName: name,
		KEKVersionID:  f.version.String(),
		Key:           f.wrappedKey(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.LogResponse](t, w)
}

func (f *fixture) appendEntry(t *testing.T, logID string, ts time.Time, tokens ...string) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, http.MethodPost, "/v1/logs/"+logID+"/entries", dto.AppendEntryRequest{
		ID:           uuid.Must(uuid.NewV7()).String(),
		KEKVersionID: f.version.String(),
		Algorithm:    "aes-gcm",
		Ciphertext:   b64("ciphertext"),
		Nonce:        b64("nonce-123456"),
		SearchTokens: tokens,
		Timestamp:    &ts,
	})
}

func TestLogHandler(t *testing.T) {
	t.Run("Success_CreateListLookup", func(t *testing.T) {
		f := newFixture(t)
		created := f.createLog(t, "enc-sys")
		assert.Equal(t, "enc-sys", created.EncryptedName)
		assert.Equal(t, f.version.String(), created.KEKVersionID)

		w := f.do(t, http.MethodGet, "/v1/logs", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[dto.ListLogsResponse](t, w).Data, 1)

		w = f.do(t, http.MethodGet, "/v1/logs/lookup?name="+url.QueryEscape("enc-sys"), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, created.ID, decode[dto.LogResponse](t, w).ID)
	})

	t.Run("Error_DuplicateName", func(t *testing.T) {
		f := newFixture(t)
		f.createLog(t, "enc-sys")

		w := f.do(t, http.MethodPost, "/v1/logs", dto.CreateLogRequest{
			ID:            uuid.Must(uuid.NewV7()).String(),
			EncryptedName: "enc-sys",
			KEKVersionID:  f.version.String(),
			Key:           f.wrappedKey(),
		})

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Error_NestedKeyValidated", func(t *testing.T) {
		f := newFixture(t)

		w := f.do(t, http.MethodPost, "/v1/logs", dto.CreateLogRequest{
			ID:            uuid.Must(uuid.NewV7()).String(),
			EncryptedName: "enc-sys",
			KEKVersionID:  f.version.String(),
			Key:           dto.WrappedKeyRequest{Algorithm: "rot13", EncryptedKey: b64("k"), Nonce: b64("n")},
		})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_NoGrant", func(t *testing.T) {
		f := newFixture(t)
		f.user = "mallory"

		w := f.do(t, http.MethodPost, "/v1/logs", dto.CreateLogRequest{
			ID:            uuid.Must(uuid.NewV7()).String(),
			EncryptedName: "enc-sys",
			KEKVersionID:  f.version.String(),
			Key:           f.wrappedKey(),
		})

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Success_LookupByKeyName", func(t *testing.T) {
		f := newFixture(t)
		created := f.createLog(t, "enc-sys")

		w := f.do(t, http.MethodGet, "/v1/logs/"+created.ID+"/keys", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "enc-sys", decode[dto.ListLogKeysResponse](t, w).Data[0].EncryptedName)

		w = f.do(t, http.MethodGet,
			"/v1/logs/lookup?name="+url.QueryEscape("enc-sys")+"&kek_version_id="+f.version.String(), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, created.ID, decode[dto.LogResponse](t, w).ID)
	})

	t.Run("Error_LookupByKeyNameWithoutGrant", func(t *testing.T) {
		f := newFixture(t)
		f.createLog(t, "enc-sys")
		f.user = "mallory"

		w := f.do(t, http.MethodGet,
			"/v1/logs/lookup?name="+url.QueryEscape("enc-sys")+"&kek_version_id="+f.version.String(), nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Error_LookupInvalidVersion", func(t *testing.T) {
		f := newFixture(t)

		w := f.do(t, http.MethodGet, "/v1/logs/lookup?name=enc-sys&kek_version_id=nope", nil)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_LookupWithoutName", func(t *testing.T) {
		f := newFixture(t)

		w := f.do(t, http.MethodGet, "/v1/logs/lookup", nil)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Success_KeysAndRename", func(t *testing.T) {
		f := newFixture(t)
		created := f.createLog(t, "enc-sys")

		// Storing the identical key again is accepted.
		w := f.do(t, http.MethodPut, "/v1/logs/"+created.ID+"/keys/"+f.version.String(), f.wrappedKey())
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = f.do(t, http.MethodGet, "/v1/logs/"+created.ID+"/keys", nil)
		require.Equal(t, http.StatusOK, w.Code)
		keys := decode[dto.ListLogKeysResponse](t, w)
		require.Len(t, keys.Data, 1)
		assert.Equal(t, b64("wrapped-dek"), keys.Data[0].EncryptedKey)

		w = f.do(t, http.MethodPut, "/v1/logs/"+created.ID+"/name", dto.UpdateLogNameRequest{
			EncryptedName: "enc-sys-v2",
			KEKVersionID:  f.version.String(),
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "enc-sys-v2", decode[dto.LogResponse](t, w).EncryptedName)
	})

	t.Run("Error_ConflictingKey", func(t *testing.T) {
		f := newFixture(t)
		created := f.createLog(t, "enc-sys")
		other := f.wrappedKey()
		other.EncryptedKey = b64("another-dek")

		w := f.do(t, http.MethodPut, "/v1/logs/"+created.ID+"/keys/"+f.version.String(), other)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestEntryHandler(t *testing.T) {
	t.Run("Success_AppendListSearch", func(t *testing.T) {
		f := newFixture(t)
		created := f.createLog(t, "enc-sys")
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		require.Equal(t, http.StatusCreated, f.appendEntry(t, created.ID, base, token(1), token(2)).Code)
		require.Equal(t, http.StatusCreated, f.appendEntry(t, created.ID, base.Add(time.Hour), token(1), token(3)).Code)

		w := f.do(t, http.MethodGet, "/v1/logs/"+created.ID+"/entries", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[dto.ListEntriesResponse](t, w).Data, 2)

		w = f.do(t, http.MethodGet, "/v1/logs/"+created.ID+"/entries?from="+
			url.QueryEscape(base.Add(time.Minute).Format(time.RFC3339)), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[dto.ListEntriesResponse](t, w).Data, 1)

		w = f.do(t, http.MethodGet, "/v1/search?tokens="+token(1), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[dto.ListEntriesResponse](t, w).Data, 2)

		// Tokens inside a group are ANDed.
		w = f.do(t, http.MethodGet, "/v1/search?tokens="+token(1)+","+token(2), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[dto.ListEntriesResponse](t, w).Data, 1)

		// Groups are ORed.
		w = f.do(t, http.MethodGet, "/v1/search?tokens="+token(2)+"&tokens="+token(3)+"&log_id="+created.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[dto.ListEntriesResponse](t, w).Data, 2)
	})

	t.Run("Error_InactiveVersion", func(t *testing.T) {
		f := newFixture(t)
		created := f.createLog(t, "enc-sys")

		w := f.do(t, http.MethodPost, "/v1/logs/"+created.ID+"/entries", dto.AppendEntryRequest{
			ID:           uuid.Must(uuid.NewV7()).String(),
			KEKVersionID: uuid.Must(uuid.NewV7()).String(),
			Algorithm:    "aes-gcm",
			Ciphertext:   b64("ciphertext"),
			Nonce:        b64("nonce-123456"),
		})

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Error_InvalidSearchToken", func(t *testing.T) {
		f := newFixture(t)

		w := f.do(t, http.MethodGet, "/v1/search?tokens=disk", nil)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "validation_error", decode[httputil.ErrorResponse](t, w).Error)
	})

	t.Run("Error_MissingTokens", func(t *testing.T) {
		f := newFixture(t)

		w := f.do(t, http.MethodGet, "/v1/search?tokens=,", nil)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_InvertedRange", func(t *testing.T) {
		f := newFixture(t)
		created := f.createLog(t, "enc-sys")

		w := f.do(t, http.MethodGet, "/v1/logs/"+created.ID+"/entries?from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z", nil)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_UnknownLog", func(t *testing.T) {
		f := newFixture(t)

		w := f.do(t, http.MethodGet, "/v1/logs/"+uuid.Must(uuid.NewV7()).String()+"/entries", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRetentionHandler(t *testing.T) {
	t.Run("Success_SetCountListDelete", func(t *testing.T) {
		f := newFixture(t)
		created := f.createLog(t, "enc-sys")
		now := time.Now().UTC()
		require.Equal(t, http.StatusCreated, f.appendEntry(t, created.ID, now.Add(-48*time.Hour)).Code)
		require.Equal(t, http.StatusCreated, f.appendEntry(t, created.ID, now.Add(-time.Minute)).Code)

		w := f.do(t, http.MethodPut, "/v1/logs/"+created.ID+"/retention",
			dto.SetRetentionPolicyRequest{RetentionPeriod: "24h"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		policy := decode[dto.RetentionPolicyResponse](t, w)
		assert.Equal(t, "24h0m0s", policy.RetentionPeriod)
		assert.Equal(t, int64(86400), policy.RetentionSeconds)

		w = f.do(t, http.MethodGet, "/v1/logs/"+created.ID+"/retention/expired", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(1), decode[dto.ExpiredEntriesResponse](t, w).Expired)

		w = f.do(t, http.MethodGet, "/v1/retention-policies", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[dto.ListRetentionPoliciesResponse](t, w).Data, 1)

		w = f.do(t, http.MethodDelete, "/v1/logs/"+created.ID+"/retention", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = f.do(t, http.MethodGet, "/v1/logs/"+created.ID+"/retention", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Success_Unlimited", func(t *testing.T) {
		f := newFixture(t)
		created := f.createLog(t, "enc-sys")

		w := f.do(t, http.MethodPut, "/v1/logs/"+created.ID+"/retention",
			dto.SetRetentionPolicyRequest{RetentionPeriod: "unlimited"})

		require.Equal(t, http.StatusOK, w.Code)
		policy := decode[dto.RetentionPolicyResponse](t, w)
		assert.Equal(t, "unlimited", policy.RetentionPeriod)
		assert.Equal(t, int64(-1), policy.RetentionSeconds)
	})

	t.Run("Error_InvalidPeriod", func(t *testing.T) {
		f := newFixture(t)
		created := f.createLog(t, "enc-sys")

		for _, period := range []string{"0s", "-1h", "forever"} {
			w := f.do(t, http.MethodPut, "/v1/logs/"+created.ID+"/retention",
				dto.SetRetentionPolicyRequest{RetentionPeriod: period})
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, period)
		}
	})

	t.Run("Error_UnknownLog", func(t *testing.T) {
		f := newFixture(t)

		w := f.do(t, http.MethodPut, "/v1/logs/"+uuid.Must(uuid.NewV7()).String()+"/retention",
			dto.SetRetentionPolicyRequest{RetentionPeriod: "24h"})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
