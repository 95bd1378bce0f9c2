package sessionstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

func newTestSession(tenantID string) *kekDomain.RecoverySession {
	now := time.Now().UTC()
	return &kekDomain.RecoverySession{
		ID:          uuid.Must(uuid.NewV7()),
		TenantID:    tenantID,
		Threshold:   3,
		TotalShares: 5,
		Status:      kekDomain.RecoveryCollecting,
		CreatedBy:   "alice",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CreateAndGet", func(t *testing.T) {
		store := NewMemoryStore()
		session := newTestSession("acme")

		require.NoError(t, store.Create(ctx, session, time.Hour))

		got, err := store.Get(ctx, "acme", session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, 3, got.Threshold)
	})

	t.Run("Error_CreateDuplicate", func(t *testing.T) {
		store := NewMemoryStore()
		session := newTestSession("acme")

		require.NoError(t, store.Create(ctx, session, time.Hour))
		assert.ErrorIs(t, store.Create(ctx, session, time.Hour), ErrSessionExists)
	})

	t.Run("Error_TenantIsolation", func(t *testing.T) {
		store := NewMemoryStore()
		session := newTestSession("acme")
		require.NoError(t, store.Create(ctx, session, time.Hour))

		_, err := store.Get(ctx, "globex", session.ID)
		assert.ErrorIs(t, err, kekDomain.ErrRecoverySessionNotFound)
	})

	t.Run("Error_Expired", func(t *testing.T) {
		store := NewMemoryStore()
		now := time.Now()
		store.now = func() time.Time { return now }

		session := newTestSession("acme")
		require.NoError(t, store.Create(ctx, session, time.Minute))

		store.now = func() time.Time { return now.Add(2 * time.Minute) }
		_, err := store.Get(ctx, "acme", session.ID)
		assert.ErrorIs(t, err, kekDomain.ErrRecoverySessionNotFound)
	})

	t.Run("Success_UpdateReturnsCopy", func(t *testing.T) {
		store := NewMemoryStore()
		session := newTestSession("acme")
		require.NoError(t, store.Create(ctx, session, time.Hour))

		updated, err := store.Update(ctx, "acme", session.ID, func(s *kekDomain.RecoverySession) error {
			s.Shares = append(s.Shares, kekDomain.SealedShare{Index: 1, Payload: []byte("sealed")})
			return nil
		})
		require.NoError(t, err)
		require.Len(t, updated.Shares, 1)

		updated.Shares[0].Payload[0] = 'X'

		got, err := store.Get(ctx, "acme", session.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed"), got.Shares[0].Payload)
	})

	t.Run("Error_UpdateCallbackLeavesSessionUntouched", func(t *testing.T) {
		store := NewMemoryStore()
		session := newTestSession("acme")
		require.NoError(t, store.Create(ctx, session, time.Hour))

		_, err := store.Update(ctx, "acme", session.ID, func(s *kekDomain.RecoverySession) error {
			s.Status = kekDomain.RecoveryCompleting
			return kekDomain.ErrRecoveryCompleting
		})
		assert.ErrorIs(t, err, kekDomain.ErrRecoveryCompleting)

		got, err := store.Get(ctx, "acme", session.ID)
		require.NoError(t, err)
		assert.Equal(t, kekDomain.RecoveryCollecting, got.Status)
	})

	t.Run("Success_ConcurrentUpdatesKeepEveryShare", func(t *testing.T) {
		store := NewMemoryStore()
		session := newTestSession("acme")
		require.NoError(t, store.Create(ctx, session, time.Hour))

		var wg sync.WaitGroup
		for i := 1; i <= 5; i++ {
			wg.Add(1)
			go func(index byte) {
				defer wg.Done()
				_, err := store.Update(ctx, "acme", session.ID, func(s *kekDomain.RecoverySession) error {
					s.Shares = append(s.Shares, kekDomain.SealedShare{Index: index, Payload: []byte{index}})
					return nil
				})
				assert.NoError(t, err)
			}(byte(i))
		}
		wg.Wait()

		got, err := store.Get(ctx, "acme", session.ID)
		require.NoError(t, err)
		assert.Len(t, got.Shares, 5)
	})

	t.Run("Success_Delete", func(t *testing.T) {
		store := NewMemoryStore()
		session := newTestSession("acme")
		require.NoError(t, store.Create(ctx, session, time.Hour))

		require.NoError(t, store.Delete(ctx, "acme", session.ID))
		assert.ErrorIs(t, store.Delete(ctx, "acme", session.ID), kekDomain.ErrRecoverySessionNotFound)
	})
}
