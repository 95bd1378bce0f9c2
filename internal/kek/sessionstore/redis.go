package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

const (
	redisKeyPrefix  = "logvault:recovery:"
	maxWatchRetries = 5
)

// ErrConcurrentUpdate indicates that a session kept changing under a
// read-modify-write and the update gave up.
var ErrConcurrentUpdate = errors.Wrap(errors.ErrConflict, "recovery session changed concurrently")

// RedisStore keeps sessions as JSON values whose Redis TTL matches the
// session expiry. Updates use WATCH/MULTI so concurrent share submissions
// on different servers never lose a share.
type RedisStore struct {
	client *redis.Client
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a RedisStore on client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(tenantID string, id uuid.UUID) string {
	return redisKeyPrefix + tenantID + ":" + id.String()
}

// Create stores session with ttl. An existing key is never overwritten.
func (r *RedisStore) Create(ctx context.Context, session *kekDomain.RecoverySession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode recovery session: %w", err)
	}

	ok, err := r.client.WithContext(ctx).SetNX(redisKey(session.TenantID, session.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store recovery session: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

// Get loads a session.
func (r *RedisStore) Get(ctx context.Context, tenantID string, id uuid.UUID) (*kekDomain.RecoverySession, error) {
	data, err := r.client.WithContext(ctx).Get(redisKey(tenantID, id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, kekDomain.ErrRecoverySessionNotFound
		}
		return nil, fmt.Errorf("failed to load recovery session: %w", err)
	}
	return decodeSession(data)
}

// Update runs fn inside an optimistic WATCH transaction, retrying when the
// key changes between read and write.
func (r *RedisStore) Update(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
	fn func(session *kekDomain.RecoverySession) error,
) (*kekDomain.RecoverySession, error) {
	client := r.client.WithContext(ctx)
	key := redisKey(tenantID, id)

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		var updated *kekDomain.RecoverySession

		err := client.Watch(func(tx *redis.Tx) error {
			data, err := tx.Get(key).Bytes()
			if err != nil {
				if err == redis.Nil {
					return kekDomain.ErrRecoverySessionNotFound
				}
				return err
			}

			session, err := decodeSession(data)
			if err != nil {
				return err
			}
			if err := fn(session); err != nil {
				return err
			}

			ttl := time.Until(session.ExpiresAt)
			if ttl <= 0 {
				return kekDomain.ErrRecoverySessionNotFound
			}
			out, err := json.Marshal(session)
			if err != nil {
				return fmt.Errorf("failed to encode recovery session: %w", err)
			}

			_, err = tx.Pipelined(func(pipe redis.Pipeliner) error {
				pipe.Set(key, out, ttl)
				return nil
			})
			if err != nil {
				return err
			}
			updated = session
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrConcurrentUpdate
}

// Delete removes a session.
func (r *RedisStore) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	n, err := r.client.WithContext(ctx).Del(redisKey(tenantID, id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete recovery session: %w", err)
	}
	if n == 0 {
		return kekDomain.ErrRecoverySessionNotFound
	}
	return nil
}

func decodeSession(data []byte) (*kekDomain.RecoverySession, error) {
	var session kekDomain.RecoverySession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode recovery session: %w", err)
	}
	return &session, nil
}
