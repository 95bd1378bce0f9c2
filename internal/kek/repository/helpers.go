package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// requireAffected returns notFound when an update or delete matched no row.
func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// nullableBytes stores empty byte slices as NULL.
func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func copyPublicKey(key *kekDomain.UserPublicKey, raw []byte) error {
	if len(raw) != len(key.PublicKey) {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "stored public key has invalid length")
	}
	copy(key.PublicKey[:], raw)
	return nil
}

// nullableUUID stores uuid.Nil as NULL.
func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

// uuidBytes is the BINARY(16) form MySQL stores ids in.
func uuidBytes(id uuid.UUID) []byte {
	b, _ := id.MarshalBinary()
	return b
}

// nullableUUIDBytes stores uuid.Nil as NULL in MySQL.
func nullableUUIDBytes(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return uuidBytes(id)
}

func parseUUIDBytes(raw []byte, field string) (uuid.UUID, error) {
	if len(raw) == 0 {
		return uuid.Nil, nil
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, apperrors.Wrap(err, "failed to unmarshal "+field)
	}
	return id, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
