package service

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
)

// hkdfSalt is fixed so that derivation is a pure function of the secret and
// the context string.
var hkdfSalt = []byte("logvault/hkdf/v1")

// HKDFDeriver implements KeyDeriver with HKDF-SHA256.
type HKDFDeriver struct{}

// NewKeyDeriver creates an HKDF-SHA256 KeyDeriver.
func NewKeyDeriver() *HKDFDeriver {
	return &HKDFDeriver{}
}

// DeriveKey expands secret into a KeySize key bound to info.
func (d *HKDFDeriver) DeriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, cryptoDomain.ErrEmptySecret
	}

	key := make([]byte, cryptoDomain.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, hkdfSalt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}
