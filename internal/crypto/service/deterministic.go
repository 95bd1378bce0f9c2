package service

import (
	"fmt"

	"github.com/google/tink/go/daead/subtle"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
)

// DeterministicCipher encrypts so that equal (key, plaintext, aad) inputs give
// equal ciphertexts. It is AES-SIV (RFC 5297) with a 512-bit key.
//
// Equality of ciphertexts is the only thing revealed, which is what lets the
// server index encrypted log names without reading them.
type DeterministicCipher struct {
	siv *subtle.AESSIV
}

// NewDeterministicCipher expands key into the two AES-256 halves of an
// AES-SIV key with HKDF and builds the cipher.
func NewDeterministicCipher(deriver KeyDeriver, key []byte) (*DeterministicCipher, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	macKey, err := deriver.DeriveKey(key, "siv/mac")
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(macKey)

	encKey, err := deriver.DeriveKey(key, "siv/enc")
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(encKey)

	sivKey := make([]byte, 0, subtle.AESSIVKeySize)
	sivKey = append(append(sivKey, macKey...), encKey...)
	defer cryptoDomain.Zero(sivKey)

	siv, err := subtle.NewAESSIV(sivKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES-SIV: %w", err)
	}
	return &DeterministicCipher{siv: siv}, nil
}

// Seal returns the synthetic IV followed by the ciphertext.
func (d *DeterministicCipher) Seal(plaintext, aad []byte) ([]byte, error) {
	sealed, err := d.siv.EncryptDeterministically(plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to seal: %w", err)
	}
	return sealed, nil
}

// Open reverses Seal. Any modification returns ErrIntegrity.
func (d *DeterministicCipher) Open(sealed, aad []byte) ([]byte, error) {
	plaintext, err := d.siv.DecryptDeterministically(sealed, aad)
	if err != nil {
		return nil, cryptoDomain.ErrIntegrity
	}
	return plaintext, nil
}

// Close drops the cipher. The expanded key schedule lives inside AES-SIV and
// is released with it.
func (d *DeterministicCipher) Close() {
	d.siv = nil
}
