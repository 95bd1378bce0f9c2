// Package service implements the cryptographic primitives of the key hierarchy:
// AEAD ciphers, HKDF key derivation, search tokens, deterministic name
// encryption, Shamir secret sharing, anonymous public-key sealing, passphrase
// derivation and KMS access. Every primitive is a pure function of its inputs
// apart from the randomness it draws.
package service

import (
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt seals plaintext bound to aad under a fresh random nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt opens ciphertext. Any authentication failure yields ErrIntegrity.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager creates AEAD instances for a key and algorithm.
type AEADManager interface {
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyDeriver derives independent fixed-size keys from secret material.
type KeyDeriver interface {
	// DeriveKey returns a KeySize key for the given context string. Different
	// contexts yield computationally independent keys.
	DeriveKey(secret []byte, info string) ([]byte, error)
}

// Sealer encrypts small payloads to a recipient's public key without a
// sender identity.
type Sealer interface {
	GenerateKeyPair() (*cryptoDomain.KeyPair, error)
	Seal(plaintext []byte, recipient *[32]byte) ([]byte, error)
	Open(sealed []byte, keyPair *cryptoDomain.KeyPair) ([]byte, error)
}
