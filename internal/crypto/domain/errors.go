package domain

import (
	"github.com/allisson/logvault/internal/errors"
)

// Cryptographic error definitions.
//
// Every error wraps errors.ErrInvalidInput: each one is caused by the data or
// keys a caller supplied, never by server state, so the HTTP layer answers 422.
var (
	// ErrUnsupportedAlgorithm indicates an algorithm identifier outside AESGCM and ChaCha20.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a symmetric key that is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrIntegrity indicates that authenticated decryption failed.
	//
	// The cause is deliberately not distinguished: a wrong key, a wrong AAD, a
	// modified nonce and a modified ciphertext all produce this error.
	ErrIntegrity = errors.Wrap(errors.ErrInvalidInput, "integrity check failed")

	// ErrKeyMismatch indicates that a blob did not open under the key it was
	// claimed to be sealed with, so it cannot be re-encrypted.
	ErrKeyMismatch = errors.Wrap(errors.ErrInvalidInput, "key mismatch")

	// ErrInvalidThreshold indicates a secret-sharing threshold outside [2, total]
	// or a total outside [2, 255].
	ErrInvalidThreshold = errors.Wrap(errors.ErrInvalidInput, "invalid threshold")

	// ErrInvalidShare indicates a malformed share: zero index, duplicate index,
	// empty value or values of different lengths.
	ErrInvalidShare = errors.Wrap(errors.ErrInvalidInput, "invalid share")

	// ErrInsufficientShares indicates fewer shares than the threshold requires.
	ErrInsufficientShares = errors.Wrap(errors.ErrInvalidInput, "insufficient shares")

	// ErrEmptySecret indicates key derivation without any secret material.
	ErrEmptySecret = errors.Wrap(errors.ErrInvalidInput, "empty secret")

	// ErrInvalidPublicKey indicates a recipient public key of the wrong size.
	ErrInvalidPublicKey = errors.Wrap(errors.ErrInvalidInput, "invalid public key")
)
