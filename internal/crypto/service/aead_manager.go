package service

import (
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
)

// AEADManagerService implements the AEADManager interface.
type AEADManagerService struct{}

// NewAEADManager creates a new AEADManagerService.
func NewAEADManager() *AEADManagerService {
	return &AEADManagerService{}
}

// CreateCipher creates an AEAD cipher instance for the specified algorithm.
// Returns ErrInvalidKeySize if key is not 32 bytes or ErrUnsupportedAlgorithm if algorithm is unknown.
func (am *AEADManagerService) CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	switch alg {
	case cryptoDomain.AESGCM:
		return NewAESGCM(key)
	case cryptoDomain.ChaCha20:
		return NewChaCha20Poly1305(key)
	default:
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
}

// SealBlob encrypts plaintext under key and packs the result as a Blob.
func SealBlob(am AEADManager, key []byte, alg cryptoDomain.Algorithm, plaintext, aad []byte) (cryptoDomain.Blob, error) {
	aead, err := am.CreateCipher(key, alg)
	if err != nil {
		return cryptoDomain.Blob{}, err
	}
	ciphertext, nonce, err := aead.Encrypt(plaintext, aad)
	if err != nil {
		return cryptoDomain.Blob{}, err
	}
	return cryptoDomain.Blob{Algorithm: alg, Ciphertext: ciphertext, Nonce: nonce}, nil
}

// OpenBlob decrypts a Blob sealed by SealBlob.
func OpenBlob(am AEADManager, key []byte, blob cryptoDomain.Blob, aad []byte) ([]byte, error) {
	aead, err := am.CreateCipher(key, blob.Algorithm)
	if err != nil {
		return nil, err
	}
	return aead.Decrypt(blob.Ciphertext, blob.Nonce, aad)
}
