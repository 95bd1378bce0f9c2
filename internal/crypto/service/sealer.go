package service

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
)

// BoxSealer implements Sealer with NaCl anonymous boxes (X25519,
// XSalsa20-Poly1305). Each seal uses a fresh ephemeral sender key.
type BoxSealer struct{}

// NewSealer creates a BoxSealer.
func NewSealer() *BoxSealer {
	return &BoxSealer{}
}

// GenerateKeyPair creates a new X25519 key pair.
func (s *BoxSealer) GenerateKeyPair() (*cryptoDomain.KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	kp := &cryptoDomain.KeyPair{PublicKey: *pub, PrivateKey: *priv}
	cryptoDomain.Zero(priv[:])
	return kp, nil
}

// Seal encrypts plaintext to recipient.
func (s *BoxSealer) Seal(plaintext []byte, recipient *[32]byte) ([]byte, error) {
	if recipient == nil {
		return nil, cryptoDomain.ErrInvalidPublicKey
	}
	sealed, err := box.SealAnonymous(nil, plaintext, recipient, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to seal payload: %w", err)
	}
	return sealed, nil
}

// Open decrypts a payload sealed to keyPair's public key, or returns ErrIntegrity.
func (s *BoxSealer) Open(sealed []byte, keyPair *cryptoDomain.KeyPair) ([]byte, error) {
	if keyPair == nil {
		return nil, cryptoDomain.ErrInvalidPublicKey
	}
	plaintext, ok := box.OpenAnonymous(nil, sealed, &keyPair.PublicKey, &keyPair.PrivateKey)
	if !ok {
		return nil, cryptoDomain.ErrIntegrity
	}
	return plaintext, nil
}
