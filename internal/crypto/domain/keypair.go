package domain

import (
	"encoding/base64"
)

// KeyPair is an X25519 key pair used to receive sealed payloads: wrapped KEK
// grants for a user, or recovery shares for the client completing a recovery.
type KeyPair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

// EncodePublicKey renders a public key as standard base64.
func EncodePublicKey(pub [32]byte) string {
	return base64.StdEncoding.EncodeToString(pub[:])
}

// ParsePublicKey decodes a standard base64 X25519 public key.
func ParsePublicKey(encoded string) ([32]byte, error) {
	var pub [32]byte
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != len(pub) {
		return pub, ErrInvalidPublicKey
	}
	copy(pub[:], raw)
	return pub, nil
}

// Close zeroes the private key.
func (k *KeyPair) Close() {
	if k == nil {
		return
	}
	Zero(k.PrivateKey[:])
}
