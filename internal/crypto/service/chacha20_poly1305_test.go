package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
)

func TestNewChaCha20Poly1305(t *testing.T) {
	t.Run("Success_ValidKey", func(t *testing.T) {
		cipher, err := NewChaCha20Poly1305(newTestKey(t))
		require.NoError(t, err)
		assert.NotNil(t, cipher)
	})

	t.Run("Error_ShortKey", func(t *testing.T) {
		cipher, err := NewChaCha20Poly1305(make([]byte, 16))
		assert.Error(t, err)
		assert.Nil(t, cipher)
	})
}

func TestChaCha20Poly1305Cipher(t *testing.T) {
	cipher, err := NewChaCha20Poly1305(newTestKey(t))
	require.NoError(t, err)

	plaintext := []byte(`{"host":"db-1","level":"warn"}`)
	aad := []byte("acme|audit|v2")
	ciphertext, nonce, err := cipher.Encrypt(plaintext, aad)
	require.NoError(t, err)

	t.Run("Success_RoundTrip", func(t *testing.T) {
		decrypted, err := cipher.Decrypt(ciphertext, nonce, aad)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
		assert.Len(t, nonce, 12)
		assert.Len(t, ciphertext, len(plaintext)+16)
	})

	t.Run("Success_FreshNonceEveryCall", func(t *testing.T) {
		again, otherNonce, err := cipher.Encrypt(plaintext, aad)
		require.NoError(t, err)
		assert.NotEqual(t, nonce, otherNonce)
		assert.NotEqual(t, ciphertext, again)
	})

	t.Run("Success_EmptyPlaintextStillAuthenticated", func(t *testing.T) {
		sealed, n, err := cipher.Encrypt(nil, aad)
		require.NoError(t, err)

		_, err = cipher.Decrypt(sealed, n, []byte("acme|other|v2"))
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Error_TamperedTag", func(t *testing.T) {
		tampered := append([]byte(nil), ciphertext...)
		tampered[len(tampered)-1] ^= 0x80

		_, err := cipher.Decrypt(tampered, nonce, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Error_WrongAAD", func(t *testing.T) {
		_, err := cipher.Decrypt(ciphertext, nonce, []byte("acme|audit|v1"))
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Error_WrongNonceSize", func(t *testing.T) {
		_, err := cipher.Decrypt(ciphertext, append(nonce, 0), aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Error_WrongKey", func(t *testing.T) {
		other, err := NewChaCha20Poly1305(newTestKey(t))
		require.NoError(t, err)

		_, err = other.Decrypt(ciphertext, nonce, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})
}
