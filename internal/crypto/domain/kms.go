package domain

import "context"

// KMSKeeper is the subset of a gocloud.dev secrets keeper used to open a
// KMS-sealed master secret. *secrets.Keeper satisfies it.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
