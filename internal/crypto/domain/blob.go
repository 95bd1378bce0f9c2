package domain

// Blob is one AEAD ciphertext together with what is needed to open it, apart
// from the key and the additional authenticated data.
type Blob struct {
	Algorithm  Algorithm
	Ciphertext []byte
	Nonce      []byte
}

// IsZero reports whether the blob carries no ciphertext.
func (b Blob) IsZero() bool {
	return len(b.Ciphertext) == 0
}
