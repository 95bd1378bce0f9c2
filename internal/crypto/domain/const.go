package domain

// Algorithm identifies the AEAD used to seal a blob.
//
// Both algorithms take 256-bit keys, 12-byte nonces and produce a 16-byte
// authentication tag appended to the ciphertext. The identifier is stored next
// to every ciphertext so data sealed before a configuration change stays readable.
type Algorithm string

const (
	// AESGCM is AES-256 in Galois/Counter Mode. Preferred on CPUs with AES-NI.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 is ChaCha20-Poly1305. Preferred where AES has no hardware support.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// KeySize is the length in bytes of every symmetric key in the hierarchy:
// master-derived KEKs, DEKs and the sub-keys derived from them.
const KeySize = 32

// ParseAlgorithm converts a configuration or wire value into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AESGCM, ChaCha20:
		return Algorithm(s), nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}
