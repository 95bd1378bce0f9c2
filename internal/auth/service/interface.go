// Package service provides the hashing services behind bearer tokens and
// recovery completion tokens. Plain values are returned once to the caller and
// only their hashes are stored.
package service

// SecretService issues recovery completion tokens. The session stores only
// the Argon2id hash; the plain token goes to the initiator once and must be
// presented to complete recovery.
type SecretService interface {
	GenerateSecret() (plainSecret string, hashedSecret string, err error)
	CompareSecret(plainSecret string, hashedSecret string) bool
}

// TokenService generates bearer access tokens. Tokens are looked up by hash on
// every request, so a fast SHA-256 digest is used instead of a password hash.
type TokenService interface {
	GenerateToken() (plainToken string, tokenHash string, err error)
	HashToken(plainToken string) string
}
