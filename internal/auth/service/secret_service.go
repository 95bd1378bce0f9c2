package service

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/allisson/go-pwdhash"

	apperrors "github.com/allisson/logvault/internal/errors"
)

// completionTokenPrefix tells completion tokens apart from lvt_ bearer tokens.
const completionTokenPrefix = "lvr_"

type argon2SecretService struct {
	hasher *pwdhash.PasswordHasher
}

// NewSecretService uses the moderate Argon2id policy. It panics only if the
// policy itself is rejected, which is a programming error.
func NewSecretService() SecretService {
	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyModerate))
	if err != nil {
		panic(err)
	}
	return &argon2SecretService{hasher: hasher}
}

func (s *argon2SecretService) GenerateSecret() (string, string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", apperrors.Wrap(err, "failed to generate completion token")
	}
	plain := completionTokenPrefix + base64.RawURLEncoding.EncodeToString(raw[:])

	hashed, err := s.hasher.Hash([]byte(plain))
	if err != nil {
		return "", "", apperrors.Wrap(err, "failed to hash completion token")
	}
	return plain, hashed, nil
}

// CompareSecret rejects anything that is not a completion token before
// paying for an Argon2id verification.
func (s *argon2SecretService) CompareSecret(plain, hashed string) bool {
	if !strings.HasPrefix(plain, completionTokenPrefix) || hashed == "" {
		return false
	}
	ok, err := s.hasher.Verify([]byte(plain), hashed)
	return err == nil && ok
}
