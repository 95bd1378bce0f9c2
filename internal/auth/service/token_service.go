package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	apperrors "github.com/allisson/logvault/internal/errors"
)

// tokenPrefix marks logvault bearer tokens so they are easy to spot in leaked text.
const tokenPrefix = "lvt_"

type tokenService struct{}

// NewTokenService creates a TokenService.
func NewTokenService() TokenService {
	return &tokenService{}
}

func (t *tokenService) GenerateToken() (string, string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", apperrors.Wrap(err, "failed to generate random token")
	}

	plainToken := tokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return plainToken, t.HashToken(plainToken), nil
}

func (t *tokenService) HashToken(plainToken string) string {
	hash := sha256.Sum256([]byte(plainToken))
	return hex.EncodeToString(hash[:])
}
