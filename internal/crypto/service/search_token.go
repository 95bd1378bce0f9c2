package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// DeriveSearchToken maps a normalized feature to an opaque token with
// HMAC-SHA256 under key. Equal (key, feature) pairs always give equal tokens;
// the server cannot invert a token or relate tokens made under different keys.
func DeriveSearchToken(key []byte, feature string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(feature))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// DeriveSearchTokens derives one token per feature, preserving order.
func DeriveSearchTokens(key []byte, features []string) []string {
	tokens := make([]string, len(features))
	for i, f := range features {
		tokens[i] = DeriveSearchToken(key, f)
	}
	return tokens
}
