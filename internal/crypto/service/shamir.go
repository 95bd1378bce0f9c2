package service

import (
	"fmt"

	"github.com/corvus-ch/shamir"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
)

// maxShares is the size of GF(2^8) minus the zero point.
const maxShares = 255

// SplitSecret splits secret into total shares of which any threshold recover it.
// It returns ErrInvalidThreshold unless 2 <= threshold <= total <= 255.
//
// Share i carries Index i+1, the custodian's position, and the split point
// itself as Value.
func SplitSecret(secret []byte, total, threshold int) ([]cryptoDomain.Share, error) {
	if threshold < 2 || threshold > total || total > maxShares {
		return nil, cryptoDomain.ErrInvalidThreshold
	}
	if len(secret) == 0 {
		return nil, cryptoDomain.ErrEmptySecret
	}

	parts, err := shamir.Split(secret, total, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split secret: %w", err)
	}

	shares := make([]cryptoDomain.Share, total)
	for i, part := range parts {
		shares[i] = cryptoDomain.Share{Index: byte(i + 1), Value: part}
	}
	return shares, nil
}

// CombineShares interpolates the secret from shares. It cannot know the
// threshold: combining fewer shares than were required yields unrelated bytes,
// which callers detect by verifying the result against existing ciphertext.
func CombineShares(shares []cryptoDomain.Share) ([]byte, error) {
	if len(shares) < 2 {
		return nil, cryptoDomain.ErrInsufficientShares
	}
	if err := validateShares(shares); err != nil {
		return nil, err
	}

	parts := make([][]byte, len(shares))
	for i, s := range shares {
		parts[i] = s.Value
	}
	secret, err := shamir.Combine(parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrInvalidShare, err)
	}
	return secret, nil
}

// validateShares rejects what interpolation would silently accept or what
// makes it fail with an opaque error.
func validateShares(shares []cryptoDomain.Share) error {
	seen := make(map[byte]struct{}, len(shares))
	points := make(map[byte]struct{}, len(shares))
	size := len(shares[0].Value)
	for _, s := range shares {
		// A value is at least one y coordinate and its x coordinate.
		if s.Index == 0 || len(s.Value) < 2 || len(s.Value) != size {
			return cryptoDomain.ErrInvalidShare
		}
		if _, dup := seen[s.Index]; dup {
			return fmt.Errorf("%w: duplicate index %d", cryptoDomain.ErrInvalidShare, s.Index)
		}
		seen[s.Index] = struct{}{}

		x := s.Value[len(s.Value)-1]
		if _, dup := points[x]; dup {
			return fmt.Errorf("%w: share %d repeats another share's point", cryptoDomain.ErrInvalidShare, s.Index)
		}
		points[x] = struct{}{}
	}
	return nil
}
