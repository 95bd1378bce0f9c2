package domain

import (
	"encoding/base64"
	"fmt"
)

// Share is one point of a split secret. Index is the custodian's position,
// from 1 to the number of shares. Value is the point: one y coordinate per
// secret byte followed by the x coordinate.
type Share struct {
	Index byte
	Value []byte
}

// Encode renders the share as unpadded base64url of index||value, the form
// handed to share holders.
func (s Share) Encode() string {
	buf := make([]byte, 0, len(s.Value)+1)
	buf = append(buf, s.Index)
	buf = append(buf, s.Value...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// ParseShare decodes a share produced by Share.Encode.
func ParseShare(encoded string) (Share, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Share{}, fmt.Errorf("%w: not base64url", ErrInvalidShare)
	}
	if len(raw) < 2 || raw[0] == 0 {
		return Share{}, ErrInvalidShare
	}
	return Share{Index: raw[0], Value: raw[1:]}, nil
}
