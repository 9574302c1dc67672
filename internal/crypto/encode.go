package crypto

import (
	"encoding/base64"
	"fmt"
)

// EncodeBase64 returns standard, padded base64 without newlines.
// An empty buffer encodes to the empty string.
func EncodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// DecodeBase64 is the inverse of EncodeBase64. The empty string decodes to an
// empty, non-nil buffer.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return b, nil
}
