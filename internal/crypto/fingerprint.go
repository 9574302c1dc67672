package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

const fingerprintBytes = 10

var sessionFingerprintInfo = []byte("enclavelink session fingerprint v1")

// Fingerprint returns a short hex fingerprint of a public key encoding.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:fingerprintBytes])
}

// sessionFingerprint expands the shared secret with HKDF-SHA256 under a fixed
// label. The output is independent of the AES key bits, so it can be shown to
// users and compared between peers.
func sessionFingerprint(secret []byte) (string, error) {
	out := make([]byte, fingerprintBytes)
	r := hkdf.New(sha256.New, secret, nil, sessionFingerprintInfo)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}
