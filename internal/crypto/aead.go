package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// IVBytes is the GCM nonce size used on the wire (96 bits).
const IVBytes = 12

// SessionKey is a symmetric AES-256-GCM key derived by DeriveSessionKey.
// It has no accessor for its key bits and refuses serialization.
type SessionKey struct {
	_           incomparable
	aead        cipher.AEAD
	fingerprint string
}

// Fingerprint is a short, non-secret digest of the shared secret. Two peers
// holding interchangeable keys report the same fingerprint.
func (k *SessionKey) Fingerprint() string { return k.fingerprint }

// Encrypt seals plaintext under a fresh random IV and returns both the IV and
// the ciphertext (with tag) base64-encoded.
func (k *SessionKey) Encrypt(plaintext []byte) (iv, ciphertext string, err error) {
	nonce := make([]byte, IVBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	ct := k.aead.Seal(nil, nonce, plaintext, nil)
	return EncodeBase64(nonce), EncodeBase64(ct), nil
}

// Decrypt opens a value produced by Encrypt. A wrong key or any modification
// of iv or ciphertext yields ErrAuthenticationFailure, never plaintext.
func (k *SessionKey) Decrypt(iv, ciphertext string) ([]byte, error) {
	nonce, err := DecodeBase64(iv)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrMalformedCiphertext, err)
	}
	if len(nonce) != IVBytes {
		return nil, fmt.Errorf("%w: iv length %d", ErrMalformedCiphertext, len(nonce))
	}
	ct, err := DecodeBase64(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedCiphertext, err)
	}
	pt, err := k.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return pt, nil
}

func (k *SessionKey) String() string { return "SessionKey(redacted)" }

func (k *SessionKey) GoString() string { return k.String() }

// MarshalJSON always fails; session keys are never persisted.
func (k *SessionKey) MarshalJSON() ([]byte, error) { return nil, ErrNotExportable }

// MarshalText always fails; session keys are never persisted.
func (k *SessionKey) MarshalText() ([]byte, error) { return nil, ErrNotExportable }
