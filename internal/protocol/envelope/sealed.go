package envelope

import (
	"fmt"

	"enclavelink/internal/crypto"
)

// Seal encrypts the JSON encoding of inner under key and wraps it in a fresh
// "encrypted" envelope.
func Seal(key *crypto.SessionKey, inner Envelope) (Envelope, error) {
	inner.Stamp()
	plaintext, err := Marshal(inner)
	if err != nil {
		return Envelope{}, err
	}
	defer crypto.Wipe(plaintext)

	iv, ct, err := key.Encrypt(plaintext)
	if err != nil {
		return Envelope{}, err
	}
	return New(TypeEncrypted, Encrypted{IV: iv, Ciphertext: ct})
}

// Open decrypts an "encrypted" envelope and parses the single envelope inside.
func Open(key *crypto.SessionKey, outer Envelope) (Envelope, error) {
	if outer.Type != TypeEncrypted {
		return Envelope{}, fmt.Errorf("%w: expected %s, got %s", ErrMalformedFrame, TypeEncrypted, outer.Type)
	}
	var sealed Encrypted
	if err := outer.DecodePayload(&sealed); err != nil {
		return Envelope{}, err
	}
	if err := sealed.Validate(); err != nil {
		return Envelope{}, err
	}
	plaintext, err := key.Decrypt(sealed.IV, sealed.Ciphertext)
	if err != nil {
		return Envelope{}, err
	}
	inner, err := Unmarshal(plaintext)
	if err != nil {
		return Envelope{}, err
	}
	if inner.Type == TypeEncrypted {
		return Envelope{}, fmt.Errorf("%w: nested encrypted envelope", ErrMalformedFrame)
	}
	return inner, nil
}
