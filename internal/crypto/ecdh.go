package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/x509"
	"fmt"
	"io"
)

// incomparable makes a struct non-comparable with ==.
type incomparable [0]func()

// PublicKey is a P-256 public key. It is freely exportable.
type PublicKey struct {
	key *ecdh.PublicKey
}

// IsZero reports whether k holds no key.
func (k PublicKey) IsZero() bool { return k.key == nil }

// Equal reports whether k and other encode the same point.
func (k PublicKey) Equal(other PublicKey) bool {
	if k.key == nil || other.key == nil {
		return k.key == other.key
	}
	return k.key.Equal(other.key)
}

// Fingerprint returns a short display fingerprint of the SPKI encoding.
func (k PublicKey) Fingerprint() string {
	if k.key == nil {
		return ""
	}
	der, err := x509.MarshalPKIXPublicKey(k.key)
	if err != nil {
		return ""
	}
	return Fingerprint(der)
}

// KeyPair is an ephemeral P-256 key pair. The private half cannot be read,
// copied out or serialized; it is only ever an input to DeriveSessionKey.
type KeyPair struct {
	_    incomparable
	priv *ecdh.PrivateKey
	pub  PublicKey
}

// GenerateKeyPair creates a fresh P-256 key pair from rand.
// A nil or failing rand reports ErrCryptoUnavailable.
func GenerateKeyPair(rand io.Reader) (*KeyPair, error) {
	if rand == nil {
		return nil, fmt.Errorf("%w: no entropy source", ErrCryptoUnavailable)
	}
	priv, err := ecdh.P256().GenerateKey(rand)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	return &KeyPair{priv: priv, pub: PublicKey{key: priv.PublicKey()}}, nil
}

// Public returns the exportable half of the pair.
func (kp *KeyPair) Public() PublicKey { return kp.pub }

// Discard drops the private key. A discarded pair cannot derive keys.
func (kp *KeyPair) Discard() {
	if kp == nil {
		return
	}
	kp.priv = nil
}

func (kp *KeyPair) String() string { return "KeyPair(redacted)" }

func (kp *KeyPair) GoString() string { return kp.String() }

// MarshalJSON always fails; key pairs never leave the process.
func (kp *KeyPair) MarshalJSON() ([]byte, error) { return nil, ErrNotExportable }

// MarshalText always fails; key pairs never leave the process.
func (kp *KeyPair) MarshalText() ([]byte, error) { return nil, ErrNotExportable }

// ExportPublicKey encodes pub as base64 SPKI (PKIX DER).
func ExportPublicKey(pub PublicKey) (string, error) {
	if pub.key == nil {
		return "", fmt.Errorf("%w: empty key", ErrMalformedKey)
	}
	der, err := x509.MarshalPKIXPublicKey(pub.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return EncodeBase64(der), nil
}

// ImportPublicKey parses a base64 SPKI P-256 public key.
func ImportPublicKey(s string) (PublicKey, error) {
	der, err := DecodeBase64(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if len(der) == 0 {
		return PublicKey{}, fmt.Errorf("%w: empty key", ErrMalformedKey)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	var pub *ecdh.PublicKey
	switch k := parsed.(type) {
	case *ecdh.PublicKey:
		pub = k
	case interface{ ECDH() (*ecdh.PublicKey, error) }:
		if pub, err = k.ECDH(); err != nil {
			return PublicKey{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}
	default:
		return PublicKey{}, fmt.Errorf("%w: unsupported key type %T", ErrMalformedKey, parsed)
	}
	if pub.Curve() != ecdh.P256() {
		return PublicKey{}, fmt.Errorf("%w: curve is not P-256", ErrMalformedKey)
	}
	return PublicKey{key: pub}, nil
}

// DeriveSessionKey performs ECDH between the local private key and peer and
// returns the resulting AES-256-GCM session key. Both sides of an exchange
// derive interchangeable keys.
func DeriveSessionKey(local *KeyPair, peer PublicKey) (*SessionKey, error) {
	if local == nil || local.priv == nil {
		return nil, fmt.Errorf("%w: key pair discarded", ErrCryptoUnavailable)
	}
	if peer.key == nil {
		return nil, fmt.Errorf("%w: empty peer key", ErrMalformedKey)
	}
	secret, err := local.priv.ECDH(peer.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	defer Wipe(secret)

	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	fp, err := sessionFingerprint(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	return &SessionKey{aead: aead, fingerprint: fp}, nil
}
