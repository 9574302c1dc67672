package crypto

import "errors"

var (
	// ErrCryptoUnavailable reports a missing or failing entropy source.
	ErrCryptoUnavailable = errors.New("crypto: provider unavailable")
	// ErrMalformedKey reports a public key that is not base64 SPKI for P-256.
	ErrMalformedKey = errors.New("crypto: malformed public key")
	// ErrMalformedCiphertext reports an IV or ciphertext that cannot be decoded.
	ErrMalformedCiphertext = errors.New("crypto: malformed ciphertext")
	// ErrAuthenticationFailure reports a GCM tag that did not verify.
	ErrAuthenticationFailure = errors.New("crypto: authentication failed")
	// ErrNotExportable is returned by marshallers of secret key types.
	ErrNotExportable = errors.New("crypto: key is not exportable")
)
