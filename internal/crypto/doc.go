// Package crypto exposes the primitives behind the encrypted channel.
//
// Contents
//
//   - P-256 key agreement: GenerateKeyPair, ExportPublicKey, ImportPublicKey and
//     DeriveSessionKey
//   - AES-256-GCM sealing under a derived SessionKey (Encrypt, Decrypt)
//   - Base64 helpers used for every binary value on the wire
//   - Best-effort memory wiping (Wipe) and short fingerprints for display
//
// # Key handling
//
// KeyPair and SessionKey are capabilities, not containers. Their secret material
// is held in unexported fields and there is no accessor that returns it; both
// types refuse JSON and text marshalling and print as redacted. The only things a
// caller can do with them are derive, encrypt and decrypt.
//
// The session key is the raw 32-byte ECDH shared secret used directly as an AES
// key. This matches what WebCrypto's deriveKey({name: "ECDH"}, ..., {name:
// "AES-GCM", length: 256}) produces, so a browser peer and this package agree on
// the same key without a KDF step.
//
// # Errors
//
// ErrCryptoUnavailable, ErrMalformedKey, ErrMalformedCiphertext and
// ErrAuthenticationFailure are returned wrapped; test with errors.Is.
package crypto
