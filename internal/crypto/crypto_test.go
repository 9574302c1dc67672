package crypto_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enclavelink/internal/crypto"
	"enclavelink/internal/testutil/testlog"
)

func newPair(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	return kp
}

func sessionBetween(t *testing.T, local, peer *crypto.KeyPair) *crypto.SessionKey {
	t.Helper()
	sk, err := crypto.DeriveSessionKey(local, peer.Public())
	require.NoError(t, err)
	return sk
}

func TestBase64_RoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, b := range [][]byte{
		{1, 2, 3, 4, 5, 255, 0, 128},
		{0},
		bytes.Repeat([]byte{0xAB}, 1000),
	} {
		got, err := crypto.DecodeBase64(crypto.EncodeBase64(b))
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
}

func TestBase64_Empty(t *testing.T) {
	testlog.Start(t)
	require.Equal(t, "", crypto.EncodeBase64([]byte{}))
	require.Equal(t, "", crypto.EncodeBase64(nil))

	got, err := crypto.DecodeBase64("")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got, 0)
}

func TestBase64_Invalid(t *testing.T) {
	testlog.Start(t)
	_, err := crypto.DecodeBase64("not*base64")
	require.Error(t, err)
}

func TestGenerateKeyPair_NoEntropy(t *testing.T) {
	testlog.Start(t)
	_, err := crypto.GenerateKeyPair(nil)
	require.ErrorIs(t, err, crypto.ErrCryptoUnavailable)

	_, err = crypto.GenerateKeyPair(failingReader{})
	require.ErrorIs(t, err, crypto.ErrCryptoUnavailable)
}

func TestKeyPair_NotExportable(t *testing.T) {
	testlog.Start(t)
	kp := newPair(t)

	_, err := json.Marshal(kp)
	require.ErrorIs(t, err, crypto.ErrNotExportable)
	_, err = kp.MarshalText()
	require.ErrorIs(t, err, crypto.ErrNotExportable)

	assert.Equal(t, "KeyPair(redacted)", fmt.Sprintf("%v", kp))
	assert.Equal(t, "KeyPair(redacted)", fmt.Sprintf("%#v", kp))
}

func TestSessionKey_NotExportable(t *testing.T) {
	testlog.Start(t)
	sk := sessionBetween(t, newPair(t), newPair(t))

	_, err := json.Marshal(sk)
	require.ErrorIs(t, err, crypto.ErrNotExportable)
	assert.Equal(t, "SessionKey(redacted)", fmt.Sprintf("%v", sk))
}

func TestExportImportPublicKey(t *testing.T) {
	testlog.Start(t)
	kp := newPair(t)

	exported, err := crypto.ExportPublicKey(kp.Public())
	require.NoError(t, err)
	require.NotEmpty(t, exported)

	der, err := crypto.DecodeBase64(exported)
	require.NoError(t, err)
	_, err = x509.ParsePKIXPublicKey(der)
	require.NoError(t, err, "export must be standard SPKI")

	imported, err := crypto.ImportPublicKey(exported)
	require.NoError(t, err)
	require.True(t, imported.Equal(kp.Public()))
	require.Equal(t, kp.Public().Fingerprint(), imported.Fingerprint())
}

func TestImportPublicKey_Malformed(t *testing.T) {
	testlog.Start(t)

	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	p384DER, err := x509.MarshalPKIXPublicKey(&p384.PublicKey)
	require.NoError(t, err)

	for name, in := range map[string]string{
		"bad base64":  "%%%",
		"empty":       "",
		"not der":     crypto.EncodeBase64([]byte("hello")),
		"wrong curve": crypto.EncodeBase64(p384DER),
	} {
		_, err := crypto.ImportPublicKey(in)
		require.ErrorIs(t, err, crypto.ErrMalformedKey, name)
	}
}

func TestDeriveSessionKey_Commutative(t *testing.T) {
	testlog.Start(t)
	a, b := newPair(t), newPair(t)

	ab := sessionBetween(t, a, b)
	ba := sessionBetween(t, b, a)
	require.Equal(t, ab.Fingerprint(), ba.Fingerprint())

	iv, ct, err := ab.Encrypt([]byte("from a"))
	require.NoError(t, err)
	pt, err := ba.Decrypt(iv, ct)
	require.NoError(t, err)
	require.Equal(t, "from a", string(pt))

	iv, ct, err = ba.Encrypt([]byte("from b"))
	require.NoError(t, err)
	pt, err = ab.Decrypt(iv, ct)
	require.NoError(t, err)
	require.Equal(t, "from b", string(pt))
}

func TestDeriveSessionKey_Discarded(t *testing.T) {
	testlog.Start(t)
	a, b := newPair(t), newPair(t)
	a.Discard()
	_, err := crypto.DeriveSessionKey(a, b.Public())
	require.Error(t, err)
}

func TestClientServerPing(t *testing.T) {
	testlog.Start(t)
	client, server := newPair(t), newPair(t)

	clientPub, err := crypto.ExportPublicKey(client.Public())
	require.NoError(t, err)
	serverPub, err := crypto.ExportPublicKey(server.Public())
	require.NoError(t, err)

	serverKeyAtClient, err := crypto.ImportPublicKey(serverPub)
	require.NoError(t, err)
	clientKeyAtServer, err := crypto.ImportPublicKey(clientPub)
	require.NoError(t, err)

	clientSession, err := crypto.DeriveSessionKey(client, serverKeyAtClient)
	require.NoError(t, err)
	serverSession, err := crypto.DeriveSessionKey(server, clientKeyAtServer)
	require.NoError(t, err)

	iv, ct, err := clientSession.Encrypt([]byte("ping"))
	require.NoError(t, err)
	pt, err := serverSession.Decrypt(iv, ct)
	require.NoError(t, err)
	require.Equal(t, "ping", string(pt))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	testlog.Start(t)
	sk := sessionBetween(t, newPair(t), newPair(t))

	for _, p := range []string{"", "x", "Hello! Encrypted content with unicode. héllo ✓", string(bytes.Repeat([]byte("z"), 1<<16))} {
		iv, ct, err := sk.Encrypt([]byte(p))
		require.NoError(t, err)
		got, err := sk.Decrypt(iv, ct)
		require.NoError(t, err)
		require.Equal(t, p, string(got))
	}
}

func TestEncrypt_FreshIVs(t *testing.T) {
	testlog.Start(t)
	sk := sessionBetween(t, newPair(t), newPair(t))

	iv1, ct1, err := sk.Encrypt([]byte("same message"))
	require.NoError(t, err)
	iv2, ct2, err := sk.Encrypt([]byte("same message"))
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2)
	assert.NotEqual(t, ct1, ct2)

	raw, err := crypto.DecodeBase64(iv1)
	require.NoError(t, err)
	assert.Len(t, raw, crypto.IVBytes)
}

func TestDecrypt_WrongKey(t *testing.T) {
	testlog.Start(t)
	k1, k2, k3 := newPair(t), newPair(t), newPair(t)
	correct := sessionBetween(t, k1, k2)
	wrong := sessionBetween(t, k3, k2)

	iv, ct, err := correct.Encrypt([]byte("secret data"))
	require.NoError(t, err)

	_, err = wrong.Decrypt(iv, ct)
	require.ErrorIs(t, err, crypto.ErrAuthenticationFailure)
}

func TestDecrypt_Tampered(t *testing.T) {
	testlog.Start(t)
	sk := sessionBetween(t, newPair(t), newPair(t))
	iv, ct, err := sk.Encrypt([]byte("integrity"))
	require.NoError(t, err)

	raw, err := crypto.DecodeBase64(ct)
	require.NoError(t, err)
	raw[0] ^= 0x01
	_, err = sk.Decrypt(iv, crypto.EncodeBase64(raw))
	require.ErrorIs(t, err, crypto.ErrAuthenticationFailure)

	_, err = sk.Decrypt(crypto.EncodeBase64([]byte{1, 2, 3}), ct)
	require.ErrorIs(t, err, crypto.ErrMalformedCiphertext)
	require.False(t, errors.Is(err, crypto.ErrAuthenticationFailure))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }
