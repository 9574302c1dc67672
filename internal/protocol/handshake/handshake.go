package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"enclavelink/internal/crypto"
	"enclavelink/internal/protocol/envelope"
)

const (
	DefaultProtocolVersion = "1.0.0"
	DefaultTimeout         = 10 * time.Second
)

var (
	ErrHandshakeTimeout = errors.New("handshake: timed out waiting for response")
	ErrInboundClosed    = errors.New("handshake: connection closed before response")
	ErrAlreadyUsed      = errors.New("handshake: initiator already completed")
)

// Sender writes one plaintext envelope to the peer.
type Sender interface {
	SendPlain(env envelope.Envelope) error
}

// Result is the outcome of a successful key exchange.
type Result struct {
	// Key is the derived session key.
	Key *crypto.SessionKey
	// Complete is the handshake.complete envelope. It must go out sealed under
	// Key and before any other encrypted traffic.
	Complete envelope.Envelope
	// ServerFingerprint identifies the server's ephemeral public key.
	ServerFingerprint string
	// Attestation is passed through unverified.
	Attestation json.RawMessage
}

// Initiator is the client side of one key exchange. It owns an ephemeral key
// pair that is discarded once Complete returns, successfully or not.
type Initiator struct {
	keys    *crypto.KeyPair
	version string
}

// NewInitiator generates the ephemeral key pair for one attempt.
func NewInitiator(rand io.Reader, version string) (*Initiator, error) {
	if strings.TrimSpace(version) == "" {
		version = DefaultProtocolVersion
	}
	keys, err := crypto.GenerateKeyPair(rand)
	if err != nil {
		return nil, err
	}
	return &Initiator{keys: keys, version: version}, nil
}

// Init builds the plaintext handshake.init envelope.
func (i *Initiator) Init() (envelope.Envelope, error) {
	if i.keys == nil {
		return envelope.Envelope{}, ErrAlreadyUsed
	}
	pub, err := crypto.ExportPublicKey(i.keys.Public())
	if err != nil {
		return envelope.Envelope{}, err
	}
	return envelope.New(envelope.TypeHandshakeInit, envelope.HandshakeInit{
		ClientPublicKey: pub,
		ProtocolVersion: i.version,
	})
}

// Complete imports the server key from resp, derives the session key and
// builds the handshake.complete message.
func (i *Initiator) Complete(resp *envelope.HandshakeResponse) (Result, error) {
	if i.keys == nil {
		return Result{}, ErrAlreadyUsed
	}
	defer i.Discard()

	if resp == nil {
		return Result{}, fmt.Errorf("%w: empty handshake.response", envelope.ErrMalformedFrame)
	}
	if err := resp.Validate(); err != nil {
		return Result{}, err
	}
	serverKey, err := crypto.ImportPublicKey(resp.ServerPublicKey)
	if err != nil {
		return Result{}, err
	}
	key, err := crypto.DeriveSessionKey(i.keys, serverKey)
	if err != nil {
		return Result{}, err
	}
	complete, err := envelope.New(envelope.TypeHandshakeComplete, envelope.HandshakeComplete{Status: envelope.StatusOK})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Key:               key,
		Complete:          complete,
		ServerFingerprint: serverKey.Fingerprint(),
		Attestation:       resp.Attestation,
	}, nil
}

// Discard drops the ephemeral private key.
func (i *Initiator) Discard() {
	i.keys.Discard()
	i.keys = nil
}

// AwaitResponse blocks until a handshake.response arrives on inbound, the
// timeout expires, ctx is done or inbound is closed. Other message types are
// skipped. A response that failed to decode ends the wait at once.
func AwaitResponse(ctx context.Context, inbound <-chan envelope.Message, timeout time.Duration) (*envelope.HandshakeResponse, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w after %s", ErrHandshakeTimeout, timeout)
		case msg, ok := <-inbound:
			if !ok {
				return nil, ErrInboundClosed
			}
			if msg.Type != envelope.TypeHandshakeResponse {
				continue
			}
			if msg.Err != nil {
				return nil, fmt.Errorf("handshake: bad response: %w", msg.Err)
			}
			resp, ok := msg.Body.(*envelope.HandshakeResponse)
			if !ok {
				return nil, fmt.Errorf("%w: handshake.response body %T", envelope.ErrMalformedFrame, msg.Body)
			}
			return resp, nil
		}
	}
}

// Run performs steps two through four of the exchange over s: send init,
// await the response and derive the key. The returned Result still has to
// have its Complete message sealed and sent by the caller.
func Run(ctx context.Context, s Sender, inbound <-chan envelope.Message, rand io.Reader, version string, timeout time.Duration) (Result, error) {
	initiator, err := NewInitiator(rand, version)
	if err != nil {
		return Result{}, err
	}
	defer initiator.Discard()

	hello, err := initiator.Init()
	if err != nil {
		return Result{}, err
	}
	if err := s.SendPlain(hello); err != nil {
		return Result{}, fmt.Errorf("handshake: send init: %w", err)
	}

	resp, err := AwaitResponse(ctx, inbound, timeout)
	if err != nil {
		return Result{}, err
	}
	return initiator.Complete(resp)
}
