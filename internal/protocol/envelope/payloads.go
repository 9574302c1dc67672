package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is a typed, self-validating envelope body.
type Payload interface {
	Validate() error
}

// Encrypted wraps one sealed inner envelope.
type Encrypted struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

func (p *Encrypted) Validate() error {
	if strings.TrimSpace(p.IV) == "" {
		return fmt.Errorf("%w: encrypted missing iv", ErrMalformedFrame)
	}
	if strings.TrimSpace(p.Ciphertext) == "" {
		return fmt.Errorf("%w: encrypted missing ciphertext", ErrMalformedFrame)
	}
	return nil
}

// HandshakeInit opens the key exchange (client → server, plaintext).
type HandshakeInit struct {
	ClientPublicKey string `json:"clientPublicKey"`
	ProtocolVersion string `json:"protocolVersion"`
}

func (p *HandshakeInit) Validate() error {
	if strings.TrimSpace(p.ClientPublicKey) == "" {
		return fmt.Errorf("%w: handshake.init missing clientPublicKey", ErrMalformedFrame)
	}
	if strings.TrimSpace(p.ProtocolVersion) == "" {
		return fmt.Errorf("%w: handshake.init missing protocolVersion", ErrMalformedFrame)
	}
	return nil
}

// HandshakeResponse answers HandshakeInit (server → client, plaintext).
// Attestation is carried opaquely and is not verified.
type HandshakeResponse struct {
	ServerPublicKey string          `json:"serverPublicKey"`
	Attestation     json.RawMessage `json:"attestation,omitempty"`
}

func (p *HandshakeResponse) Validate() error {
	if strings.TrimSpace(p.ServerPublicKey) == "" {
		return fmt.Errorf("%w: handshake.response missing serverPublicKey", ErrMalformedFrame)
	}
	return nil
}

// HandshakeComplete is the first encrypted message of a session.
type HandshakeComplete struct {
	Status string `json:"status"`
}

const StatusOK = "ok"

func (p *HandshakeComplete) Validate() error {
	if strings.TrimSpace(p.Status) == "" {
		return fmt.Errorf("%w: handshake.complete missing status", ErrMalformedFrame)
	}
	return nil
}
