package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TypeEncrypted         = "encrypted"
	TypeHandshakeInit     = "handshake.init"
	TypeHandshakeResponse = "handshake.response"
	TypeHandshakeComplete = "handshake.complete"
)

// MaxFrameBytes bounds one inbound frame before it is parsed.
const MaxFrameBytes = 8 * 1024 * 1024

var (
	ErrMalformedFrame = errors.New("envelope: malformed frame")
	ErrFrameTooLarge  = errors.New("envelope: frame too large")
)

// Envelope is the unit carried by every frame on the wire.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds an envelope with a random id and the current time. A nil payload
// is sent as an empty object.
func New(typ string, payload any) (Envelope, error) {
	env := Envelope{Type: typ}
	if err := env.SetPayload(payload); err != nil {
		return Envelope{}, err
	}
	env.Stamp()
	return env, nil
}

// Stamp fills in a missing id and timestamp.
func (e *Envelope) Stamp() {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
}

// SetPayload replaces the payload with the JSON encoding of v.
func (e *Envelope) SetPayload(v any) error {
	switch p := v.(type) {
	case nil:
		e.Payload = json.RawMessage(`{}`)
		return nil
	case json.RawMessage:
		if len(p) == 0 {
			e.Payload = json.RawMessage(`{}`)
			return nil
		}
		if !json.Valid(p) {
			return fmt.Errorf("envelope: %s payload is not valid json", e.Type)
		}
		e.Payload = p
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("envelope: encode %s payload: %w", e.Type, err)
	}
	e.Payload = b
	return nil
}

// DecodePayload unmarshals the payload into out.
func (e Envelope) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedFrame, e.Type)
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, e.Type, err)
	}
	return nil
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	if e.Timestamp < 0 {
		return fmt.Errorf("%w: negative timestamp", ErrMalformedFrame)
	}
	return nil
}

// Marshal encodes env as one wire frame.
func Marshal(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage(`{}`)
	}
	return json.Marshal(env)
}

// Unmarshal parses one wire frame into an envelope-shaped value.
func Unmarshal(data []byte) (Envelope, error) {
	if len(data) > MaxFrameBytes {
		return Envelope{}, ErrFrameTooLarge
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
