package envelope

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Factory returns a fresh zero value for one payload type.
type Factory func() Payload

// Message is an inbound envelope together with its decoded body. Body is nil
// when no payload type is registered for Envelope.Type, or when Err is set.
type Message struct {
	Envelope
	Body Payload
	// Err records why a registered payload failed to decode. Only the
	// handshake waiter receives such messages.
	Err error
}

// Registry maps type tags to payload factories. It is the single place where
// an inbound payload is checked against the shape its tag promises.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry preloaded with the protocol's own types.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(TypeEncrypted, func() Payload { return new(Encrypted) })
	r.Register(TypeHandshakeInit, func() Payload { return new(HandshakeInit) })
	r.Register(TypeHandshakeResponse, func() Payload { return new(HandshakeResponse) })
	r.Register(TypeHandshakeComplete, func() Payload { return new(HandshakeComplete) })
	return r
}

// Register installs or replaces the factory for typ.
func (r *Registry) Register(typ string, f Factory) {
	typ = strings.TrimSpace(typ)
	if typ == "" || f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = f
}

// Known reports whether typ has a registered payload shape.
func (r *Registry) Known(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typ]
	return ok
}

// Decode turns env into a Message. Registered types are unmarshalled and
// validated; a mismatch reports ErrMalformedFrame.
func (r *Registry) Decode(env Envelope) (Message, error) {
	r.mu.RLock()
	f, ok := r.factories[env.Type]
	r.mu.RUnlock()
	if !ok {
		return Message{Envelope: env}, nil
	}

	body := f()
	if err := env.DecodePayload(body); err != nil {
		return Message{}, err
	}
	if err := body.Validate(); err != nil {
		if errors.Is(err, ErrMalformedFrame) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, env.Type, err)
	}
	return Message{Envelope: env, Body: body}, nil
}
