package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"enclavelink/internal/domain"
	"enclavelink/internal/logging"
	"enclavelink/internal/protocol/envelope"
	"enclavelink/internal/session"
	"enclavelink/internal/transport"
)

var ErrReplyTimeout = errors.New("connection: timed out waiting for reply")

// Session is the part of session.Client the service drives.
type Session interface {
	Connect(ctx context.Context, addr domain.Address) error
	Send(env envelope.Envelope) error
	Flush(ctx context.Context) error
	On(typ string, fn session.Handler) session.Token
	OnStateChange(fn session.StateHandler) session.Token
	Disconnect()
	Fingerprint() string
}

// Service connects to the configured server and exchanges messages with it.
type Service struct {
	settings domain.SettingsStore
	client   Session
	fallback domain.Address
	log      zerolog.Logger
}

// New constructs a Service. fallback is used when no address was given and
// none has been saved.
func New(settings domain.SettingsStore, client Session, fallback domain.Address) *Service {
	return &Service{
		settings: settings,
		client:   client,
		fallback: fallback,
		log:      logging.For("connection"),
	}
}

// Compile-time assertion that Service implements domain.AddressService.
var _ domain.AddressService = (*Service)(nil)

// ResolveAddress returns override when set, otherwise the saved address,
// otherwise the fallback. Unreadable settings fall through to the fallback.
func (s *Service) ResolveAddress(override domain.Address) (domain.Address, error) {
	if !override.IsZero() {
		return override, nil
	}
	saved, ok, err := s.settings.LoadAddress()
	if err != nil {
		s.log.Warn().Err(err).Msg("ignoring unreadable settings")
	} else if ok {
		return saved, nil
	}
	if !s.fallback.IsZero() {
		return s.fallback, nil
	}
	return "", session.ErrNoAddress
}

// SetAddress validates and saves addr.
func (s *Service) SetAddress(addr domain.Address) error {
	if _, err := transport.ParseAddress(addr); err != nil {
		return err
	}
	return s.settings.SaveAddress(addr)
}

// Connect resolves the address and blocks until the session is encrypted.
func (s *Service) Connect(ctx context.Context, override domain.Address) (domain.Address, error) {
	addr, err := s.ResolveAddress(override)
	if err != nil {
		return "", err
	}
	if err := s.client.Connect(ctx, addr); err != nil {
		return addr, fmt.Errorf("connect %s: %w", addr, err)
	}
	return addr, nil
}

// Request sends env and, when expect is non-empty, waits up to wait for the
// first inbound message of that type. Without expect it returns once env has
// been written to the transport.
func (s *Service) Request(ctx context.Context, env envelope.Envelope, expect string, wait time.Duration) (envelope.Message, error) {
	if expect == "" {
		if err := s.client.Send(env); err != nil {
			return envelope.Message{}, err
		}
		return envelope.Message{}, s.client.Flush(ctx)
	}

	replies := make(chan envelope.Message, 1)
	tok := s.client.On(expect, func(msg envelope.Message) {
		select {
		case replies <- msg:
		default:
		}
	})
	defer tok.Cancel()

	if err := s.client.Send(env); err != nil {
		return envelope.Message{}, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case msg := <-replies:
		return msg, nil
	case <-timer.C:
		return envelope.Message{}, fmt.Errorf("%w: %s after %s", ErrReplyTimeout, expect, wait)
	case <-ctx.Done():
		return envelope.Message{}, ctx.Err()
	}
}

// Listen calls fn for every inbound message of type typ (all types when typ is
// empty) and for every state change until ctx is done.
func (s *Service) Listen(ctx context.Context, typ string, fn session.Handler, states session.StateHandler) {
	if typ == "" {
		typ = session.Wildcard
	}
	msgTok := s.client.On(typ, fn)
	defer msgTok.Cancel()
	if states != nil {
		stateTok := s.client.OnStateChange(states)
		defer stateTok.Cancel()
	}
	<-ctx.Done()
}

// Fingerprint identifies the current session key.
func (s *Service) Fingerprint() string { return s.client.Fingerprint() }

// Close ends the session.
func (s *Service) Close() { s.client.Disconnect() }
