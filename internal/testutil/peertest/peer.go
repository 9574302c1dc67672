// Package peertest provides a scripted message server for tests. A Peer
// answers the key exchange on one in-memory connection, decrypts what the
// client sends and can reply with encrypted or raw frames.
package peertest

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"enclavelink/internal/crypto"
	"enclavelink/internal/domain"
	"enclavelink/internal/logging"
	"enclavelink/internal/protocol/envelope"
	"enclavelink/internal/transport"
)

var ErrNoSession = errors.New("peertest: no session key yet")

// Options scripts the peer's behavior.
type Options struct {
	// Silent leaves handshake.init unanswered.
	Silent bool
	// Attestation is attached to the handshake response.
	Attestation json.RawMessage
	// Response, when set, is sent verbatim as the handshake.response payload
	// and no session key is derived.
	Response json.RawMessage
	// Greeting is sent encrypted as soon as handshake.complete arrives.
	Greeting []envelope.Envelope
	// Reply, when set, is called for every decrypted application message; the
	// envelopes it returns are sent back encrypted.
	Reply func(in envelope.Envelope) []envelope.Envelope
}

// Peer is the server side of one connection.
type Peer struct {
	conn domain.Conn
	opts Options
	reg  *envelope.Registry

	mu          sync.Mutex
	key         *crypto.SessionKey
	inits       []envelope.HandshakeInit
	established chan struct{}
	estOnce     sync.Once
	received    chan envelope.Envelope
	done        chan struct{}
}

// Serve starts answering conn in a new goroutine.
func Serve(conn domain.Conn, opts Options) *Peer {
	p := &Peer{
		conn:        conn,
		opts:        opts,
		reg:         envelope.NewRegistry(),
		established: make(chan struct{}),
		received:    make(chan envelope.Envelope, 256),
		done:        make(chan struct{}),
	}
	go p.loop()
	return p
}

// Accept waits for the next dial on d and serves it.
func Accept(ctx context.Context, d *transport.PipeDialer, opts Options) (*Peer, error) {
	select {
	case conn := <-d.Accepted():
		return Serve(conn, opts), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ServeAll serves every connection dialed through d until ctx is done. Each
// new peer is delivered on the returned channel.
func ServeAll(ctx context.Context, d *transport.PipeDialer, opts Options) <-chan *Peer {
	out := make(chan *Peer, 64)
	go func() {
		for {
			p, err := Accept(ctx, d, opts)
			if err != nil {
				return
			}
			select {
			case out <- p:
			default:
			}
		}
	}()
	return out
}

func (p *Peer) loop() {
	defer close(p.done)
	log := logging.For("peertest")
	ctx := context.Background()
	for {
		data, err := p.conn.ReadMessage(ctx)
		if err != nil {
			return
		}
		env, err := envelope.Unmarshal(data)
		if err != nil {
			log.Debug().Err(err).Msg("peer dropping frame")
			continue
		}
		if err := p.handle(env); err != nil {
			log.Debug().Err(err).Str("type", env.Type).Msg("peer failed to handle frame")
		}
	}
}

func (p *Peer) handle(env envelope.Envelope) error {
	switch env.Type {
	case envelope.TypeHandshakeInit:
		msg, err := p.reg.Decode(env)
		if err != nil {
			return err
		}
		hello := msg.Body.(*envelope.HandshakeInit)
		p.mu.Lock()
		p.inits = append(p.inits, *hello)
		p.mu.Unlock()
		if p.opts.Silent {
			return nil
		}
		return p.respond(hello)

	case envelope.TypeEncrypted:
		p.mu.Lock()
		key := p.key
		p.mu.Unlock()
		if key == nil {
			return ErrNoSession
		}
		inner, err := envelope.Open(key, env)
		if err != nil {
			return err
		}
		if inner.Type == envelope.TypeHandshakeComplete {
			var done envelope.HandshakeComplete
			if err := inner.DecodePayload(&done); err != nil {
				return err
			}
			if done.Status != envelope.StatusOK {
				return nil
			}
			for _, out := range p.opts.Greeting {
				if err := p.Send(out); err != nil {
					return err
				}
			}
			p.estOnce.Do(func() { close(p.established) })
			return nil
		}
		select {
		case p.received <- inner:
		default:
		}
		if p.opts.Reply != nil {
			for _, out := range p.opts.Reply(inner) {
				if err := p.Send(out); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return fmt.Errorf("peertest: unexpected plaintext %s", env.Type)
}

func (p *Peer) respond(hello *envelope.HandshakeInit) error {
	if p.opts.Response != nil {
		resp, err := envelope.New(envelope.TypeHandshakeResponse, p.opts.Response)
		if err != nil {
			return err
		}
		return p.SendPlain(resp)
	}
	clientKey, err := crypto.ImportPublicKey(hello.ClientPublicKey)
	if err != nil {
		return err
	}
	server, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		return err
	}
	defer server.Discard()
	key, err := crypto.DeriveSessionKey(server, clientKey)
	if err != nil {
		return err
	}
	pub, err := crypto.ExportPublicKey(server.Public())
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.key = key
	p.mu.Unlock()

	resp, err := envelope.New(envelope.TypeHandshakeResponse, envelope.HandshakeResponse{
		ServerPublicKey: pub,
		Attestation:     p.opts.Attestation,
	})
	if err != nil {
		return err
	}
	return p.SendPlain(resp)
}

// Send seals env under the session key and writes it.
func (p *Peer) Send(env envelope.Envelope) error {
	sealed, err := p.Seal(env)
	if err != nil {
		return err
	}
	return p.SendPlain(sealed)
}

// Seal encrypts env under the session key without sending it.
func (p *Peer) Seal(env envelope.Envelope) (envelope.Envelope, error) {
	p.mu.Lock()
	key := p.key
	p.mu.Unlock()
	if key == nil {
		return envelope.Envelope{}, ErrNoSession
	}
	return envelope.Seal(key, env)
}

// SendPlain writes env without encryption.
func (p *Peer) SendPlain(env envelope.Envelope) error {
	data, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	return p.SendRaw(data)
}

// SendRaw writes data as one frame.
func (p *Peer) SendRaw(data []byte) error {
	return p.conn.WriteMessage(context.Background(), data)
}

// Established is closed once a valid encrypted handshake.complete arrives.
func (p *Peer) Established() <-chan struct{} { return p.established }

// Received delivers decrypted application messages in arrival order.
func (p *Peer) Received() <-chan envelope.Envelope { return p.received }

// Done is closed when the connection ends.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Inits returns the handshake.init payloads seen so far.
func (p *Peer) Inits() []envelope.HandshakeInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]envelope.HandshakeInit(nil), p.inits...)
}

// Fingerprint identifies the peer's session key, or "" before the exchange.
func (p *Peer) Fingerprint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key == nil {
		return ""
	}
	return p.key.Fingerprint()
}

// Close drops the connection.
func (p *Peer) Close() error { return p.conn.Close() }
