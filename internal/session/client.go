package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"enclavelink/internal/crypto"
	"enclavelink/internal/domain"
	"enclavelink/internal/logging"
	"enclavelink/internal/protocol/envelope"
	"enclavelink/internal/protocol/handshake"
)

// Option customizes a Client.
type Option func(*Client)

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithEntropy sets the source used for ephemeral key generation.
func WithEntropy(r io.Reader) Option {
	return func(c *Client) { c.entropy = r }
}

// WithJitter sets the random source for reconnect jitter.
func WithJitter(rng *mathrand.Rand) Option {
	return func(c *Client) { c.rng = rng }
}

// Client keeps one end-to-end encrypted session to the message server alive.
// All methods are safe for concurrent use.
type Client struct {
	cfg      Config
	dialer   domain.Dialer
	log      zerolog.Logger
	entropy  io.Reader
	payloads *envelope.Registry
	handlers *handlerRegistry

	// afterFunc schedules reconnects.
	afterFunc func(time.Duration, func()) *time.Timer

	mu          sync.Mutex
	rng         *mathrand.Rand
	state       State
	addr        domain.Address
	gen         uint64
	conn        *connection
	key         *crypto.SessionKey
	attestation json.RawMessage
	queue       []envelope.Envelope
	attempts    int
	suppressed  bool
	closed      bool
	timer       *time.Timer
	inflight    *attempt
	pending     []State
	emitting    bool
}

// New returns a disconnected client.
func New(cfg Config, dialer domain.Dialer, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg.normalized(),
		dialer:    dialer,
		log:       logging.For("session"),
		entropy:   rand.Reader,
		payloads:  envelope.NewRegistry(),
		handlers:  newHandlerRegistry(),
		afterFunc: time.AfterFunc,
		state:     StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// attempt is one dial plus handshake. Concurrent Connect calls share it.
type attempt struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (a *attempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// connection is the per-socket state: the writer and the channel the reader
// uses to hand handshake responses to the waiting initiator.
type connection struct {
	gen       uint64
	conn      domain.Conn
	w         *frameWriter
	handshake chan envelope.Message
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (cn *connection) SendPlain(env envelope.Envelope) error {
	frame, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	if !cn.w.push(frame) {
		return fmt.Errorf("%w: connection closed", ErrTransportFailure)
	}
	return nil
}

func (cn *connection) close() {
	if cn == nil {
		return
	}
	cn.closeOnce.Do(func() {
		cn.cancel()
		cn.w.stop()
		_ = cn.conn.Close()
	})
}

// Connect opens the transport to addr and runs the key exchange. It returns
// nil once the session is encrypted. An empty addr reuses the last address.
//
// Calls made while an attempt to the same address is in flight wait for that
// attempt. Cancelling ctx stops the wait, not the attempt. An explicit Connect
// re-enables automatic reconnect after Disconnect and resets the attempt
// counter.
func (c *Client) Connect(ctx context.Context, addr domain.Address) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if addr.IsZero() {
		addr = c.addr
	}
	if addr.IsZero() {
		c.mu.Unlock()
		return ErrNoAddress
	}
	addr = domain.Address(strings.TrimSpace(addr.String()))

	c.suppressed = false
	c.attempts = 0
	c.stopTimerLocked()

	if addr == c.addr {
		if c.state == StateEncrypted {
			c.mu.Unlock()
			return nil
		}
		if a := c.inflight; a != nil {
			c.mu.Unlock()
			return wait(ctx, a)
		}
	}

	var dead *connection
	var superseded *attempt
	if c.conn != nil || c.inflight != nil {
		superseded = c.abortLocked()
		dead = c.detachLocked()
	}
	a := c.startAttemptLocked(addr)
	c.mu.Unlock()

	dead.close()
	if superseded != nil {
		superseded.finish(ErrDisconnected)
	}
	c.emitStates()
	return wait(ctx, a)
}

func wait(ctx context.Context, a *attempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues env for delivery. Once the session is encrypted it is sealed and
// handed to the connection writer; before that it waits in the outbound queue
// and is flushed, in order, right after the handshake completes. Send never
// blocks on the network.
func (c *Client) Send(env envelope.Envelope) error {
	if strings.TrimSpace(env.Type) == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage(`{}`)
	} else if !json.Valid(env.Payload) {
		return fmt.Errorf("%w: %s payload is not valid json", ErrInvalidEnvelope, env.Type)
	}
	env.Stamp()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == StateEncrypted && c.key != nil && c.conn != nil {
		return c.sendSealedLocked(c.conn, env)
	}
	c.queue = append(c.queue, env)
	return nil
}

// Flush waits until every message handed to the current connection has been
// written to the transport. It fails with ErrDisconnected when the session is
// not encrypted or the connection goes away first.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	cn := c.conn
	ready := c.state == StateEncrypted && cn != nil
	c.mu.Unlock()
	if !ready {
		return ErrDisconnected
	}
	return cn.w.flush(ctx)
}

// SendPayload builds an envelope of type typ around payload and sends it.
func (c *Client) SendPayload(typ string, payload any) error {
	env, err := envelope.New(typ, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return c.Send(env)
}

func (c *Client) sendSealedLocked(cn *connection, env envelope.Envelope) error {
	sealed, err := envelope.Seal(c.key, env)
	if err != nil {
		return err
	}
	frame, err := envelope.Marshal(sealed)
	if err != nil {
		return err
	}
	if !cn.w.push(frame) {
		// The reader will report the closure; keep the message for the next session.
		c.queue = append(c.queue, env)
	}
	return nil
}

// On subscribes fn to messages of type typ, or to all messages when typ is
// Wildcard. Type handlers run before wildcard handlers, each in registration
// order, on the connection's reader goroutine.
func (c *Client) On(typ string, fn Handler) Token {
	return c.handlers.add(strings.TrimSpace(typ), fn)
}

// OnStateChange subscribes fn to state transitions.
func (c *Client) OnStateChange(fn StateHandler) Token {
	return c.handlers.addState(fn)
}

// RegisterPayload adds a typed payload shape for inbound messages of type typ.
func (c *Client) RegisterPayload(typ string, f envelope.Factory) {
	c.payloads.Register(typ, f)
}

// Disconnect closes the connection and stops automatic reconnects until the
// next Connect. Queued outbound messages are kept.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.suppressed = true
	c.stopTimerLocked()
	a := c.abortLocked()
	dead := c.detachLocked()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	dead.close()
	if a != nil {
		a.finish(ErrDisconnected)
	}
	c.emitStates()
}

// Close disconnects and releases the client. It cannot be reused.
func (c *Client) Close() error {
	c.Disconnect()
	c.mu.Lock()
	c.closed = true
	c.queue = nil
	c.mu.Unlock()
	return nil
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Fingerprint identifies the current session key. It is empty unless the
// session is encrypted.
func (c *Client) Fingerprint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEncrypted || c.key == nil {
		return ""
	}
	return c.key.Fingerprint()
}

// Attestation returns the artifact the server sent with its handshake
// response, unverified. It is nil unless the session is encrypted.
func (c *Client) Attestation() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEncrypted {
		return nil
	}
	return append(json.RawMessage(nil), c.attestation...)
}

// Address returns the address of the last Connect.
func (c *Client) Address() domain.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Queued reports how many outbound messages wait for an encrypted session.
func (c *Client) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) startAttemptLocked(addr domain.Address) *attempt {
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{gen: c.gen, cancel: cancel, done: make(chan struct{})}
	c.inflight = a
	c.addr = addr
	c.setStateLocked(StateConnecting)
	go c.run(ctx, a, addr)
	return a
}

// abortLocked cancels the in-flight attempt, if any, and returns it so the
// caller can finish it after unlocking.
func (c *Client) abortLocked() *attempt {
	c.gen++
	a := c.inflight
	c.inflight = nil
	if a != nil {
		a.cancel()
	}
	return a
}

// detachLocked forgets the current connection and session key. The returned
// connection must be closed after unlocking.
func (c *Client) detachLocked() *connection {
	cn := c.conn
	c.conn = nil
	c.key = nil
	c.attestation = nil
	return cn
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) run(ctx context.Context, a *attempt, addr domain.Address) {
	log := c.log.With().Str("addr", addr.String()).Uint64("gen", a.gen).Logger()

	raw, err := c.dialer.Dial(ctx, addr)
	if err != nil {
		c.fail(a, fmt.Errorf("%w: dial: %v", ErrTransportFailure, err))
		return
	}

	c.mu.Lock()
	if c.inflight != a {
		c.mu.Unlock()
		_ = raw.Close()
		return
	}
	connCtx, connCancel := context.WithCancel(context.Background())
	cn := &connection{
		gen:       a.gen,
		conn:      raw,
		handshake: make(chan envelope.Message, 1),
		ctx:       connCtx,
		cancel:    connCancel,
	}
	cn.w = newFrameWriter(raw, func(err error) { c.connectionLost(cn, err) })
	c.conn = cn
	c.setStateLocked(StateHandshaking)
	c.mu.Unlock()
	c.emitStates()

	go c.readLoop(cn)
	log.Debug().Msg("transport open, starting handshake")

	res, err := handshake.Run(ctx, cn, cn.handshake, c.entropy, c.cfg.ProtocolVersion, c.cfg.HandshakeTimeout)
	if err != nil {
		c.fail(a, err)
		return
	}

	// The key must be readable by the reader before the server sees
	// handshake.complete, since the server may answer it at once. The state
	// stays handshaking so Send keeps queuing until the flush below.
	c.mu.Lock()
	if c.inflight != a || c.conn != cn {
		c.mu.Unlock()
		return
	}
	c.key = res.Key
	c.attestation = res.Attestation
	c.mu.Unlock()

	complete, err := envelope.Seal(res.Key, res.Complete)
	if err == nil {
		err = cn.SendPlain(complete)
	}
	if err != nil {
		c.fail(a, err)
		return
	}

	c.mu.Lock()
	if c.inflight != a || c.conn != cn {
		c.mu.Unlock()
		return
	}
	c.inflight = nil
	c.attempts = 0
	c.setStateLocked(StateEncrypted)
	queued := c.queue
	c.queue = nil
	for _, env := range queued {
		if err := c.sendSealedLocked(cn, env); err != nil {
			log.Warn().Err(err).Str("type", env.Type).Msg("dropping queued message")
		}
	}
	c.mu.Unlock()

	log.Info().Str("fingerprint", res.Key.Fingerprint()).Int("flushed", len(queued)).Msg("session encrypted")
	c.emitStates()
	a.finish(nil)
}

// fail ends attempt a with err: state error, transport closed and a
// reconnect scheduled.
func (c *Client) fail(a *attempt, err error) {
	c.mu.Lock()
	if c.inflight != a {
		c.mu.Unlock()
		a.finish(err)
		return
	}
	c.inflight = nil
	a.cancel()
	addr := c.addr
	c.setStateLocked(StateError)
	dead := c.detachLocked()
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.log.Warn().Err(err).Str("addr", addr.String()).Msg("connect attempt failed")
	dead.close()
	c.emitStates()
	a.finish(err)
}

// connectionLost handles a closure that Disconnect did not cause.
func (c *Client) connectionLost(cn *connection, err error) {
	c.mu.Lock()
	if c.conn != cn {
		c.mu.Unlock()
		return
	}
	a := c.inflight
	if a != nil && a.gen == cn.gen {
		c.inflight = nil
		a.cancel()
	} else {
		a = nil
	}
	c.detachLocked()
	if c.state != StateError {
		c.setStateLocked(StateDisconnected)
	}
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.log.Info().Err(err).Msg("connection closed")
	cn.close()
	c.emitStates()
	if a != nil {
		a.finish(fmt.Errorf("%w: %v", ErrTransportFailure, err))
	}
}

func (c *Client) scheduleReconnectLocked() {
	if c.suppressed || c.closed || c.addr.IsZero() || c.timer != nil {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.log.Warn().Int("attempts", c.attempts).Msg("reconnect attempts exhausted")
		return
	}
	delay := NextReconnectDelay(c.cfg.Backoff, c.attempts, c.rng)
	c.attempts++
	gen := c.gen
	c.log.Debug().Int("attempt", c.attempts).Dur("delay", delay).Msg("reconnect scheduled")
	c.timer = c.afterFunc(delay, func() { c.reconnect(gen) })
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	c.timer = nil
	if c.closed || c.suppressed || c.gen != gen || c.inflight != nil || c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.startAttemptLocked(c.addr)
	c.mu.Unlock()
	c.emitStates()
}

func (c *Client) readLoop(cn *connection) {
	for {
		data, err := cn.conn.ReadMessage(cn.ctx)
		if err != nil {
			c.connectionLost(cn, err)
			return
		}
		c.handleFrame(cn, data)
	}
}

// handleFrame decodes one inbound frame and dispatches it. Bad frames are
// dropped without a state change.
func (c *Client) handleFrame(cn *connection, data []byte) {
	c.mu.Lock()
	current := c.conn == cn
	key := c.key
	c.mu.Unlock()
	if !current {
		return
	}

	env, err := envelope.Unmarshal(data)
	if err != nil {
		c.log.Debug().Err(err).Msg("dropping undecodable frame")
		return
	}
	if env.Type == envelope.TypeEncrypted {
		if key == nil {
			c.log.Debug().Msg("dropping encrypted frame received before key agreement")
			return
		}
		env, err = envelope.Open(key, env)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping frame that failed to open")
			return
		}
	}

	msg, err := c.payloads.Decode(env)
	if err != nil {
		if env.Type == envelope.TypeHandshakeResponse {
			// Fail the waiting handshake now rather than at its timeout.
			select {
			case cn.handshake <- envelope.Message{Envelope: env, Err: err}:
			default:
			}
		}
		c.log.Debug().Err(err).Str("type", env.Type).Msg("dropping frame with invalid payload")
		return
	}
	if msg.Type == envelope.TypeHandshakeResponse {
		select {
		case cn.handshake <- msg:
		default:
		}
	}
	c.dispatch(msg)
}

func (c *Client) dispatch(msg envelope.Message) {
	for _, h := range c.handlers.forType(msg.Type) {
		c.safeCall(msg.Type, func() { h(msg) })
	}
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.pending = append(c.pending, s)
}

// emitStates delivers pending transitions in order. A transition caused from
// inside a state handler is delivered after that handler returns.
func (c *Client) emitStates() {
	c.mu.Lock()
	if c.emitting {
		c.mu.Unlock()
		return
	}
	c.emitting = true
	for len(c.pending) > 0 {
		s := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		c.log.Debug().Str("state", s.String()).Msg("state change")
		for _, h := range c.handlers.stateHandlers() {
			c.safeCall("state", func() { h(s) })
		}
		c.mu.Lock()
	}
	c.emitting = false
	c.mu.Unlock()
}

func (c *Client) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("handler", what).Msg("handler panicked")
		}
	}()
	fn()
}
