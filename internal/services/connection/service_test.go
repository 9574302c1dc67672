package connection_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enclavelink/internal/domain"
	"enclavelink/internal/protocol/envelope"
	"enclavelink/internal/services/connection"
	"enclavelink/internal/session"
	"enclavelink/internal/store"
	"enclavelink/internal/testutil/peertest"
	"enclavelink/internal/testutil/testlog"
	"enclavelink/internal/transport"
)

type memSettings struct {
	mu   sync.Mutex
	addr domain.Address
	err  error
}

func (m *memSettings) SaveAddress(addr domain.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addr = addr
	return m.err
}

func (m *memSettings) LoadAddress() (domain.Address, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr, !m.addr.IsZero(), m.err
}

func TestResolveAddress_Precedence(t *testing.T) {
	testlog.Start(t)
	settings := &memSettings{}
	svc := connection.New(settings, nil, "ws://fallback")

	got, err := svc.ResolveAddress("")
	require.NoError(t, err)
	assert.Equal(t, domain.Address("ws://fallback"), got)

	require.NoError(t, svc.SetAddress("wss://saved/ws"))
	got, err = svc.ResolveAddress("")
	require.NoError(t, err)
	assert.Equal(t, domain.Address("wss://saved/ws"), got)

	got, err = svc.ResolveAddress("ws://flag")
	require.NoError(t, err)
	assert.Equal(t, domain.Address("ws://flag"), got)
}

func TestResolveAddress_Errors(t *testing.T) {
	testlog.Start(t)
	_, err := connection.New(&memSettings{}, nil, "").ResolveAddress("")
	require.ErrorIs(t, err, session.ErrNoAddress)

	broken := &memSettings{addr: "ws://saved", err: errors.New("disk on fire")}
	got, err := connection.New(broken, nil, "ws://x").ResolveAddress("")
	require.NoError(t, err)
	assert.Equal(t, domain.Address("ws://x"), got)

	_, err = connection.New(broken, nil, "").ResolveAddress("")
	require.ErrorIs(t, err, session.ErrNoAddress)
}

func TestSetAddress_Validates(t *testing.T) {
	testlog.Start(t)
	svc := connection.New(store.NewSettingsFileStore(t.TempDir()), nil, "")
	require.ErrorIs(t, svc.SetAddress("http://not-a-socket"), transport.ErrUnsupportedScheme)
	require.NoError(t, svc.SetAddress("ws://127.0.0.1:8080/ws"))
}

func newConnected(t *testing.T, opts peertest.Options) (*connection.Service, <-chan *peertest.Peer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	d := transport.NewPipeDialer()
	peers := peertest.ServeAll(ctx, d, opts)
	cfg := session.DefaultConfig()
	cfg.HandshakeTimeout = time.Second
	client := session.New(cfg, d)
	t.Cleanup(func() {
		_ = client.Close()
		cancel()
	})

	svc := connection.New(&memSettings{}, client, "ws://enclave.test/ws")
	addr, err := svc.Connect(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, domain.Address("ws://enclave.test/ws"), addr)
	assert.NotEmpty(t, svc.Fingerprint())
	return svc, peers
}

func TestRequest_WaitsForExpectedReply(t *testing.T) {
	testlog.Start(t)
	svc, _ := newConnected(t, peertest.Options{
		Reply: func(in envelope.Envelope) []envelope.Envelope {
			noise, _ := envelope.New("status.update", nil)
			out, _ := envelope.New("chat.response", map[string]string{"text": "pong"})
			return []envelope.Envelope{noise, out}
		},
	})

	env, err := envelope.New("chat.message", map[string]string{"text": "ping"})
	require.NoError(t, err)
	msg, err := svc.Request(context.Background(), env, "chat.response", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "chat.response", msg.Type)
	assert.JSONEq(t, `{"text":"pong"}`, string(msg.Payload))
}

func TestRequest_TimesOut(t *testing.T) {
	testlog.Start(t)
	svc, _ := newConnected(t, peertest.Options{})

	env, err := envelope.New("chat.message", nil)
	require.NoError(t, err)
	_, err = svc.Request(context.Background(), env, "chat.response", 30*time.Millisecond)
	require.ErrorIs(t, err, connection.ErrReplyTimeout)
}

func TestRequest_FireAndForget(t *testing.T) {
	testlog.Start(t)
	svc, peers := newConnected(t, peertest.Options{})
	peer := <-peers

	env, err := envelope.New("usage.report", map[string]int{"n": 1})
	require.NoError(t, err)
	_, err = svc.Request(context.Background(), env, "", 0)
	require.NoError(t, err)

	select {
	case got := <-peer.Received():
		assert.Equal(t, "usage.report", got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("server received nothing")
	}
}

func TestListen_DeliversUntilCancelled(t *testing.T) {
	testlog.Start(t)
	svc, peers := newConnected(t, peertest.Options{})
	peer := <-peers

	got := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Listen(ctx, "", func(msg envelope.Message) { got <- msg.Type }, nil)
	}()

	require.Eventually(t, func() bool {
		env, _ := envelope.New("news.item", nil)
		_ = peer.Send(env)
		select {
		case typ := <-got:
			return typ == "news.item"
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Listen did not return")
	}
}
