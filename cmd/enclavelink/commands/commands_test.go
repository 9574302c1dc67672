package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enclavelink/internal/app"
	"enclavelink/internal/protocol/envelope"
	"enclavelink/internal/testutil/peertest"
	"enclavelink/internal/testutil/testlog"
	"enclavelink/internal/transport"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func withPipeServer(t *testing.T, opts peertest.Options) {
	t.Helper()
	d := transport.NewPipeDialer()
	ctx, cancel := context.WithCancel(context.Background())
	peertest.ServeAll(ctx, d, opts)
	dialer = d
	t.Cleanup(func() {
		dialer = nil
		cancel()
	})
}

func TestURLCommand(t *testing.T) {
	testlog.Start(t)
	t.Setenv(app.EnvURL, "")
	home := t.TempDir()

	out, err := run(t, "--home", home, "url")
	require.NoError(t, err)
	assert.Equal(t, string(app.DefaultURL), strings.TrimSpace(out))

	_, err = run(t, "--home", home, "url", "set", "wss://enclave.example/ws")
	require.NoError(t, err)
	out, err = run(t, "--home", home, "url")
	require.NoError(t, err)
	assert.Equal(t, "wss://enclave.example/ws", strings.TrimSpace(out))

	out, err = run(t, "--home", home, "--url", "ws://flag/ws", "url")
	require.NoError(t, err)
	assert.Equal(t, "ws://flag/ws", strings.TrimSpace(out))

	_, err = run(t, "--home", home, "url", "set", "ftp://nope")
	require.ErrorIs(t, err, transport.ErrUnsupportedScheme)
}

func TestConnectCommand(t *testing.T) {
	testlog.Start(t)
	withPipeServer(t, peertest.Options{})

	out, err := run(t, "--home", t.TempDir(), "--url", "ws://enclave.test/ws", "connect")
	require.NoError(t, err)
	assert.Contains(t, out, "state: encrypted")
	assert.Contains(t, out, "Fingerprint: ")
	assert.Equal(t, 1, strings.Count(out, "state: disconnected"))
	assert.Greater(t, strings.Index(out, "state: disconnected"), strings.Index(out, "state: encrypted"))
}

func TestSendCommandWithExpect(t *testing.T) {
	testlog.Start(t)
	withPipeServer(t, peertest.Options{
		Reply: func(in envelope.Envelope) []envelope.Envelope {
			out, _ := envelope.New("chat.response", map[string]string{"echo": in.Type})
			return []envelope.Envelope{out}
		},
	})

	out, err := run(t, "--home", t.TempDir(), "--url", "ws://enclave.test/ws",
		"send", "chat.message", `{"text":"hi"}`, "--expect", "chat.response", "--wait", "2s")
	require.NoError(t, err)

	var env envelope.Envelope
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &env))
	assert.Equal(t, "chat.response", env.Type)
	assert.JSONEq(t, `{"echo":"chat.message"}`, string(env.Payload))
}

func TestSendCommandRejectsBadPayload(t *testing.T) {
	testlog.Start(t)
	withPipeServer(t, peertest.Options{})

	_, err := run(t, "--home", t.TempDir(), "--url", "ws://enclave.test/ws", "send", "chat.message", `{oops`)
	require.ErrorContains(t, err, "not valid json")
}
