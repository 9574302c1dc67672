package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enclavelink/internal/app"
	"enclavelink/internal/domain"
	"enclavelink/internal/testutil/testlog"
	"enclavelink/internal/transport"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, app.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	testlog.Start(t)
	t.Setenv(app.EnvURL, "")
	home := t.TempDir()

	cfg, err := app.LoadConfig(home, "")
	require.NoError(t, err)
	assert.Equal(t, home, cfg.Home)
	assert.Equal(t, app.DefaultURL, cfg.URL)
	assert.Equal(t, 10, cfg.Session.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Session.Backoff.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Session.HandshakeTimeout)
	assert.Equal(t, "1.0.0", cfg.Session.ProtocolVersion)
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	testlog.Start(t)
	t.Setenv(app.EnvURL, "")
	home := t.TempDir()
	writeConfig(t, home, `
url = "wss://enclave.example/ws"
protocol_version = "1.1.0"
handshake_timeout = "3s"
connect_timeout = "2s"
write_timeout = "4s"
max_reconnect_attempts = 0
reconnect_base_delay = "250ms"
reconnect_max_delay = "30s"

[tls]
ca_file = "/etc/enclave/ca.pem"
server_name = "enclave.internal"
insecure_skip_verify = true
`)

	cfg, err := app.LoadConfig(home, "")
	require.NoError(t, err)
	assert.Equal(t, domain.Address("wss://enclave.example/ws"), cfg.URL)
	assert.Equal(t, "1.1.0", cfg.Session.ProtocolVersion)
	assert.Equal(t, 3*time.Second, cfg.Session.HandshakeTimeout)
	assert.Equal(t, 0, cfg.Session.MaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.Backoff.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Session.Backoff.MaxDelay)
	assert.Equal(t, 2*time.Second, cfg.Transport.ConnectTimeout)
	assert.Equal(t, 4*time.Second, cfg.Transport.WriteTimeout)
	assert.Equal(t, transport.TLSConfig{
		CAFile:             "/etc/enclave/ca.pem",
		ServerName:         "enclave.internal",
		InsecureSkipVerify: true,
	}, cfg.Transport.TLS)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	t.Setenv(app.EnvURL, "")
	home := t.TempDir()
	writeConfig(t, home, `handshake_timeout = "1s"`)

	cfg, err := app.LoadConfig(home, "")
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Session.HandshakeTimeout)
	assert.Equal(t, 10, cfg.Session.MaxReconnectAttempts)
	assert.Equal(t, app.DefaultURL, cfg.URL)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	testlog.Start(t)
	home := t.TempDir()
	writeConfig(t, home, `url = "ws://from-file/ws"`)
	t.Setenv(app.EnvURL, "ws://from-env/ws")

	cfg, err := app.LoadConfig(home, "")
	require.NoError(t, err)
	assert.Equal(t, domain.Address("ws://from-env/ws"), cfg.URL)
}

func TestLoadConfig_Errors(t *testing.T) {
	testlog.Start(t)
	t.Setenv(app.EnvURL, "")
	home := t.TempDir()

	_, err := app.LoadConfig(home, filepath.Join(home, "missing.toml"))
	require.Error(t, err)

	writeConfig(t, home, `handshake_timeout = "soon"`)
	_, err = app.LoadConfig(home, "")
	require.ErrorContains(t, err, "handshake_timeout")

	writeConfig(t, home, `url = [`)
	_, err = app.LoadConfig(home, "")
	require.Error(t, err)
}

func TestNewWire(t *testing.T) {
	testlog.Start(t)
	t.Setenv(app.EnvURL, "")
	home := t.TempDir()
	cfg, err := app.LoadConfig(home, "")
	require.NoError(t, err)

	w, err := app.NewWire(cfg, transport.NewPipeDialer())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Connection.SetAddress("ws://saved/ws"))
	addr, ok, err := w.Settings.LoadAddress()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.Address("ws://saved/ws"), addr)

	w2, err := app.NewWire(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &transport.WebSocketDialer{}, w2.Dialer)
	require.NoError(t, w2.Close())
}
