package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"enclavelink/internal/domain"
	"enclavelink/internal/session"
	"enclavelink/internal/transport"
)

const (
	EnvURL  = "ENCLAVELINK_URL"
	EnvHome = "ENCLAVELINK_HOME"

	DefaultURL     domain.Address = "ws://localhost:8080/ws"
	ConfigFileName                = "config.toml"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home      string         // config directory, e.g. $HOME/.enclavelink
	URL       domain.Address // fallback server address when none is saved
	Session   session.Config
	Transport transport.Config
}

// DefaultConfig returns built-in defaults rooted at home.
func DefaultConfig(home string) Config {
	return Config{
		Home:      home,
		URL:       DefaultURL,
		Session:   session.DefaultConfig(),
		Transport: transport.DefaultConfig(),
	}
}

// DefaultHome returns $ENCLAVELINK_HOME, or ~/.enclavelink.
func DefaultHome() string {
	if h := strings.TrimSpace(os.Getenv(EnvHome)); h != "" {
		return h
	}
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".enclavelink")
	}
	return ".enclavelink"
}

type fileConfig struct {
	URL                  string              `toml:"url"`
	ProtocolVersion      string              `toml:"protocol_version"`
	HandshakeTimeout     string              `toml:"handshake_timeout"`
	ConnectTimeout       string              `toml:"connect_timeout"`
	WriteTimeout         string              `toml:"write_timeout"`
	MaxReconnectAttempts int                 `toml:"max_reconnect_attempts"`
	ReconnectBaseDelay   string              `toml:"reconnect_base_delay"`
	ReconnectMaxDelay    string              `toml:"reconnect_max_delay"`
	TLS                  transport.TLSConfig `toml:"tls"`
}

// LoadConfig builds the configuration for home. Defaults are overlaid by the
// TOML file at path, then by the environment. A missing file is not an error
// unless path was given explicitly.
func LoadConfig(home, path string) (Config, error) {
	cfg := DefaultConfig(home)

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = filepath.Join(home, ConfigFileName)
	}
	if err := overlayFile(&cfg, path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if u := strings.TrimSpace(os.Getenv(EnvURL)); u != "" {
		cfg.URL = domain.Address(u)
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("url") {
		cfg.URL = domain.Address(strings.TrimSpace(raw.URL))
	}
	if meta.IsDefined("protocol_version") {
		cfg.Session.ProtocolVersion = strings.TrimSpace(raw.ProtocolVersion)
	}
	if meta.IsDefined("max_reconnect_attempts") {
		cfg.Session.MaxReconnectAttempts = raw.MaxReconnectAttempts
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"reconnect_base_delay", raw.ReconnectBaseDelay, &cfg.Session.Backoff.BaseDelay},
		{"reconnect_max_delay", raw.ReconnectMaxDelay, &cfg.Session.Backoff.MaxDelay},
		{"connect_timeout", raw.ConnectTimeout, &cfg.Transport.ConnectTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Transport.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("tls", "ca_file") {
		cfg.Transport.TLS.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if meta.IsDefined("tls", "server_name") {
		cfg.Transport.TLS.ServerName = strings.TrimSpace(raw.TLS.ServerName)
	}
	if meta.IsDefined("tls", "insecure_skip_verify") {
		cfg.Transport.TLS.InsecureSkipVerify = raw.TLS.InsecureSkipVerify
	}
	return nil
}
