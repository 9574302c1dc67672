package session

import (
	"time"

	"enclavelink/internal/protocol/handshake"
)

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	BaseDelay time.Duration
	// MaxDelay caps the delay before jitter. Zero means uncapped.
	MaxDelay time.Duration
}

// Config defines session reliability defaults.
type Config struct {
	ProtocolVersion  string
	HandshakeTimeout time.Duration
	// MaxReconnectAttempts bounds automatic reconnects between two encrypted
	// sessions. Zero or less disables automatic reconnect.
	MaxReconnectAttempts int
	Backoff              BackoffConfig
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		ProtocolVersion:      handshake.DefaultProtocolVersion,
		HandshakeTimeout:     handshake.DefaultTimeout,
		MaxReconnectAttempts: 10,
		Backoff: BackoffConfig{
			BaseDelay: time.Second,
		},
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = def.ProtocolVersion
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.Backoff.BaseDelay <= 0 {
		c.Backoff.BaseDelay = def.Backoff.BaseDelay
	}
	return c
}
