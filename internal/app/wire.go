package app

import (
	"enclavelink/internal/domain"
	connectionsvc "enclavelink/internal/services/connection"
	"enclavelink/internal/session"
	"enclavelink/internal/store"
	"enclavelink/internal/transport"
)

// Wire bundles the store, session client and service for the CLI.
type Wire struct {
	Settings   domain.SettingsStore
	Dialer     domain.Dialer
	Session    *session.Client
	Connection *connectionsvc.Service
}

// NewWire constructs the dependency graph from cfg. A nil dialer selects the
// WebSocket transport.
func NewWire(cfg Config, dialer domain.Dialer) (*Wire, error) {
	// File-based settings
	settings := store.NewSettingsFileStore(cfg.Home)

	if dialer == nil {
		dialer = transport.NewWebSocketDialer(cfg.Transport)
	}

	client := session.New(cfg.Session, dialer)
	svc := connectionsvc.New(settings, client, cfg.URL)

	return &Wire{
		Settings:   settings,
		Dialer:     dialer,
		Session:    client,
		Connection: svc,
	}, nil
}

// Close tears down the session.
func (w *Wire) Close() error { return w.Session.Close() }
