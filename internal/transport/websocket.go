package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"enclavelink/internal/domain"
	"enclavelink/internal/logging"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	// DefaultReadLimit matches the largest frame the envelope codec accepts.
	DefaultReadLimit = 8 * 1024 * 1024
)

var (
	ErrUnsupportedScheme = errors.New("transport: address must use ws:// or wss://")
	ErrClosed            = errors.New("transport: connection closed")
)

// Config holds the WebSocket dial settings.
type Config struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	TLS            TLSConfig
}

// DefaultConfig returns the dial settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: DefaultConnectTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		ReadLimit:      DefaultReadLimit,
	}
}

// WebSocketDialer dials the message server over WebSocket.
type WebSocketDialer struct {
	cfg Config
	log zerolog.Logger
}

var _ domain.Dialer = (*WebSocketDialer)(nil)

func NewWebSocketDialer(cfg Config) *WebSocketDialer {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	return &WebSocketDialer{cfg: cfg, log: logging.For("transport")}
}

// Dial opens a WebSocket connection to addr.
func (d *WebSocketDialer) Dial(ctx context.Context, addr domain.Address) (domain.Conn, error) {
	u, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	ws := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.cfg.ConnectTimeout,
	}
	if u.Scheme == "wss" {
		tlsCfg, err := d.cfg.TLS.clientConfig(u)
		if err != nil {
			return nil, err
		}
		ws.TLSClientConfig = tlsCfg
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()
	conn, resp, err := ws.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %s)", u.Redacted(), err, resp.Status)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", u.Redacted(), err)
	}
	conn.SetReadLimit(d.cfg.ReadLimit)
	d.log.Debug().Str("addr", u.Redacted()).Msg("connected")
	return &wsConn{ws: conn, writeTimeout: d.cfg.WriteTimeout}, nil
}

// ParseAddress checks that addr is an absolute ws:// or wss:// URL.
func ParseAddress(addr domain.Address) (*url.URL, error) {
	raw := strings.TrimSpace(addr.String())
	if raw == "" {
		return nil, fmt.Errorf("transport: empty address")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("transport: parse address: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("transport: address %q has no host", raw)
	}
	return u, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return nil, fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return nil, fmt.Errorf("transport: read: %w", err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteMessage(ctx context.Context, data []byte) error {
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
