package session

import "errors"

var (
	ErrTransportFailure = errors.New("session: transport failure")
	ErrDisconnected     = errors.New("session: disconnected")
	ErrClosed           = errors.New("session: client closed")
	ErrNoAddress        = errors.New("session: no address to connect to")
	ErrInvalidEnvelope  = errors.New("session: invalid outbound envelope")
)
