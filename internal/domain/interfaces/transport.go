package interfaces

import (
	"context"

	domaintypes "enclavelink/internal/domain/types"
)

// Conn is one established, message-oriented connection. ReadMessage and
// WriteMessage may be called concurrently with each other but neither may be
// called concurrently with itself. Close unblocks pending reads.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens connections to the message server.
type Dialer interface {
	Dial(ctx context.Context, addr domaintypes.Address) (Conn, error)
}
