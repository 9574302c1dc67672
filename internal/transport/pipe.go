package transport

import (
	"context"
	"sync"

	"enclavelink/internal/domain"
)

const pipeBuffer = 64

// PipeConn is one end of an in-memory connection created by Pipe. Closing
// either end closes both.
type PipeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   *sync.Once
}

var _ domain.Conn = (*PipeConn)(nil)

// Pipe returns two connected endpoints.
func Pipe() (*PipeConn, *PipeConn) {
	a := make(chan []byte, pipeBuffer)
	b := make(chan []byte, pipeBuffer)
	closed := make(chan struct{})
	once := new(sync.Once)
	return &PipeConn{in: a, out: b, closed: closed, once: once},
		&PipeConn{in: b, out: a, closed: closed, once: once}
}

// ReadMessage returns frames written before a close ahead of ErrClosed.
func (p *PipeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	default:
	}
	select {
	case data := <-p.in:
		return data, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PipeConn) WriteMessage(ctx context.Context, data []byte) error {
	buf := append([]byte(nil), data...)
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case p.out <- buf:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// Done is closed once either end has been closed.
func (p *PipeConn) Done() <-chan struct{} { return p.closed }

// PipeDialer hands out in-memory connections. The server end of every dial is
// delivered on Accepted.
type PipeDialer struct {
	mu       sync.Mutex
	fail     error
	dials    int
	accepted chan *PipeConn
}

var _ domain.Dialer = (*PipeDialer)(nil)

func NewPipeDialer() *PipeDialer {
	return &PipeDialer{accepted: make(chan *PipeConn, pipeBuffer)}
}

// Dial returns the client end of a new pipe, or the configured failure.
func (d *PipeDialer) Dial(ctx context.Context, _ domain.Address) (domain.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dials++
	fail := d.fail
	d.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	client, server := Pipe()
	select {
	case d.accepted <- server:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return client, nil
}

// Accepted delivers the server end of each successful dial.
func (d *PipeDialer) Accepted() <-chan *PipeConn { return d.accepted }

// FailWith makes every following Dial return err. A nil err restores dialing.
func (d *PipeDialer) FailWith(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

// Dials reports how many times Dial has been called.
func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
