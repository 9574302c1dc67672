package session

import (
	"context"
	"sync"

	"enclavelink/internal/domain"
)

// outFrame is one queued write. A frame with a non-nil flushed channel and no
// data is a marker closed once everything queued before it has been written.
type outFrame struct {
	data    []byte
	flushed chan struct{}
}

// frameWriter serializes writes to one connection. push never blocks: frames
// go onto an unbounded queue that a single goroutine drains in order.
type frameWriter struct {
	conn  domain.Conn
	onErr func(error)

	mu     sync.Mutex
	queue  []outFrame
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func newFrameWriter(conn domain.Conn, onErr func(error)) *frameWriter {
	ctx, cancel := context.WithCancel(context.Background())
	w := &frameWriter{
		conn:   conn,
		onErr:  onErr,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	go w.run()
	return w
}

// push queues frame and reports whether the writer is still running.
func (w *frameWriter) push(frame []byte) bool {
	return w.enqueue(outFrame{data: frame})
}

// flush waits until every frame queued so far has been written.
func (w *frameWriter) flush(ctx context.Context) error {
	marker := outFrame{flushed: make(chan struct{})}
	if !w.enqueue(marker) {
		return ErrDisconnected
	}
	select {
	case <-marker.flushed:
		return nil
	case <-w.ctx.Done():
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *frameWriter) enqueue(f outFrame) bool {
	w.mu.Lock()
	if w.ctx.Err() != nil {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, f)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// stop discards queued frames and ends the writer goroutine. It does not wait.
func (w *frameWriter) stop() {
	w.mu.Lock()
	w.queue = nil
	w.mu.Unlock()
	w.cancel()
}

func (w *frameWriter) run() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.wake:
		}

		for {
			w.mu.Lock()
			if len(w.queue) == 0 || w.ctx.Err() != nil {
				w.mu.Unlock()
				break
			}
			frame := w.queue[0]
			w.queue[0] = outFrame{}
			w.queue = w.queue[1:]
			w.mu.Unlock()

			if frame.flushed != nil {
				close(frame.flushed)
				continue
			}
			if err := w.conn.WriteMessage(w.ctx, frame.data); err != nil {
				if w.ctx.Err() == nil && w.onErr != nil {
					w.onErr(err)
				}
				return
			}
		}
	}
}
