package session

import (
	"sync"

	"enclavelink/internal/protocol/envelope"
)

// Wildcard subscribes a handler to every message type.
const Wildcard = "*"

// Handler receives one inbound message.
type Handler func(msg envelope.Message)

// StateHandler receives every state transition.
type StateHandler func(state State)

// Token cancels a subscription. Cancel may be called more than once.
type Token struct {
	cancel func()
}

func (t Token) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

type handlerEntry struct {
	id uint64
	fn Handler
}

type stateEntry struct {
	id uint64
	fn StateHandler
}

// handlerRegistry keeps subscriptions in registration order.
type handlerRegistry struct {
	mu     sync.Mutex
	nextID uint64
	byType map[string][]handlerEntry
	states []stateEntry
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{byType: make(map[string][]handlerEntry)}
}

func (r *handlerRegistry) add(typ string, fn Handler) Token {
	if fn == nil {
		return Token{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.byType[typ] = append(r.byType[typ], handlerEntry{id: id, fn: fn})
	return Token{cancel: func() { r.remove(typ, id) }}
}

func (r *handlerRegistry) remove(typ string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byType[typ]
	for i, e := range list {
		if e.id == id {
			r.byType[typ] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.byType[typ]) == 0 {
		delete(r.byType, typ)
	}
}

func (r *handlerRegistry) addState(fn StateHandler) Token {
	if fn == nil {
		return Token{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.states = append(r.states, stateEntry{id: id, fn: fn})
	return Token{cancel: func() { r.removeState(id) }}
}

func (r *handlerRegistry) removeState(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.states {
		if e.id == id {
			r.states = append(r.states[:i:i], r.states[i+1:]...)
			return
		}
	}
}

// forType returns the handlers for typ followed by the wildcard handlers.
func (r *handlerRegistry) forType(typ string) []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	exact := r.byType[typ]
	var wild []handlerEntry
	if typ != Wildcard {
		wild = r.byType[Wildcard]
	}
	out := make([]Handler, 0, len(exact)+len(wild))
	for _, e := range exact {
		out = append(out, e.fn)
	}
	for _, e := range wild {
		out = append(out, e.fn)
	}
	return out
}

func (r *handlerRegistry) stateHandlers() []StateHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StateHandler, 0, len(r.states))
	for _, e := range r.states {
		out = append(out, e.fn)
	}
	return out
}
