package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enclavelink/internal/protocol/envelope"
	"enclavelink/internal/testutil/testlog"
)

func TestHandlerRegistryOrder(t *testing.T) {
	testlog.Start(t)
	r := newHandlerRegistry()
	var calls []string
	record := func(name string) Handler {
		return func(envelope.Message) { calls = append(calls, name) }
	}
	r.add(Wildcard, record("wild"))
	r.add("chat.response", record("first"))
	r.add("chat.response", record("second"))
	r.add("other", record("other"))

	for _, h := range r.forType("chat.response") {
		h(envelope.Message{})
	}
	assert.Equal(t, []string{"first", "second", "wild"}, calls)
}

func TestHandlerRegistryCancel(t *testing.T) {
	testlog.Start(t)
	r := newHandlerRegistry()
	count := 0
	tok := r.add("x", func(envelope.Message) { count++ })
	keep := r.add("x", func(envelope.Message) { count += 10 })

	tok.Cancel()
	tok.Cancel()
	for _, h := range r.forType("x") {
		h(envelope.Message{})
	}
	assert.Equal(t, 10, count)

	keep.Cancel()
	assert.Empty(t, r.forType("x"))
	Token{}.Cancel()
}

func TestHandlerRegistryWildcardTypeRunsOnce(t *testing.T) {
	testlog.Start(t)
	r := newHandlerRegistry()
	r.add(Wildcard, func(envelope.Message) {})
	require.Len(t, r.forType(Wildcard), 1)
}

func TestHandlerRegistryStates(t *testing.T) {
	testlog.Start(t)
	r := newHandlerRegistry()
	var seen []State
	tok := r.addState(func(s State) { seen = append(seen, s) })
	r.addState(nil)

	for _, h := range r.stateHandlers() {
		h(StateConnecting)
	}
	tok.Cancel()
	for _, h := range r.stateHandlers() {
		h(StateEncrypted)
	}
	assert.Equal(t, []State{StateConnecting}, seen)
}
