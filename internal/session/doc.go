// Package session keeps an end-to-end encrypted session to the message server.
//
// A Client moves through the states
//
//	disconnected -> connecting -> handshaking -> encrypted
//
// and to error when a dial or key exchange fails. Every connection gets its
// own reader and writer goroutine. Messages sent before the session is
// encrypted wait in an outbound queue that is flushed, in order and exactly
// once, right after handshake.complete has been handed to the writer.
//
// # Reconnect
//
// Any closure that Disconnect did not cause schedules one reconnect after
// NextReconnectDelay, up to Config.MaxReconnectAttempts in a row. Reaching the
// encrypted state resets the count. Disconnect suppresses reconnects until the
// next Connect.
//
// # Inbound frames
//
// A frame that fails to decode or authenticate is dropped and logged at debug
// level. Dropped frames never change the state.
package session
