// Package transport provides the connections the session runs over.
//
// WebSocketDialer speaks ws:// and wss:// through gorilla/websocket, one
// envelope per text message. Pipe and PipeDialer connect two in-process
// endpoints and exist for tests.
package transport
