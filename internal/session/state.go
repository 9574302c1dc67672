package session

// State is the lifecycle position of a Client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateHandshaking  State = "handshaking"
	StateEncrypted    State = "encrypted"
	StateError        State = "error"
)

func (s State) String() string { return string(s) }
