package types

// Settings is the client state persisted between runs.
type Settings struct {
	Address Address `json:"url,omitempty"`
}
