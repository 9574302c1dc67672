package types

import "strings"

// Address is the endpoint of the message server, a ws:// or wss:// URL.
type Address string

// String returns the string form of the address.
func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty or blank.
func (a Address) IsZero() bool { return strings.TrimSpace(string(a)) == "" }
