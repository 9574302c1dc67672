// Package envelope implements the wire format shared by every frame.
//
// A frame is one JSON object {id, type, timestamp, payload}. Before the key
// exchange completes frames travel in the clear; afterwards every application
// envelope is serialized, sealed under the session key and carried as the
// payload {iv, ciphertext} of an outer envelope whose type is "encrypted".
// Seal and Open convert between the two forms.
//
// # Typed payloads
//
// Registry maps type tags to payload shapes. Decode unmarshals a registered
// payload and runs its Validate method, so a frame whose body does not match
// its tag is rejected with ErrMalformedFrame instead of reaching a handler.
// Unregistered tags pass through with a nil Body and the raw JSON payload.
package envelope
