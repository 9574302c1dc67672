// Package handshake implements the client side of the session key exchange.
//
// # Flow
//
//  1. Generate an ephemeral P-256 key pair (NewInitiator).
//  2. Send handshake.init {clientPublicKey, protocolVersion} in the clear.
//  3. Wait, bounded by a timeout, for handshake.response {serverPublicKey,
//     attestation?} (AwaitResponse).
//  4. Import the server key, derive the AES-GCM session key and build
//     handshake.complete {status: "ok"} (Complete). The caller sends that
//     message sealed under the new key, which proves to the server that both
//     sides derived the same secret.
//
// Run chains the steps. Any failure aborts the attempt; retrying is the
// session's concern.
//
// # Attestation
//
// The server may attach an attestation artifact to its response. It is
// surfaced on Result unchanged; this package does not verify it.
package handshake
