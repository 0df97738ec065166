// Package awake implements the AWAKE handshake and secure-messaging core:
// a four-step, DID-anchored key exchange that ends in a pair of symmetric
// ratchets (pkg/ratchet), wrapped in a per-peer ForeignAgent, driven by a
// Handshake state machine. Transport, the UCAN capability grammar, PIN
// rendering, and identity-key persistence are host concerns; this package
// only produces and consumes opaque byte payloads and a handful of
// well-known UCAN facts.
package awake
