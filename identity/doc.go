// Package identity provides the byte containers and the deterministic hash
// every other layer uses to name things.
//
// # Core Types
//
// Base64URLData: immutable byte buffer whose canonical text form is padded
// base64url. PublicKey, Signature and MessageID are distinct named types
// over the same representation, so a signature can never be passed where a
// key is expected.
//
// # Hashing
//
// Hash renders its parts as a JSON-like string array, quotes and
// backslashes escaped, and returns the base64url SHA-256 of the UTF-8
// bytes. Every content id in the protocol (LAO, roll call, election,
// question, vote, consensus instance) is derived this way.
//
// HashMessageID is the one exception: the message id is the SHA-256 of the
// base64url data literally concatenated with the base64url signature.
//
// # Equality
//
// Equality is always byte equality on the decoded buffer. Two strings that
// differ only by padding decode to the same value and compare equal.
package identity
