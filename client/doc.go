// Package client issues JSON-RPC requests over a frame transport and
// correlates the answers.
//
// Every request gets a fresh integer id. Ids are never reused while the
// client lives, so an answer arriving after its caller gave up cannot be
// mistaken for another request's answer; such late answers are logged and
// dropped. Broadcasts pushed by the server are fanned into a single
// channel, in arrival order.
//
// Closing the client fails every outstanding request with ErrCancelled.
package client
