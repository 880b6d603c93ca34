// Package session runs the protocol engine of a device: it joins LAOs over
// one server connection, feeds every message of a LAO through its state
// machine and publishes the local device's messages.
//
// # Workers
//
// Each joined LAO has a single worker goroutine. Broadcasts, catchup
// answers, snapshot replays and local publishes of that LAO are queued to
// it and handled one at a time, in arrival order. Different LAOs run in
// parallel.
//
// A message goes through, in order: the duplicate filter, envelope
// verification, the state machine, the ledger, and the pending resolver.
// A message waiting on an id not seen yet is parked in the resolver and
// replayed once that id is produced.
//
// # Readers
//
// State returns the last snapshot of a LAO and Watch streams new ones. The
// repository itself is only touched by the worker.
//
// # Errors
//
// Rejected inbound messages are logged and counted, never returned. A
// local Publish returns the rejection of its own message.
package session
