// Package storage persists the accepted messages of a LAO so a session can
// be rebuilt without a full catchup.
//
// A Snapshot holds the raw signed messages, not derived state: loading one
// replays every message through verification and the state machines.
// Snapshots are encoded with msgpack.
package storage
