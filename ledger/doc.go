// Package ledger keeps the log of messages accepted for a LAO.
//
// # Core Components
//
// Ledger: an append-only log of accepted messages with hash chaining for
// tamper detection, indexed by message id.
//
// Block: one accepted message together with the channel it was received on
// and its link to the previous block.
//
// # Security Properties
//
// The ledger provides:
//   - Immutability: once recorded, the signed part of a block cannot change
//   - Verifiability: Verify re-checks every envelope and the hash chain
//   - Auditability: the complete history of accepted messages, in order
//
// Witness signatures may be attached to a recorded message after the fact;
// they are not part of the block hash, which covers the message id only.
//
// # Usage
//
// The session layer appends a message once the domain accepted it and uses
// Records to build snapshots.
package ledger
