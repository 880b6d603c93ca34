// Package messagedata is the catalogue of payloads carried in the data field
// of a MessageGeneral.
//
// Every payload is a Data variant identified by its (object, action) pair.
// Decode reads the pair first and then unmarshals into the matching variant
// through a fixed table. Pairs missing from the table decode to *Unknown so
// that newer message kinds are forwarded instead of failing to parse; the
// domain layer rejects them as unsupported.
//
// Variants whose ids are derived from their own fields implement Verifier:
// Verify recomputes the id for the LAO the message was published in and
// checks structural constraints (non-empty names, time ordering). The id
// derivations are exported (LaoID, RollCallID, ElectionVoteID, ...) so that
// constructors and the domain layer agree on a single definition.
package messagedata
