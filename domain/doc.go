// Package domain implements the LAO state machines: the LAO itself, roll
// calls, meetings, elections, consensus instances and chirps.
//
// # Core Types
//
// StateMachine: the handlers of one LAO. It receives verified envelopes in
// arrival order and either commits them to its Repository or rejects them
// with one of the typed errors of this package.
//
// Repository: the entities of one LAO, read by other goroutines only
// through Snapshot.
//
// Envelope: a verified message together with its decoded payload and the
// channel it was received on. Open builds one from the wire form.
//
// # Transitions
//
// A committed message produces ids: the entity or update id it defines and
// its own message id. A message referring to an id that was never produced
// fails with UnknownEntityError, which callers buffer until that id is
// produced. A reference to an id that was produced but is no longer the
// latest one fails with StaleReferenceError and is dropped.
//
// Roll calls chain their transitions: CREATED -> OPENED -> CLOSED -> OPENED
// and so on, each transition naming the update id of the previous one.
//
// Elections go CREATED -> OPENED -> CLOSED -> RESULTS_READY. The last vote
// of a sender for a question wins, in arrival order.
package domain
