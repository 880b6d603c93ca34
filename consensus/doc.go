// Package consensus tracks elect/accept/learn instances.
//
// An instance is opened by a consensus#elect message proposing a value for a
// property of some entity (for example the state of an election). The
// acceptors are the LAO witnesses known when the proposal arrives; each
// acceptor answers with consensus#elect_accept and only its latest answer
// counts. The instance is accepted once strictly more than half of the
// acceptors accepted it, at which point the proposer announces the outcome
// with consensus#learn.
//
// # Core Components
//
// Instance: the votes collected for one elect message and the majority rule.
//
// Book: all instances of a LAO, indexed by elect message id and by instance
// id.
package consensus
