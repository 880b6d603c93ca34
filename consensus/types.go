package consensus

import (
	"errors"

	"github.com/luca-patrignani/popcore/identity"
)

var (
	// ErrNotAcceptor is returned when an answer comes from a key outside the
	// acceptor set of the instance.
	ErrNotAcceptor = errors.New("sender is not an acceptor")

	// ErrInstanceMismatch is returned when an answer names an instance id that
	// differs from the one of the referenced elect message.
	ErrInstanceMismatch = errors.New("instance id does not match the proposal")

	// ErrUnknownProposal is returned when no elect message with the given id
	// was recorded.
	ErrUnknownProposal = errors.New("unknown proposal")
)

type VoteValue string

const (
	VoteAccept VoteValue = "ACCEPT"
	VoteReject VoteValue = "REJECT"
)

// Vote is the latest answer of one acceptor.
type Vote struct {
	Acceptor  identity.PublicKey `json:"acceptor"`
	Value     VoteValue          `json:"value"`
	MessageID identity.MessageID `json:"message_id"`
}

// Certificate is what a learn message carries: the proposal and the
// acceptors that accepted it.
type Certificate struct {
	InstanceID identity.Base64URLData `json:"instance_id"`
	ProposalID identity.MessageID     `json:"proposal_id"`
	Acceptors  []identity.PublicKey   `json:"acceptors"`
}
