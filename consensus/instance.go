package consensus

import (
	"fmt"
	"sort"

	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
)

// Instance collects the answers to one elect message.
type Instance struct {
	ID         identity.Base64URLData
	Key        messagedata.ConsensusKey
	Value      string
	CreatedAt  int64
	Proposer   identity.PublicKey
	ProposalID identity.MessageID

	acceptors map[string]identity.PublicKey
	votes     map[string]Vote
	quorum    int
	accepted  bool
	learned   bool
}

// NewInstance opens an instance for the elect message proposalID sent by
// proposer. acceptors is copied.
func NewInstance(elect *messagedata.Elect, proposalID identity.MessageID, proposer identity.PublicKey, acceptors []identity.PublicKey) *Instance {
	set := make(map[string]identity.PublicKey, len(acceptors))
	for _, a := range acceptors {
		set[a.String()] = a
	}
	return &Instance{
		ID:         elect.InstanceID,
		Key:        elect.Key,
		Value:      elect.Value,
		CreatedAt:  elect.CreatedAt,
		Proposer:   proposer,
		ProposalID: proposalID,
		acceptors:  set,
		votes:      map[string]Vote{},
		quorum:     computeQuorum(len(set)),
	}
}

// Vote records the answer of acceptor, replacing any previous answer of the
// same acceptor. It reports whether this answer made the instance accepted.
// Once accepted, an instance stays accepted.
func (i *Instance) Vote(acceptor identity.PublicKey, accept bool, messageID identity.MessageID) (bool, error) {
	if _, ok := i.acceptors[acceptor.String()]; !ok {
		return false, fmt.Errorf("%w: %s", ErrNotAcceptor, acceptor)
	}
	value := VoteReject
	if accept {
		value = VoteAccept
	}
	i.votes[acceptor.String()] = Vote{Acceptor: acceptor, Value: value, MessageID: messageID}
	return i.checkAccepted(), nil
}

func (i *Instance) checkAccepted() bool {
	if i.accepted {
		return false
	}
	if len(i.acceptors) > 0 && i.Accepts() >= i.quorum {
		i.accepted = true
		return true
	}
	return false
}

// Learn marks the instance as decided by a learn message.
func (i *Instance) Learn() {
	i.accepted = true
	i.learned = true
}

func (i *Instance) Accepts() int { return len(collectVotes(i.votes, VoteAccept)) }

func (i *Instance) Rejects() int { return len(collectVotes(i.votes, VoteReject)) }

func (i *Instance) Accepted() bool { return i.accepted }

func (i *Instance) Learned() bool { return i.learned }

func (i *Instance) Quorum() int { return i.quorum }

// IsAcceptor reports whether key may answer this instance.
func (i *Instance) IsAcceptor(key identity.PublicKey) bool {
	_, ok := i.acceptors[key.String()]
	return ok
}

// Acceptors returns the acceptor set in a stable order.
func (i *Instance) Acceptors() []identity.PublicKey {
	out := make([]identity.PublicKey, 0, len(i.acceptors))
	for _, a := range i.acceptors {
		out = append(out, a)
	}
	sortKeys(out)
	return out
}

// Votes returns the latest answer of every acceptor that answered.
func (i *Instance) Votes() []Vote {
	out := collectVotes(i.votes, "both")
	sort.Slice(out, func(a, b int) bool { return out[a].Acceptor.String() < out[b].Acceptor.String() })
	return out
}

// Certificate lists the acceptors whose latest answer is an accept.
func (i *Instance) Certificate() Certificate {
	accepted := collectVotes(i.votes, VoteAccept)
	keys := make([]identity.PublicKey, len(accepted))
	for n, v := range accepted {
		keys[n] = v.Acceptor
	}
	sortKeys(keys)
	return Certificate{InstanceID: i.ID, ProposalID: i.ProposalID, Acceptors: keys}
}

func collectVotes(m map[string]Vote, filter VoteValue) []Vote {
	out := []Vote{}
	for _, v := range m {
		if v.Value == filter || filter == "both" {
			out = append(out, v)
		}
	}
	return out
}

func sortKeys(keys []identity.PublicKey) {
	sort.Slice(keys, func(a, b int) bool { return keys[a].String() < keys[b].String() })
}

// computeQuorum returns the smallest count strictly greater than n/2.
func computeQuorum(n int) int { return n/2 + 1 }
