package consensus

import (
	"fmt"

	"github.com/luca-patrignani/popcore/identity"
)

// Book holds the instances of one LAO. It is not safe for concurrent use;
// the owner serializes access.
type Book struct {
	byProposal map[string]*Instance
	byInstance map[string][]*Instance
}

func NewBook() *Book {
	return &Book{
		byProposal: map[string]*Instance{},
		byInstance: map[string][]*Instance{},
	}
}

// Add records a new instance. Adding the same proposal twice is a no-op.
func (b *Book) Add(inst *Instance) {
	key := inst.ProposalID.String()
	if _, ok := b.byProposal[key]; ok {
		return
	}
	b.byProposal[key] = inst
	b.byInstance[inst.ID.String()] = append(b.byInstance[inst.ID.String()], inst)
}

// Proposal returns the instance opened by the elect message id.
func (b *Book) Proposal(id identity.MessageID) (*Instance, bool) {
	inst, ok := b.byProposal[id.String()]
	return inst, ok
}

// Instances returns every proposal made for an instance id, in arrival
// order.
func (b *Book) Instances(id identity.Base64URLData) []*Instance {
	return append([]*Instance{}, b.byInstance[id.String()]...)
}

// Lookup resolves the proposal referenced by an elect_accept or learn
// message and checks that it belongs to instanceID.
func (b *Book) Lookup(instanceID identity.Base64URLData, proposalID identity.MessageID) (*Instance, error) {
	inst, ok := b.Proposal(proposalID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProposal, proposalID)
	}
	if !inst.ID.Equal(instanceID) {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInstanceMismatch, inst.ID, instanceID)
	}
	return inst, nil
}

func (b *Book) Len() int { return len(b.byProposal) }
