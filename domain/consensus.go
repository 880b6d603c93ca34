package domain

import (
	"errors"

	"github.com/luca-patrignani/popcore/consensus"
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
)

func (sm *StateMachine) elect(env Envelope, d *messagedata.Elect) (Outcome, error) {
	inst := consensus.NewInstance(d, env.MessageID(), env.Sender(), sm.repo.lao.Witnesses)
	sm.repo.book.Add(inst)
	sm.repo.schedule(kindConsensus, d.CreatedAt, env.MessageID().Data())
	return Outcome{Produced: []identity.Base64URLData{d.InstanceID}}, nil
}

func (sm *StateMachine) lookupInstance(instanceID identity.Base64URLData, proposalID identity.MessageID) (*consensus.Instance, error) {
	inst, err := sm.repo.book.Lookup(instanceID, proposalID)
	switch {
	case errors.Is(err, consensus.ErrUnknownProposal):
		return nil, &UnknownEntityError{Kind: kindConsensus, ID: proposalID.Data()}
	case err != nil:
		return nil, &InvalidDataError{Err: err}
	}
	return inst, nil
}

func (sm *StateMachine) electAccept(env Envelope, d *messagedata.ElectAccept) (Outcome, error) {
	inst, err := sm.lookupInstance(d.InstanceID, d.MessageID)
	if err != nil {
		return Outcome{}, err
	}
	decided, err := inst.Vote(env.Sender(), d.Accept, env.MessageID())
	if err != nil {
		return Outcome{}, &AccessDeniedError{Sender: env.Sender(), Reason: err.Error()}
	}

	var out Outcome
	if decided && len(sm.self) > 0 && inst.Proposer.Equal(sm.self) {
		cert := inst.Certificate()
		out.Learn = &messagedata.Learn{
			InstanceID: cert.InstanceID,
			MessageID:  cert.ProposalID,
			CreatedAt:  sm.now().Unix(),
			Acceptors:  cert.Acceptors,
		}
	}
	return out, nil
}

func (sm *StateMachine) learn(env Envelope, d *messagedata.Learn) (Outcome, error) {
	inst, err := sm.lookupInstance(d.InstanceID, d.MessageID)
	if err != nil {
		return Outcome{}, err
	}
	if !env.Sender().Equal(inst.Proposer) {
		return Outcome{}, &AccessDeniedError{Sender: env.Sender(), Reason: "consensus#learn must be sent by the proposer"}
	}
	if inst.Learned() {
		return Outcome{}, &DuplicateResourceError{Kind: "consensus learn", ID: d.MessageID.Data()}
	}
	for _, a := range d.Acceptors {
		if !inst.IsAcceptor(a) {
			return Outcome{}, invalidData("learn lists %s which is not an acceptor", a)
		}
	}
	inst.Learn()
	return Outcome{}, nil
}
