package domain

import (
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
)

func (sm *StateMachine) createLao(env Envelope, d *messagedata.CreateLao) (Outcome, error) {
	if sm.repo.lao != nil {
		return Outcome{}, &DuplicateResourceError{Kind: kindLao, ID: d.ID}
	}
	if !env.Sender().Equal(d.Organizer) {
		return Outcome{}, &AccessDeniedError{Sender: env.Sender(), Reason: "lao#create must be sent by its organizer"}
	}
	sm.repo.lao = &Lao{
		ID:           d.ID,
		Name:         d.Name,
		Creation:     d.Creation,
		LastModified: d.Creation,
		Organizer:    d.Organizer,
		Witnesses:    append([]identity.PublicKey{}, d.Witnesses...),
	}
	return Outcome{Produced: []identity.Base64URLData{d.ID}}, nil
}

// updateLao records a proposal; it takes effect with the lao#state that
// references it.
func (sm *StateMachine) updateLao(env Envelope, d *messagedata.UpdateLao) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	lao := sm.repo.lao
	expected := messagedata.LaoID(lao.Organizer, lao.Creation, d.Name)
	if !d.ID.Equal(expected) {
		return Outcome{}, &InvalidMessageIDError{Err: mismatch("lao update id", expected, d.ID)}
	}
	if d.LastModified < lao.Creation {
		return Outcome{}, invalidData("last_modified %d before the LAO creation %d", d.LastModified, lao.Creation)
	}
	sm.repo.proposals[env.MessageID().String()] = proposal{update: d, messageID: env.MessageID()}
	return Outcome{}, nil
}

func (sm *StateMachine) stateLao(env Envelope, d *messagedata.StateLao) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	lao := sm.repo.lao
	if !d.Organizer.Equal(lao.Organizer) || d.Creation != lao.Creation {
		return Outcome{}, invalidData("lao#state changes immutable LAO fields")
	}
	p, ok := sm.repo.proposals[d.ModificationID.String()]
	if !ok {
		if lao.ModificationID.Equal(d.ModificationID) {
			return Outcome{}, &DuplicateResourceError{Kind: "lao state", ID: d.ModificationID.Data()}
		}
		return Outcome{}, &UnknownEntityError{Kind: kindProposal, ID: d.ModificationID.Data()}
	}
	if p.update.Name != d.Name || p.update.LastModified != d.LastModified || !sameKeys(p.update.Witnesses, d.Witnesses) {
		return Outcome{}, invalidData("lao#state does not match the proposal %s", d.ModificationID)
	}
	if d.LastModified < lao.LastModified {
		return Outcome{}, &InvalidStateTransitionError{
			Entity: kindLao,
			ID:     lao.ID,
			State:  "modified at " + itoa(lao.LastModified),
			Action: "apply a modification of " + itoa(d.LastModified) + " to",
		}
	}

	sigs := make([]protocol.WitnessSignature, 0, len(d.ModificationSignatures))
	for _, w := range d.ModificationSignatures {
		if !w.Witness.Verify(w.Signature, d.ModificationID) {
			sm.logger.Warn("dropping invalid modification signature",
				"witness", w.Witness.String(),
				"message_id", d.ModificationID.String())
			continue
		}
		sigs = append(sigs, w)
	}

	lao.Name = d.Name
	lao.LastModified = d.LastModified
	lao.Witnesses = append([]identity.PublicKey{}, d.Witnesses...)
	lao.ModificationID = d.ModificationID
	lao.ModificationSignatures = sigs
	delete(sm.repo.proposals, d.ModificationID.String())
	return Outcome{}, nil
}
