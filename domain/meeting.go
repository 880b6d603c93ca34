package domain

import (
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
)

func (sm *StateMachine) createMeeting(env Envelope, d *messagedata.CreateMeeting) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	if _, ok := sm.repo.meetings[d.ID.String()]; ok {
		return Outcome{}, &DuplicateResourceError{Kind: kindMeeting, ID: d.ID}
	}
	m := &Meeting{
		ID:            d.ID,
		Name:          d.Name,
		Creation:      d.Creation,
		LastModified:  d.Creation,
		Location:      d.Location,
		Start:         d.Start,
		End:           d.End,
		LastMessageID: env.MessageID(),
		history:       map[string]bool{env.MessageID().String(): true},
	}
	sm.repo.meetings[d.ID.String()] = m
	sm.repo.schedule(kindMeeting, d.Creation, d.ID)
	return Outcome{Produced: []identity.Base64URLData{d.ID}}, nil
}

// stateMeeting applies a modification that references the last message
// applied to the meeting.
func (sm *StateMachine) stateMeeting(env Envelope, d *messagedata.StateMeeting) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	m, ok := sm.repo.meetings[d.ID.String()]
	if !ok {
		return Outcome{}, &UnknownEntityError{Kind: kindMeeting, ID: d.ID}
	}
	if !m.LastMessageID.Equal(d.ModificationID) {
		if m.history[d.ModificationID.String()] {
			return Outcome{}, &StaleReferenceError{Entity: kindMeeting, Expected: m.LastMessageID.Data(), Got: d.ModificationID.Data()}
		}
		return Outcome{}, &UnknownEntityError{Kind: kindMessage, ID: d.ModificationID.Data()}
	}
	if d.Creation != m.Creation {
		return Outcome{}, invalidData("meeting#state changes the creation time")
	}
	if d.LastModified < m.LastModified {
		return Outcome{}, &InvalidStateTransitionError{
			Entity: kindMeeting,
			ID:     m.ID,
			State:  "modified at " + itoa(m.LastModified),
			Action: "apply a modification of " + itoa(d.LastModified) + " to",
		}
	}

	sigs := make([]protocol.WitnessSignature, 0, len(d.ModificationSignatures))
	for _, w := range d.ModificationSignatures {
		if w.Witness.Verify(w.Signature, d.ModificationID) {
			sigs = append(sigs, w)
		}
	}
	m.Name = d.Name
	m.LastModified = d.LastModified
	m.Location = d.Location
	m.Start = d.Start
	m.End = d.End
	m.LastMessageID = env.MessageID()
	m.ModificationSignatures = sigs
	m.history[env.MessageID().String()] = true
	return Outcome{}, nil
}
