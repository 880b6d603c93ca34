package domain

import (
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
)

func (sm *StateMachine) createRollCall(env Envelope, d *messagedata.CreateRollCall) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	if _, ok := sm.repo.rollCalls[d.ID.String()]; ok {
		return Outcome{}, &DuplicateResourceError{Kind: kindRollCall, ID: d.ID}
	}
	rc := &RollCall{
		ID:            d.ID,
		Name:          d.Name,
		Creation:      d.Creation,
		ProposedStart: d.ProposedStart,
		ProposedEnd:   d.ProposedEnd,
		Location:      d.Location,
		Description:   d.Description,
		State:         RollCallCreated,
		Attendees:     []identity.PublicKey{},
		LastUpdateID:  d.ID,
		Transitions:   []identity.Base64URLData{d.ID},
	}
	sm.repo.rollCalls[d.ID.String()] = rc
	sm.repo.rollCallUpdates[d.ID.String()] = d.ID.String()
	sm.repo.schedule(kindRollCall, d.Creation, d.ID)
	return Outcome{Produced: []identity.Base64URLData{d.ID}}, nil
}

// rollCallAt resolves the roll call a transition refers to through the id
// it names. An id never seen is unknown; an id seen but superseded is stale.
func (sm *StateMachine) rollCallAt(ref identity.Base64URLData) (*RollCall, error) {
	id, ok := sm.repo.rollCallUpdates[ref.String()]
	if !ok {
		return nil, &UnknownEntityError{Kind: kindRollCall, ID: ref}
	}
	rc := sm.repo.rollCalls[id]
	if !rc.LastUpdateID.Equal(ref) {
		return nil, &StaleReferenceError{Entity: kindRollCall, Expected: rc.LastUpdateID, Got: ref}
	}
	return rc, nil
}

func (sm *StateMachine) openRollCall(env Envelope, d *messagedata.OpenRollCall) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	rc, err := sm.rollCallAt(d.Opens)
	if err != nil {
		return Outcome{}, err
	}
	from := RollCallCreated
	if d.IsReopen() {
		from = RollCallClosed
	}
	if rc.State != from {
		return Outcome{}, &InvalidStateTransitionError{
			Entity: kindRollCall,
			ID:     rc.ID,
			State:  string(rc.State),
			Action: d.Action(),
		}
	}
	rc.State = RollCallOpened
	rc.OpenedAt = d.OpenedAt
	sm.advanceRollCall(rc, d.UpdateID)
	return Outcome{Produced: []identity.Base64URLData{d.UpdateID}}, nil
}

func (sm *StateMachine) closeRollCall(env Envelope, d *messagedata.CloseRollCall) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	rc, err := sm.rollCallAt(d.Closes)
	if err != nil {
		return Outcome{}, err
	}
	if rc.State != RollCallOpened {
		return Outcome{}, &InvalidStateTransitionError{
			Entity: kindRollCall,
			ID:     rc.ID,
			State:  string(rc.State),
			Action: d.Action(),
		}
	}
	if d.ClosedAt < rc.OpenedAt {
		return Outcome{}, invalidData("roll call closed at %d before it opened at %d", d.ClosedAt, rc.OpenedAt)
	}
	rc.State = RollCallClosed
	rc.ClosedAt = d.ClosedAt
	rc.Attendees = append([]identity.PublicKey{}, d.Attendees...)
	sm.advanceRollCall(rc, d.UpdateID)
	return Outcome{Produced: []identity.Base64URLData{d.UpdateID}}, nil
}

func (sm *StateMachine) advanceRollCall(rc *RollCall, updateID identity.Base64URLData) {
	rc.LastUpdateID = updateID
	rc.Transitions = append(rc.Transitions, updateID)
	sm.repo.rollCallUpdates[updateID.String()] = rc.ID.String()
}
