package domain

import (
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
)

// witness attaches a witness signature to a recorded message. Signatures
// that do not verify, or that come from a key outside the witness set, are
// ignored.
func (sm *StateMachine) witness(env Envelope, d *messagedata.WitnessMessage) (Outcome, error) {
	if sm.ledger == nil || !sm.ledger.Contains(d.MessageID) {
		return Outcome{}, &UnknownEntityError{Kind: kindMessage, ID: d.MessageID.Data()}
	}
	if !sm.repo.lao.IsWitness(env.Sender()) {
		sm.logger.Warn("ignoring witness signature from a non witness",
			"witness", env.Sender().String(),
			"message_id", d.MessageID.String())
		return Outcome{}, nil
	}
	if !env.Sender().Verify(d.Signature, d.MessageID) {
		sm.logger.Warn("ignoring invalid witness signature",
			"witness", env.Sender().String(),
			"message_id", d.MessageID.String())
		return Outcome{}, nil
	}
	if _, err := sm.ledger.AddWitnessSignature(d.MessageID, protocol.WitnessSignature{
		Witness:   env.Sender(),
		Signature: d.Signature,
	}); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}

func (sm *StateMachine) addChirp(env Envelope, d *messagedata.AddChirp) (Outcome, error) {
	segs := env.Channel.Segments
	if len(segs) == 2 && segs[0] == protocol.SocialSegment && segs[1] != env.Sender().String() {
		return Outcome{}, &AccessDeniedError{Sender: env.Sender(), Reason: "chirps go to the author's own social channel"}
	}
	if len(d.ParentID) > 0 {
		if _, ok := sm.repo.chirps[d.ParentID.String()]; !ok {
			return Outcome{}, &UnknownEntityError{Kind: kindChirp, ID: d.ParentID.Data()}
		}
	}
	id := env.MessageID()
	sm.repo.chirps[id.String()] = &Chirp{
		ID:        id,
		Author:    env.Sender(),
		Text:      d.Text,
		ParentID:  d.ParentID,
		Timestamp: d.Timestamp,
	}
	sm.repo.chirpOrder = append(sm.repo.chirpOrder, id.String())
	return Outcome{}, nil
}

func (sm *StateMachine) deleteChirp(env Envelope, d *messagedata.DeleteChirp) (Outcome, error) {
	c, ok := sm.repo.chirps[d.ChirpID.String()]
	if !ok {
		return Outcome{}, &UnknownEntityError{Kind: kindChirp, ID: d.ChirpID.Data()}
	}
	if !c.Author.Equal(env.Sender()) {
		return Outcome{}, &AccessDeniedError{Sender: env.Sender(), Reason: "only the author may delete a chirp"}
	}
	if c.Deleted {
		return Outcome{}, &InvalidStateTransitionError{Entity: kindChirp, ID: d.ChirpID.Data(), State: "deleted", Action: d.Action()}
	}
	c.Deleted = true
	c.Text = ""
	return Outcome{}, nil
}

