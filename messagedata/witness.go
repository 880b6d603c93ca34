package messagedata

import "github.com/luca-patrignani/popcore/identity"

// WitnessMessage carries a witness signature over MessageID; the witness is
// the sender of the enclosing message.
type WitnessMessage struct {
	MessageID identity.MessageID `json:"message_id"`
	Signature identity.Signature `json:"signature"`
}

func (*WitnessMessage) Object() string { return ObjectMessage }
func (*WitnessMessage) Action() string { return ActionWitness }

func (w *WitnessMessage) Verify(identity.Base64URLData) error {
	if len(w.MessageID) == 0 || len(w.Signature) == 0 {
		return malformed("witness message is incomplete")
	}
	return nil
}
