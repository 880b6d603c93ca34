package messagedata

import "github.com/luca-patrignani/popcore/identity"

// ConsensusKey names the property an instance decides on.
type ConsensusKey struct {
	Type     string                 `json:"type"`
	ID       identity.Base64URLData `json:"id"`
	Property string                 `json:"property"`
}

type Elect struct {
	InstanceID identity.Base64URLData `json:"instance_id"`
	CreatedAt  int64                  `json:"created_at"`
	Key        ConsensusKey           `json:"key"`
	Value      string                 `json:"value"`
}

func NewElect(key ConsensusKey, value string, createdAt int64) *Elect {
	return &Elect{
		InstanceID: ConsensusInstanceID(key),
		CreatedAt:  createdAt,
		Key:        key,
		Value:      value,
	}
}

func (*Elect) Object() string { return ObjectConsensus }
func (*Elect) Action() string { return ActionElect }

func (e *Elect) Verify(identity.Base64URLData) error {
	if e.Key.Type == "" || e.Key.Property == "" {
		return malformed("consensus key is incomplete")
	}
	return checkID("consensus instance id", e.InstanceID, ConsensusInstanceID(e.Key))
}

// ElectAccept is an acceptor's answer to the Elect message MessageID.
type ElectAccept struct {
	InstanceID identity.Base64URLData `json:"instance_id"`
	MessageID  identity.MessageID     `json:"message_id"`
	Accept     bool                   `json:"accept"`
}

func (*ElectAccept) Object() string { return ObjectConsensus }
func (*ElectAccept) Action() string { return ActionElectAccept }

func (a *ElectAccept) Verify(identity.Base64URLData) error {
	if len(a.InstanceID) == 0 || len(a.MessageID) == 0 {
		return malformed("elect_accept references nothing")
	}
	return nil
}

// Learn announces that the proposal MessageID was accepted by Acceptors.
type Learn struct {
	InstanceID identity.Base64URLData `json:"instance_id"`
	MessageID  identity.MessageID     `json:"message_id"`
	CreatedAt  int64                  `json:"created_at"`
	Acceptors  []identity.PublicKey   `json:"acceptors"`
}

func (*Learn) Object() string { return ObjectConsensus }
func (*Learn) Action() string { return ActionLearn }

func (l *Learn) Verify(identity.Base64URLData) error {
	if len(l.InstanceID) == 0 || len(l.MessageID) == 0 {
		return malformed("learn references nothing")
	}
	return nil
}
