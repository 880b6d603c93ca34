package domain

import (
	"fmt"

	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
)

// Envelope is a verified message ready for the state machine.
type Envelope struct {
	Channel protocol.Channel
	Message protocol.MessageGeneral
	Data    messagedata.Data
}

// Sender is a shortcut for the message sender.
func (e Envelope) Sender() identity.PublicKey { return e.Message.Sender }

// MessageID is a shortcut for the message id.
func (e Envelope) MessageID() identity.MessageID { return e.Message.MessageID }

// LaoID returns the LAO the envelope belongs to. For lao#create on the root
// channel this is the id carried by the payload.
func (e Envelope) LaoID() identity.Base64URLData {
	if e.Channel.IsRoot() {
		if c, ok := e.Data.(*messagedata.CreateLao); ok {
			return c.ID
		}
		return nil
	}
	id, err := identity.DecodeBase64URL(e.Channel.LaoID)
	if err != nil {
		return nil
	}
	return id
}

// Open checks the envelope invariants of msg, decodes its payload and runs
// the payload's own id checks. Unknown (object, action) pairs are not an
// error here; the state machine rejects them.
func Open(channel string, msg protocol.MessageGeneral) (Envelope, error) {
	ch, err := protocol.ParseChannel(channel)
	if err != nil {
		return Envelope{}, &MalformedEnvelopeError{Err: err}
	}
	if err := msg.Verify(); err != nil {
		return Envelope{}, classify(err)
	}
	data, err := messagedata.Decode(msg.Data)
	if err != nil {
		return Envelope{}, &MalformedEnvelopeError{Err: err}
	}
	env := Envelope{Channel: ch, Message: msg, Data: data}

	laoID := env.LaoID()
	if !ch.IsRoot() && laoID == nil {
		return Envelope{}, &MalformedEnvelopeError{Err: fmt.Errorf("channel %s does not name a LAO", channel)}
	}
	if ch.IsRoot() {
		if _, ok := data.(*messagedata.CreateLao); !ok {
			return Envelope{}, invalidData("only lao#create may be published on %s", protocol.Root)
		}
	}
	if err := messagedata.Verify(data, laoID); err != nil {
		return Envelope{}, classify(err)
	}
	return env, nil
}
