package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/luca-patrignani/popcore/identity"
)

// Signer produces signatures for the local identity.
type Signer interface {
	PublicKey() identity.PublicKey
	Sign(data []byte) (identity.Signature, error)
}

// WitnessSignature is a witness' signature over a message id.
type WitnessSignature struct {
	Witness   identity.PublicKey `json:"witness" msgpack:"witness"`
	Signature identity.Signature `json:"signature" msgpack:"signature"`
}

// MessageGeneral is the signed envelope wrapping one data payload.
type MessageGeneral struct {
	Sender            identity.PublicKey     `json:"sender" msgpack:"sender"`
	Data              identity.Base64URLData `json:"data" msgpack:"data"`
	Signature         identity.Signature     `json:"signature" msgpack:"signature"`
	MessageID         identity.MessageID     `json:"message_id" msgpack:"message_id"`
	WitnessSignatures []WitnessSignature     `json:"witness_signatures" msgpack:"witness_signatures"`
}

// NewMessage signs data with signer and derives the message id.
func NewMessage(signer Signer, data []byte) (MessageGeneral, error) {
	sig, err := signer.Sign(data)
	if err != nil {
		return MessageGeneral{}, fmt.Errorf("failed to sign data: %w", err)
	}
	return MessageGeneral{
		Sender:            signer.PublicKey(),
		Data:              identity.Base64URLData(data),
		Signature:         sig,
		MessageID:         identity.HashMessageID(data, sig),
		WitnessSignatures: []WitnessSignature{},
	}, nil
}

// ParseMessage builds a MessageGeneral from its base64url wire fields. It
// fails with ErrMalformed if any field is not base64url. It does not verify
// signatures, see Verify.
func ParseMessage(sender, data, signature, messageID string, witnesses ...WitnessSignature) (MessageGeneral, error) {
	var m MessageGeneral
	fields := []struct {
		name string
		src  string
		dst  interface{ UnmarshalText([]byte) error }
	}{
		{"sender", sender, &m.Sender},
		{"data", data, &m.Data},
		{"signature", signature, &m.Signature},
		{"message_id", messageID, &m.MessageID},
	}
	for _, f := range fields {
		if err := f.dst.UnmarshalText([]byte(f.src)); err != nil {
			return MessageGeneral{}, fmt.Errorf("%w: field %s: %v", ErrMalformed, f.name, err)
		}
	}
	m.WitnessSignatures = append([]WitnessSignature{}, witnesses...)
	return m, nil
}

// Verify checks the envelope invariants: the message id matches the hash of
// data and signature, the sender signature verifies over data, and every
// witness signature verifies over the message id.
func (m MessageGeneral) Verify() error {
	if m.Data.IsEmpty() {
		return fmt.Errorf("%w: empty data", ErrMalformed)
	}
	expected := identity.HashMessageID(m.Data, m.Signature)
	if !expected.Equal(m.MessageID) {
		return fmt.Errorf("%w: expected %s, got %s", identity.ErrInvalidMessageID, expected, m.MessageID)
	}
	if !m.Sender.Verify(m.Signature, m.Data) {
		return fmt.Errorf("%w: sender %s", identity.ErrInvalidSignature, m.Sender)
	}
	for _, w := range m.WitnessSignatures {
		if !w.Witness.Verify(w.Signature, m.MessageID) {
			return fmt.Errorf("%w: witness %s", identity.ErrInvalidSignature, w.Witness)
		}
	}
	return nil
}

// AddWitnessSignature attaches w unless the same witness already signed.
// It reports whether the signature was added.
func (m *MessageGeneral) AddWitnessSignature(w WitnessSignature) bool {
	for _, existing := range m.WitnessSignatures {
		if existing.Witness.Equal(w.Witness) {
			return false
		}
	}
	m.WitnessSignatures = append(m.WitnessSignatures, w)
	return true
}

// Clone returns a deep copy, witness list included.
func (m MessageGeneral) Clone() MessageGeneral {
	c := m
	c.WitnessSignatures = append([]WitnessSignature{}, m.WitnessSignatures...)
	return c
}

func (m *MessageGeneral) UnmarshalJSON(b []byte) error {
	type plain MessageGeneral
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("%w: message: %v", ErrMalformed, err)
	}
	if p.WitnessSignatures == nil {
		p.WitnessSignatures = []WitnessSignature{}
	}
	*m = MessageGeneral(p)
	return nil
}
