package identity

import (
	"bytes"
	"errors"

	"go.dedis.ch/kyber/v4/sign/eddsa"
	"go.dedis.ch/kyber/v4/suites"
)

var (
	// ErrInvalidMessageID is returned when a message or data id does not
	// match the hash recomputed from its content.
	ErrInvalidMessageID = errors.New("invalid message id")

	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
)

var suite = suites.MustFind("Ed25519")

// PublicKey is an Ed25519 public key.
type PublicKey []byte

// Signature is an Ed25519 signature.
type Signature []byte

// MessageID identifies a signed message, see HashMessageID.
type MessageID []byte

func (p PublicKey) String() string {
	return encode(p)
}

func (p PublicKey) Equal(o PublicKey) bool {
	return bytes.Equal(p, o)
}

func (p PublicKey) Data() Base64URLData {
	return Base64URLData(p)
}

func (p PublicKey) MarshalText() ([]byte, error) {
	return []byte(encode(p)), nil
}

func (p *PublicKey) UnmarshalText(t []byte) error {
	return unmarshalText((*[]byte)(p), t)
}

func (s Signature) String() string {
	return encode(s)
}

func (s Signature) Equal(o Signature) bool {
	return bytes.Equal(s, o)
}

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(encode(s)), nil
}

func (s *Signature) UnmarshalText(t []byte) error {
	return unmarshalText((*[]byte)(s), t)
}

func (m MessageID) String() string {
	return encode(m)
}

func (m MessageID) Equal(o MessageID) bool {
	return bytes.Equal(m, o)
}

func (m MessageID) Data() Base64URLData {
	return Base64URLData(m)
}

func (m MessageID) MarshalText() ([]byte, error) {
	return []byte(encode(m)), nil
}

func (m *MessageID) UnmarshalText(t []byte) error {
	return unmarshalText((*[]byte)(m), t)
}

// ParsePublicKey decodes a base64url public key.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := decode(s)
	if err != nil {
		return nil, err
	}
	return PublicKey(b), nil
}

// ParseMessageID decodes a base64url message id.
func ParseMessageID(s string) (MessageID, error) {
	b, err := decode(s)
	if err != nil {
		return nil, err
	}
	return MessageID(b), nil
}

// Verify reports whether sig is a valid signature of data under p.
// It never panics and returns false on any decoding or cryptographic failure.
func (p PublicKey) Verify(sig Signature, data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	point := suite.Point()
	if err := point.UnmarshalBinary(p); err != nil {
		return false
	}
	return eddsa.Verify(point, data, sig) == nil
}
