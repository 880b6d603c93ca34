package ballot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/suites"

	"github.com/luca-patrignani/popcore/identity"
)

// CiphertextSize is the length of K||C.
const CiphertextSize = 64

var suite suites.Suite = suites.MustFind("Ed25519")

// DecryptionError reports a ciphertext that cannot be opened with the key.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return "decryption failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "decryption failed: " + e.Reason
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// ErrInvalidKey is returned when an election key is not a valid point.
var ErrInvalidKey = errors.New("invalid election key")

// KeyPair is an election key.
type KeyPair struct {
	secret kyber.Scalar
	public kyber.Point
}

// GenerateKeyPair picks a fresh random key.
func GenerateKeyPair() *KeyPair {
	x := suite.Scalar().Pick(suite.RandomStream())
	return &KeyPair{secret: x, public: suite.Point().Mul(x, nil)}
}

// UnmarshalKeyPair restores a key from its marshalled secret scalar.
func UnmarshalKeyPair(secret []byte) (*KeyPair, error) {
	x := suite.Scalar()
	if err := x.UnmarshalBinary(secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &KeyPair{secret: x, public: suite.Point().Mul(x, nil)}, nil
}

// MarshalBinary returns the secret scalar.
func (k *KeyPair) MarshalBinary() ([]byte, error) {
	return k.secret.MarshalBinary()
}

// PublicKey returns the 32-byte public point, as published in election#key.
func (k *KeyPair) PublicKey() identity.Base64URLData {
	b, err := k.public.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return identity.Base64URLData(b)
}

// Encrypt encrypts up to suite.Point().EmbedLen() bytes under the public key.
func Encrypt(publicKey identity.Base64URLData, message []byte) (identity.Base64URLData, error) {
	pub := suite.Point()
	if err := pub.UnmarshalBinary(publicKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(message) > pub.EmbedLen() {
		return nil, fmt.Errorf("message of %d bytes does not fit in a point", len(message))
	}
	m := suite.Point().Embed(message, suite.RandomStream())
	k := suite.Scalar().Pick(suite.RandomStream())
	K := suite.Point().Mul(k, nil)
	S := suite.Point().Mul(k, pub)
	C := suite.Point().Add(S, m)

	kb, err := K.MarshalBinary()
	if err != nil {
		return nil, err
	}
	cb, err := C.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return identity.Base64URLData(append(kb, cb...)), nil
}

// Decrypt opens a K||C ciphertext.
func (k *KeyPair) Decrypt(ciphertext identity.Base64URLData) ([]byte, error) {
	if len(ciphertext) != CiphertextSize {
		return nil, &DecryptionError{Reason: fmt.Sprintf("ciphertext is %d bytes, expected %d", len(ciphertext), CiphertextSize)}
	}
	K := suite.Point()
	if err := K.UnmarshalBinary(ciphertext[:32]); err != nil {
		return nil, &DecryptionError{Reason: "invalid K", Err: err}
	}
	C := suite.Point()
	if err := C.UnmarshalBinary(ciphertext[32:]); err != nil {
		return nil, &DecryptionError{Reason: "invalid C", Err: err}
	}
	S := suite.Point().Mul(k.secret, K)
	m := suite.Point().Sub(C, S)
	data, err := m.Data()
	if err != nil {
		return nil, &DecryptionError{Reason: "no embedded data", Err: err}
	}
	return data, nil
}

// EncryptVote encrypts a ballot option index.
func EncryptVote(publicKey identity.Base64URLData, index int) (identity.Base64URLData, error) {
	if index < 0 || index > 0xffff {
		return nil, fmt.Errorf("vote index %d out of range", index)
	}
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(index))
	return Encrypt(publicKey, buf[:])
}

// DecryptVote recovers the ballot option index from a ciphertext produced by
// EncryptVote.
func (k *KeyPair) DecryptVote(ciphertext identity.Base64URLData) (int, error) {
	data, err := k.Decrypt(ciphertext)
	if err != nil {
		return 0, err
	}
	if len(data) != 2 {
		return 0, &DecryptionError{Reason: fmt.Sprintf("vote is %d bytes, expected 2", len(data))}
	}
	return int(binary.BigEndian.Uint16(data)), nil
}
