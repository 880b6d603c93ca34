// Package keystore holds device identity keys on behalf of the protocol
// engine. The engine only sees the KeyHolder interface: it can ask for the
// public key and for signatures, never for the private key itself.
package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.dedis.ch/kyber/v4/sign/eddsa"
	"go.dedis.ch/kyber/v4/util/random"

	"github.com/luca-patrignani/popcore/identity"
)

var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrKeyCorrupted  = errors.New("key storage corrupted")
	ErrKeyGeneration = errors.New("key generation failed")
	ErrSign          = errors.New("signing failed")
)

// KeyError reports a failure of the key holder. Kind is one of the Err*
// sentinels above, so callers can match with errors.Is.
type KeyError struct {
	Kind error
	Path string
	Err  error
}

func (e *KeyError) Error() string {
	msg := e.Kind.Error()
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KeyError) Is(target error) bool { return target == e.Kind }

func (e *KeyError) Unwrap() error { return e.Err }

// KeyHolder signs on behalf of the device identity.
type KeyHolder interface {
	PublicKey() identity.PublicKey
	Sign(data []byte) (identity.Signature, error)
}

// Memory is a KeyHolder that keeps the key in process memory.
type Memory struct {
	signer *eddsa.EdDSA
	public identity.PublicKey
}

// NewMemory generates a fresh Ed25519 identity.
func NewMemory() (*Memory, error) {
	signer := eddsa.NewEdDSA(random.New())
	return newMemory(signer)
}

func newMemory(signer *eddsa.EdDSA) (*Memory, error) {
	pub, err := signer.Public.MarshalBinary()
	if err != nil {
		return nil, &KeyError{Kind: ErrKeyGeneration, Err: err}
	}
	return &Memory{signer: signer, public: identity.PublicKey(pub)}, nil
}

func (m *Memory) PublicKey() identity.PublicKey {
	return m.public
}

func (m *Memory) Sign(data []byte) (identity.Signature, error) {
	sig, err := m.signer.Sign(data)
	if err != nil {
		return nil, &KeyError{Kind: ErrSign, Err: err}
	}
	return identity.Signature(sig), nil
}

// Generate creates a new identity and writes it to path with mode 0600.
// An existing file is never overwritten.
func Generate(path string) (*Memory, error) {
	m, err := NewMemory()
	if err != nil {
		return nil, err
	}
	buf, err := m.signer.MarshalBinary()
	if err != nil {
		return nil, &KeyError{Kind: ErrKeyGeneration, Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, &KeyError{Kind: ErrKeyGeneration, Path: path, Err: err}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, &KeyError{Kind: ErrKeyGeneration, Path: path, Err: err}
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return nil, &KeyError{Kind: ErrKeyGeneration, Path: path, Err: err}
	}
	return m, nil
}

// Load reads an identity written by Generate.
func Load(path string) (*Memory, error) {
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &KeyError{Kind: ErrKeyNotFound, Path: path}
	}
	if err != nil {
		return nil, &KeyError{Kind: ErrKeyCorrupted, Path: path, Err: err}
	}
	signer := &eddsa.EdDSA{}
	if err := signer.UnmarshalBinary(buf); err != nil {
		return nil, &KeyError{Kind: ErrKeyCorrupted, Path: path, Err: err}
	}
	m, err := newMemory(signer)
	if err != nil {
		return nil, &KeyError{Kind: ErrKeyCorrupted, Path: path, Err: err}
	}
	// a key file whose public half does not match its seed is corrupt
	probe := []byte("keystore probe")
	sig, err := m.Sign(probe)
	if err != nil || !m.public.Verify(sig, probe) {
		return nil, &KeyError{Kind: ErrKeyCorrupted, Path: path, Err: fmt.Errorf("key pair mismatch")}
	}
	return m, nil
}

// MustLoad is Load for session start: a missing key is generated, a corrupt
// key store is unrecoverable and panics.
func MustLoad(path string) *Memory {
	m, err := Load(path)
	if errors.Is(err, ErrKeyNotFound) {
		m, err = Generate(path)
	}
	if err != nil {
		panic(err)
	}
	return m
}
