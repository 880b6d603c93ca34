package domain

import (
	"errors"
	"fmt"

	"github.com/luca-patrignani/popcore/ballot"
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
)

// MalformedEnvelopeError is returned for unparseable JSON or base64.
type MalformedEnvelopeError struct {
	Err error
}

func (e *MalformedEnvelopeError) Error() string { return "malformed envelope: " + e.Err.Error() }
func (e *MalformedEnvelopeError) Unwrap() error { return e.Err }

// InvalidMessageIDError is returned when a message id or a data id does not
// match its recomputed hash.
type InvalidMessageIDError struct {
	Err error
}

func (e *InvalidMessageIDError) Error() string { return e.Err.Error() }
func (e *InvalidMessageIDError) Unwrap() error { return e.Err }
func (e *InvalidMessageIDError) Is(target error) bool {
	return target == identity.ErrInvalidMessageID
}

// InvalidSignatureError is returned when the sender or a witness signature
// does not verify.
type InvalidSignatureError struct {
	Err error
}

func (e *InvalidSignatureError) Error() string { return e.Err.Error() }
func (e *InvalidSignatureError) Unwrap() error { return e.Err }
func (e *InvalidSignatureError) Is(target error) bool {
	return target == identity.ErrInvalidSignature
}

type UnsupportedDataTypeError struct {
	Object string
	Action string
}

func (e *UnsupportedDataTypeError) Error() string {
	return fmt.Sprintf("unsupported data type %s#%s", e.Object, e.Action)
}

// UnknownEntityError is returned when a message refers to an id that was
// never produced in the LAO. ID is the id the message waits for.
type UnknownEntityError struct {
	Kind string
	ID   identity.Base64URLData
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown %s %s", e.Kind, e.ID)
}

type InvalidStateTransitionError struct {
	Entity string
	ID     identity.Base64URLData
	State  string
	Action string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s", e.Action, e.Entity, e.ID, e.State)
}

// StaleReferenceError is returned when a transition names a predecessor
// that was superseded.
type StaleReferenceError struct {
	Entity   string
	Expected identity.Base64URLData
	Got      identity.Base64URLData
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("stale %s reference: expected %s, got %s", e.Entity, e.Expected, e.Got)
}

type DuplicateResourceError struct {
	Kind string
	ID   identity.Base64URLData
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Kind, e.ID)
}

type AccessDeniedError struct {
	Sender identity.PublicKey
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied to %s: %s", e.Sender, e.Reason)
}

// InvalidDataError is returned when a payload field violates a constraint
// that does not fall in another category.
type InvalidDataError struct {
	Err error
}

func (e *InvalidDataError) Error() string { return "invalid data: " + e.Err.Error() }
func (e *InvalidDataError) Unwrap() error { return e.Err }

func invalidData(format string, args ...any) error {
	return &InvalidDataError{Err: fmt.Errorf(format, args...)}
}

// classify turns the sentinels of the lower layers into the typed errors of
// this package.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		idErr  *InvalidMessageIDError
		sigErr *InvalidSignatureError
		mal    *MalformedEnvelopeError
		data   *InvalidDataError
	)
	switch {
	case errors.As(err, &idErr), errors.As(err, &sigErr), errors.As(err, &mal), errors.As(err, &data):
		return err
	case errors.Is(err, identity.ErrInvalidMessageID):
		return &InvalidMessageIDError{Err: err}
	case errors.Is(err, identity.ErrInvalidSignature):
		return &InvalidSignatureError{Err: err}
	case errors.Is(err, protocol.ErrMalformed), errors.Is(err, identity.ErrInvalidBase64):
		return &MalformedEnvelopeError{Err: err}
	case errors.Is(err, messagedata.ErrMalformed):
		return &InvalidDataError{Err: err}
	}
	return err
}

// Code maps an error to the JSON-RPC error code an answer would carry.
func Code(err error) int {
	var (
		unsupported *UnsupportedDataTypeError
		transition  *InvalidStateTransitionError
		unknown     *UnknownEntityError
		stale       *StaleReferenceError
		duplicate   *DuplicateResourceError
		denied      *AccessDeniedError
		decryption  *ballot.DecryptionError
	)
	switch {
	case errors.As(err, &unsupported), errors.As(err, &transition):
		return protocol.CodeInvalidAction
	case errors.As(err, &unknown), errors.As(err, &stale):
		return protocol.CodeInvalidResource
	case errors.As(err, &duplicate):
		return protocol.CodeDuplicateResource
	case errors.As(err, &denied):
		return protocol.CodeAccessDenied
	case errors.As(err, &decryption):
		return protocol.CodeInvalidMessageField
	}
	err = classify(err)
	var (
		idErr  *InvalidMessageIDError
		sigErr *InvalidSignatureError
		mal    *MalformedEnvelopeError
		data   *InvalidDataError
	)
	switch {
	case errors.As(err, &idErr), errors.As(err, &sigErr), errors.As(err, &mal), errors.As(err, &data):
		return protocol.CodeInvalidMessageField
	}
	return protocol.CodeInternal
}

// IsUnknownEntity reports whether err asks for buffering, and on which id.
func IsUnknownEntity(err error) (identity.Base64URLData, bool) {
	var unknown *UnknownEntityError
	if errors.As(err, &unknown) {
		return unknown.ID, true
	}
	return nil, false
}
