package messagedata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luca-patrignani/popcore/identity"
)

// ErrMalformed is returned when the payload cannot be decoded or violates a
// structural constraint.
var ErrMalformed = errors.New("malformed data")

const (
	ObjectLao       = "lao"
	ObjectMeeting   = "meeting"
	ObjectRollCall  = "roll_call"
	ObjectElection  = "election"
	ObjectConsensus = "consensus"
	ObjectMessage   = "message"
	ObjectChirp     = "chirp"
	ObjectCoin      = "coin"
)

const (
	ActionCreate           = "create"
	ActionUpdateProperties = "update_properties"
	ActionState            = "state"
	ActionOpen             = "open"
	ActionReopen           = "reopen"
	ActionClose            = "close"
	ActionSetup            = "setup"
	ActionKey              = "key"
	ActionCastVote         = "cast_vote"
	ActionEnd              = "end"
	ActionResult           = "result"
	ActionElect            = "elect"
	ActionElectAccept      = "elect_accept"
	ActionLearn            = "learn"
	ActionWitness          = "witness"
	ActionAdd              = "add"
	ActionDelete           = "delete"
	ActionPostTransaction  = "post_transaction"
)

// Data is one payload variant.
type Data interface {
	Object() string
	Action() string
}

// Verifier is implemented by variants that can check their own ids against
// the LAO they were published in.
type Verifier interface {
	Verify(laoID identity.Base64URLData) error
}

// Key identifies a variant.
type Key struct {
	Object string
	Action string
}

func (k Key) String() string { return k.Object + "#" + k.Action }

// KeyOf returns the (object, action) pair of d.
func KeyOf(d Data) Key { return Key{Object: d.Object(), Action: d.Action()} }

var table = map[Key]func() Data{
	{ObjectLao, ActionCreate}:            func() Data { return &CreateLao{} },
	{ObjectLao, ActionUpdateProperties}:  func() Data { return &UpdateLao{} },
	{ObjectLao, ActionState}:             func() Data { return &StateLao{} },
	{ObjectMeeting, ActionCreate}:        func() Data { return &CreateMeeting{} },
	{ObjectMeeting, ActionState}:         func() Data { return &StateMeeting{} },
	{ObjectRollCall, ActionCreate}:       func() Data { return &CreateRollCall{} },
	{ObjectRollCall, ActionOpen}:         func() Data { return &OpenRollCall{action: ActionOpen} },
	{ObjectRollCall, ActionReopen}:       func() Data { return &OpenRollCall{action: ActionReopen} },
	{ObjectRollCall, ActionClose}:        func() Data { return &CloseRollCall{} },
	{ObjectElection, ActionSetup}:        func() Data { return &SetupElection{} },
	{ObjectElection, ActionKey}:          func() Data { return &KeyElection{} },
	{ObjectElection, ActionOpen}:         func() Data { return &OpenElection{} },
	{ObjectElection, ActionCastVote}:     func() Data { return &CastVote{} },
	{ObjectElection, ActionEnd}:          func() Data { return &EndElection{} },
	{ObjectElection, ActionResult}:       func() Data { return &ElectionResult{} },
	{ObjectConsensus, ActionElect}:       func() Data { return &Elect{} },
	{ObjectConsensus, ActionElectAccept}: func() Data { return &ElectAccept{} },
	{ObjectConsensus, ActionLearn}:       func() Data { return &Learn{} },
	{ObjectMessage, ActionWitness}:       func() Data { return &WitnessMessage{} },
	{ObjectChirp, ActionAdd}:             func() Data { return &AddChirp{} },
	{ObjectChirp, ActionDelete}:          func() Data { return &DeleteChirp{} },
	{ObjectCoin, ActionPostTransaction}:  func() Data { return &PostTransaction{} },
}

// Supported reports whether k has a concrete variant.
func Supported(k Key) bool {
	_, ok := table[k]
	return ok
}

type header struct {
	Object string `json:"object"`
	Action string `json:"action"`
}

// Decode parses raw payload bytes into their variant.
func Decode(raw []byte) (Data, error) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.Object == "" || h.Action == "" {
		return nil, fmt.Errorf("%w: missing object or action", ErrMalformed)
	}
	factory, ok := table[Key{h.Object, h.Action}]
	if !ok {
		return &Unknown{ObjectName: h.Object, ActionName: h.Action, Raw: append([]byte{}, raw...)}, nil
	}
	d := factory()
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, KeyOf(d), err)
	}
	return d, nil
}

// Encode renders d with its object and action fields first.
func Encode(d Data) ([]byte, error) {
	if u, ok := d.(*Unknown); ok {
		return append([]byte{}, u.Raw...), nil
	}
	body, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	head, err := json.Marshal(header{Object: d.Object(), Action: d.Action()})
	if err != nil {
		return nil, err
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}
	// splice {"object":..,"action":..} and the variant fields into one object
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// Verify runs d's own checks if it has any.
func Verify(d Data, laoID identity.Base64URLData) error {
	if v, ok := d.(Verifier); ok {
		return v.Verify(laoID)
	}
	return nil
}

// Unknown carries a payload whose (object, action) pair has no variant.
type Unknown struct {
	ObjectName string
	ActionName string
	Raw        []byte
}

func (u *Unknown) Object() string { return u.ObjectName }
func (u *Unknown) Action() string { return u.ActionName }

func checkID(what string, got, expected identity.Base64URLData) error {
	if !got.Equal(expected) {
		return fmt.Errorf("%w: %s: expected %s, got %s", identity.ErrInvalidMessageID, what, expected, got)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
}
