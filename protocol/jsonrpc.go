package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned for frames that are not valid JSON-RPC or carry
// fields that cannot be decoded.
var ErrMalformed = errors.New("malformed envelope")

const Version = "2.0"

const (
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
	MethodPublish     = "publish"
	MethodCatchup     = "catchup"
	MethodBroadcast   = "broadcast"
)

// Error codes carried in error answers.
const (
	CodeInvalidAction       = -1
	CodeInvalidResource     = -2
	CodeDuplicateResource   = -3
	CodeInvalidMessageField = -4
	CodeAccessDenied        = -5
	CodeInternal            = -6
)

// Params are the parameters shared by every method.
type Params struct {
	Channel string          `json:"channel"`
	Message *MessageGeneral `json:"message,omitempty"`
}

// Request is a client request, or a broadcast when ID is nil.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
	ID      *int   `json:"id,omitempty"`
}

func newRequest(method, channel string, id int, msg *MessageGeneral) Request {
	return Request{
		JSONRPC: Version,
		Method:  method,
		Params:  Params{Channel: channel, Message: msg},
		ID:      &id,
	}
}

func NewSubscribe(id int, channel string) Request {
	return newRequest(MethodSubscribe, channel, id, nil)
}

func NewUnsubscribe(id int, channel string) Request {
	return newRequest(MethodUnsubscribe, channel, id, nil)
}

func NewCatchup(id int, channel string) Request {
	return newRequest(MethodCatchup, channel, id, nil)
}

func NewPublish(id int, channel string, msg MessageGeneral) Request {
	return newRequest(MethodPublish, channel, id, &msg)
}

func NewBroadcast(channel string, msg MessageGeneral) Request {
	return Request{
		JSONRPC: Version,
		Method:  MethodBroadcast,
		Params:  Params{Channel: channel, Message: &msg},
	}
}

// Error is the error object of an answer.
type Error struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("answer error %d: %s", e.Code, e.Description)
}

// Result is either a plain acknowledgement (0) or a list of messages.
type Result struct {
	Messages []MessageGeneral
	isList   bool
}

// AckResult is the general result sent for publish/subscribe/unsubscribe.
func AckResult() *Result { return &Result{} }

// MessagesResult is the result of a catchup.
func MessagesResult(msgs []MessageGeneral) *Result {
	return &Result{Messages: msgs, isList: true}
}

// IsList reports whether the result carries messages.
func (r Result) IsList() bool { return r.isList }

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.isList {
		return []byte("0"), nil
	}
	if r.Messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Messages)
}

func (r *Result) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var msgs []MessageGeneral
		if err := json.Unmarshal(b, &msgs); err != nil {
			return err
		}
		*r = Result{Messages: msgs, isList: true}
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: result is neither 0 nor a message list", ErrMalformed)
	}
	if n != 0 {
		return fmt.Errorf("%w: unexpected result %d", ErrMalformed, n)
	}
	*r = Result{}
	return nil
}

// Answer replies to a request with the same id.
type Answer struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      int     `json:"id"`
	Result  *Result `json:"result,omitempty"`
	Error   *Error  `json:"error,omitempty"`
}

func NewResult(id int, r *Result) Answer {
	return Answer{JSONRPC: Version, ID: id, Result: r}
}

func NewError(id, code int, format string, args ...any) Answer {
	return Answer{JSONRPC: Version, ID: id, Error: &Error{Code: code, Description: fmt.Sprintf(format, args...)}}
}

// FrameKind tells which variant a Frame holds.
type FrameKind int

const (
	KindRequest FrameKind = iota
	KindAnswer
	KindBroadcast
)

func (k FrameKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindAnswer:
		return "answer"
	case KindBroadcast:
		return "broadcast"
	}
	return fmt.Sprintf("FrameKind(%d)", int(k))
}

// Frame is one decoded JSON object read from the connection.
type Frame struct {
	Kind    FrameKind
	Request Request
	Answer  Answer
}

type probe struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  *string         `json:"method"`
	ID      *int            `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// ParseFrame decodes one frame. Every failure wraps ErrMalformed.
func ParseFrame(b []byte) (Frame, error) {
	var p probe
	if err := json.Unmarshal(b, &p); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.JSONRPC != Version {
		return Frame{}, fmt.Errorf("%w: jsonrpc version %q", ErrMalformed, p.JSONRPC)
	}
	if p.Method != nil {
		var req Request
		if err := json.Unmarshal(b, &req); err != nil {
			return Frame{}, wrapMalformed(err)
		}
		if _, err := ParseChannel(req.Params.Channel); err != nil {
			return Frame{}, err
		}
		switch req.Method {
		case MethodBroadcast:
			if req.Params.Message == nil {
				return Frame{}, fmt.Errorf("%w: broadcast without message", ErrMalformed)
			}
			return Frame{Kind: KindBroadcast, Request: req}, nil
		case MethodPublish:
			if req.Params.Message == nil {
				return Frame{}, fmt.Errorf("%w: publish without message", ErrMalformed)
			}
		case MethodSubscribe, MethodUnsubscribe, MethodCatchup:
		default:
			return Frame{}, fmt.Errorf("%w: unknown method %q", ErrMalformed, req.Method)
		}
		if req.ID == nil {
			return Frame{}, fmt.Errorf("%w: request without id", ErrMalformed)
		}
		return Frame{Kind: KindRequest, Request: req}, nil
	}
	if p.ID == nil {
		return Frame{}, fmt.Errorf("%w: answer without id", ErrMalformed)
	}
	if present(p.Result) == present(p.Error) {
		return Frame{}, fmt.Errorf("%w: answer must carry exactly one of result and error", ErrMalformed)
	}
	var ans Answer
	if err := json.Unmarshal(b, &ans); err != nil {
		return Frame{}, wrapMalformed(err)
	}
	return Frame{Kind: KindAnswer, Answer: ans}, nil
}

// present reports whether a raw member carries a value. A literal null
// counts as absent.
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func wrapMalformed(err error) error {
	if errors.Is(err, ErrMalformed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}
