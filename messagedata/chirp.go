package messagedata

import (
	"unicode/utf8"

	"github.com/luca-patrignani/popcore/identity"
)

// MaxChirpLength is counted in runes.
const MaxChirpLength = 300

type AddChirp struct {
	Text      string             `json:"text"`
	ParentID  identity.MessageID `json:"parent_id,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

func (*AddChirp) Object() string { return ObjectChirp }
func (*AddChirp) Action() string { return ActionAdd }

func (a *AddChirp) Verify(identity.Base64URLData) error {
	n := utf8.RuneCountInString(a.Text)
	if n == 0 {
		return malformed("chirp is empty")
	}
	if n > MaxChirpLength {
		return malformed("chirp has %d characters, at most %d allowed", n, MaxChirpLength)
	}
	return nil
}

type DeleteChirp struct {
	ChirpID   identity.MessageID `json:"chirp_id"`
	Timestamp int64              `json:"timestamp"`
}

func (*DeleteChirp) Object() string { return ObjectChirp }
func (*DeleteChirp) Action() string { return ActionDelete }

func (d *DeleteChirp) Verify(identity.Base64URLData) error {
	if len(d.ChirpID) == 0 {
		return malformed("chirp_id is empty")
	}
	return nil
}
