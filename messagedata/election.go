package messagedata

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/luca-patrignani/popcore/identity"
)

const (
	OpenBallot   = "OPEN_BALLOT"
	SecretBallot = "SECRET_BALLOT"
)

const (
	PluralityMethod = "Plurality"
	ApprovalMethod  = "Approval"
)

type Question struct {
	ID            identity.Base64URLData `json:"id"`
	Question      string                 `json:"question"`
	VotingMethod  string                 `json:"voting_method"`
	BallotOptions []string               `json:"ballot_options"`
	WriteIn       bool                   `json:"write_in"`
}

func NewQuestion(electionID identity.Base64URLData, question, method string, options []string, writeIn bool) Question {
	return Question{
		ID:            QuestionID(electionID, question),
		Question:      question,
		VotingMethod:  method,
		BallotOptions: options,
		WriteIn:       writeIn,
	}
}

type SetupElection struct {
	ID        identity.Base64URLData `json:"id"`
	Lao       identity.Base64URLData `json:"lao"`
	Name      string                 `json:"name"`
	Version   string                 `json:"version"`
	CreatedAt int64                  `json:"created_at"`
	StartTime int64                  `json:"start_time"`
	EndTime   int64                  `json:"end_time"`
	Questions []Question             `json:"questions"`
}

func NewSetupElection(laoID identity.Base64URLData, name, version string, createdAt, start, end int64) *SetupElection {
	return &SetupElection{
		ID:        ElectionID(laoID, createdAt, name),
		Lao:       laoID,
		Name:      name,
		Version:   version,
		CreatedAt: createdAt,
		StartTime: start,
		EndTime:   end,
		Questions: []Question{},
	}
}

// AddQuestion appends a question whose id is derived from the election id.
func (s *SetupElection) AddQuestion(question, method string, options []string, writeIn bool) Question {
	q := NewQuestion(s.ID, question, method, options, writeIn)
	s.Questions = append(s.Questions, q)
	return q
}

func (*SetupElection) Object() string { return ObjectElection }
func (*SetupElection) Action() string { return ActionSetup }

func (s *SetupElection) Verify(laoID identity.Base64URLData) error {
	if err := checkID("election lao", s.Lao, laoID); err != nil {
		return err
	}
	if s.Name == "" {
		return malformed("election name is empty")
	}
	if s.Version != OpenBallot && s.Version != SecretBallot {
		return malformed("unknown election version %q", s.Version)
	}
	if s.StartTime < s.CreatedAt {
		return malformed("election starts at %d before its creation %d", s.StartTime, s.CreatedAt)
	}
	if s.EndTime < s.StartTime {
		return malformed("election ends at %d before it starts at %d", s.EndTime, s.StartTime)
	}
	if len(s.Questions) == 0 {
		return malformed("election has no question")
	}
	if err := checkID("election id", s.ID, ElectionID(laoID, s.CreatedAt, s.Name)); err != nil {
		return err
	}
	seen := make(map[string]bool, len(s.Questions))
	for _, q := range s.Questions {
		if seen[q.Question] {
			return malformed("question %q asked twice", q.Question)
		}
		seen[q.Question] = true
		if err := q.verify(s.ID); err != nil {
			return err
		}
	}
	return nil
}

func (q Question) verify(electionID identity.Base64URLData) error {
	if q.Question == "" {
		return malformed("question is empty")
	}
	if q.VotingMethod != PluralityMethod && q.VotingMethod != ApprovalMethod {
		return malformed("unknown voting method %q", q.VotingMethod)
	}
	if len(q.BallotOptions) == 0 {
		return malformed("question %q has no ballot option", q.Question)
	}
	options := make(map[string]bool, len(q.BallotOptions))
	for _, o := range q.BallotOptions {
		if options[o] {
			return malformed("ballot option %q listed twice", o)
		}
		options[o] = true
	}
	return checkID("question id", q.ID, QuestionID(electionID, q.Question))
}

// KeyElection publishes the election public key on secret ballots.
type KeyElection struct {
	Election    identity.Base64URLData `json:"election"`
	ElectionKey identity.Base64URLData `json:"election_key"`
}

func (*KeyElection) Object() string { return ObjectElection }
func (*KeyElection) Action() string { return ActionKey }

func (k *KeyElection) Verify(identity.Base64URLData) error {
	if len(k.ElectionKey) != 32 {
		return malformed("election key is %d bytes, expected 32", len(k.ElectionKey))
	}
	return nil
}

type OpenElection struct {
	Lao      identity.Base64URLData `json:"lao"`
	Election identity.Base64URLData `json:"election"`
	OpenedAt int64                  `json:"opened_at"`
}

func (*OpenElection) Object() string { return ObjectElection }
func (*OpenElection) Action() string { return ActionOpen }

func (o *OpenElection) Verify(laoID identity.Base64URLData) error {
	return checkID("election lao", o.Lao, laoID)
}

// VoteValue is either a list of ballot option indexes or, on secret
// ballots, a base64url ciphertext. A bare integer decodes to a one-element
// list.
type VoteValue struct {
	Indexes   []int
	Encrypted string
}

func (v VoteValue) IsEncrypted() bool { return v.Encrypted != "" }

func (v VoteValue) MarshalJSON() ([]byte, error) {
	if v.IsEncrypted() {
		return json.Marshal(v.Encrypted)
	}
	if v.Indexes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Indexes)
}

func (v *VoteValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty vote")
	}
	switch b[0] {
	case '"':
		v.Indexes = nil
		return json.Unmarshal(b, &v.Encrypted)
	case '[':
		v.Encrypted = ""
		return json.Unmarshal(b, &v.Indexes)
	default:
		var i int
		if err := json.Unmarshal(b, &i); err != nil {
			return err
		}
		v.Encrypted = ""
		v.Indexes = []int{i}
		return nil
	}
}

type Vote struct {
	ID       identity.Base64URLData `json:"id"`
	Question identity.Base64URLData `json:"question"`
	Vote     *VoteValue             `json:"vote,omitempty"`
	WriteIn  string                 `json:"write_in,omitempty"`
}

// NewOpenVote builds a vote for an open ballot question.
func NewOpenVote(electionID identity.Base64URLData, q Question, indexes []int, writeIn string) Vote {
	v := Vote{
		ID:       ElectionVoteID(electionID, q.ID, indexes, writeIn, q.WriteIn),
		Question: q.ID,
	}
	if q.WriteIn {
		v.WriteIn = writeIn
	} else {
		v.Vote = &VoteValue{Indexes: indexes}
	}
	return v
}

// NewEncryptedVote builds a vote carrying a ciphertext.
func NewEncryptedVote(electionID, questionID identity.Base64URLData, ciphertext string) Vote {
	return Vote{
		ID:       EncryptedVoteID(electionID, questionID, ciphertext),
		Question: questionID,
		Vote:     &VoteValue{Encrypted: ciphertext},
	}
}

type CastVote struct {
	Lao       identity.Base64URLData `json:"lao"`
	Election  identity.Base64URLData `json:"election"`
	CreatedAt int64                  `json:"created_at"`
	Votes     []Vote                 `json:"votes"`
}

func (*CastVote) Object() string { return ObjectElection }
func (*CastVote) Action() string { return ActionCastVote }

func (c *CastVote) Verify(laoID identity.Base64URLData) error {
	if err := checkID("election lao", c.Lao, laoID); err != nil {
		return err
	}
	if len(c.Votes) == 0 {
		return malformed("cast_vote carries no vote")
	}
	for _, v := range c.Votes {
		if len(v.Question) == 0 {
			return malformed("vote %s has no question", v.ID)
		}
		if v.Vote == nil && v.WriteIn == "" {
			return malformed("vote %s has neither vote nor write_in", v.ID)
		}
	}
	return nil
}

type EndElection struct {
	Lao             identity.Base64URLData `json:"lao"`
	Election        identity.Base64URLData `json:"election"`
	CreatedAt       int64                  `json:"created_at"`
	RegisteredVotes identity.Base64URLData `json:"registered_votes"`
}

func (*EndElection) Object() string { return ObjectElection }
func (*EndElection) Action() string { return ActionEnd }

func (e *EndElection) Verify(laoID identity.Base64URLData) error {
	return checkID("election lao", e.Lao, laoID)
}

type BallotCount struct {
	BallotOption string `json:"ballot_option"`
	Count        int    `json:"count"`
}

type QuestionResult struct {
	ID     identity.Base64URLData `json:"id"`
	Result []BallotCount          `json:"result"`
}

type ElectionResult struct {
	Questions []QuestionResult `json:"questions"`
}

func (*ElectionResult) Object() string { return ObjectElection }
func (*ElectionResult) Action() string { return ActionResult }

func (r *ElectionResult) Verify(identity.Base64URLData) error {
	for _, q := range r.Questions {
		for _, c := range q.Result {
			if c.Count < 0 {
				return malformed("negative count for %q", c.BallotOption)
			}
		}
	}
	return nil
}
