package domain

import (
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
)

type Lao struct {
	ID                     identity.Base64URLData      `json:"id"`
	Name                   string                      `json:"name"`
	Creation               int64                       `json:"creation"`
	LastModified           int64                       `json:"last_modified"`
	Organizer              identity.PublicKey          `json:"organizer"`
	Witnesses              []identity.PublicKey        `json:"witnesses"`
	ModificationID         identity.MessageID          `json:"modification_id,omitempty"`
	ModificationSignatures []protocol.WitnessSignature `json:"modification_signatures,omitempty"`
}

func (l Lao) clone() Lao {
	l.Witnesses = append([]identity.PublicKey{}, l.Witnesses...)
	l.ModificationSignatures = append([]protocol.WitnessSignature{}, l.ModificationSignatures...)
	return l
}

// IsWitness reports whether key is one of the LAO witnesses.
func (l Lao) IsWitness(key identity.PublicKey) bool {
	for _, w := range l.Witnesses {
		if w.Equal(key) {
			return true
		}
	}
	return false
}

// proposal is a recorded lao#update_properties waiting for a lao#state.
type proposal struct {
	update    *messagedata.UpdateLao
	messageID identity.MessageID
}

type RollCallState string

const (
	RollCallCreated RollCallState = "CREATED"
	RollCallOpened  RollCallState = "OPENED"
	RollCallClosed  RollCallState = "CLOSED"
)

type RollCall struct {
	ID            identity.Base64URLData `json:"id"`
	Name          string                 `json:"name"`
	Creation      int64                  `json:"creation"`
	ProposedStart int64                  `json:"proposed_start"`
	ProposedEnd   int64                  `json:"proposed_end"`
	Location      string                 `json:"location"`
	Description   string                 `json:"description,omitempty"`
	State         RollCallState          `json:"state"`
	OpenedAt      int64                  `json:"opened_at,omitempty"`
	ClosedAt      int64                  `json:"closed_at,omitempty"`
	Attendees     []identity.PublicKey   `json:"attendees"`
	// LastUpdateID is the id the next transition must reference.
	LastUpdateID identity.Base64URLData `json:"last_update_id"`
	// Transitions lists the ids of the roll call, creation first.
	Transitions []identity.Base64URLData `json:"transitions"`
}

func (r RollCall) clone() RollCall {
	r.Attendees = append([]identity.PublicKey{}, r.Attendees...)
	r.Transitions = append([]identity.Base64URLData{}, r.Transitions...)
	return r
}

type Meeting struct {
	ID                     identity.Base64URLData      `json:"id"`
	Name                   string                      `json:"name"`
	Creation               int64                       `json:"creation"`
	LastModified           int64                       `json:"last_modified"`
	Location               string                      `json:"location,omitempty"`
	Start                  int64                       `json:"start"`
	End                    int64                       `json:"end,omitempty"`
	LastMessageID          identity.MessageID          `json:"last_message_id"`
	ModificationSignatures []protocol.WitnessSignature `json:"modification_signatures,omitempty"`

	history map[string]bool
}

func (m Meeting) clone() Meeting {
	m.ModificationSignatures = append([]protocol.WitnessSignature{}, m.ModificationSignatures...)
	m.history = nil
	return m
}

type ElectionState string

const (
	ElectionCreated      ElectionState = "CREATED"
	ElectionOpened       ElectionState = "OPENED"
	ElectionClosed       ElectionState = "CLOSED"
	ElectionResultsReady ElectionState = "RESULTS_READY"
)

type Election struct {
	ID          identity.Base64URLData `json:"id"`
	Name        string                 `json:"name"`
	Version     string                 `json:"version"`
	CreatedAt   int64                  `json:"created_at"`
	StartTime   int64                  `json:"start_time"`
	EndTime     int64                  `json:"end_time"`
	Questions   []messagedata.Question `json:"questions"`
	State       ElectionState          `json:"state"`
	ElectionKey identity.Base64URLData `json:"election_key,omitempty"`
	OpenedAt    int64                  `json:"opened_at,omitempty"`
	EndedAt     int64                  `json:"ended_at,omitempty"`
	// RegisteredVotes is the hash of the retained vote ids, as computed
	// locally when the election ended.
	RegisteredVotes identity.Base64URLData `json:"registered_votes,omitempty"`
	// Tally is computed locally on end. It is nil for a secret ballot whose
	// key this device does not hold.
	Tally   []messagedata.QuestionResult `json:"tally,omitempty"`
	Results []messagedata.QuestionResult `json:"results,omitempty"`
	Voters  int                          `json:"voters"`

	ballots *ballotBox
}

func (e Election) clone() Election {
	e.Questions = append([]messagedata.Question{}, e.Questions...)
	e.Tally = append([]messagedata.QuestionResult(nil), e.Tally...)
	e.Results = append([]messagedata.QuestionResult(nil), e.Results...)
	e.ballots = nil
	return e
}

func (e *Election) question(id identity.Base64URLData) (messagedata.Question, bool) {
	for _, q := range e.Questions {
		if q.ID.Equal(id) {
			return q, true
		}
	}
	return messagedata.Question{}, false
}

// ConsensusView is the read-only form of a consensus instance.
type ConsensusView struct {
	InstanceID identity.Base64URLData   `json:"instance_id"`
	ProposalID identity.MessageID       `json:"proposal_id"`
	Key        messagedata.ConsensusKey `json:"key"`
	Value      string                   `json:"value"`
	CreatedAt  int64                    `json:"created_at"`
	Proposer   identity.PublicKey       `json:"proposer"`
	Acceptors  []identity.PublicKey     `json:"acceptors"`
	Accepts    int                      `json:"accepts"`
	Accepted   bool                     `json:"accepted"`
	Learned    bool                     `json:"learned"`
}

type Chirp struct {
	ID        identity.MessageID `json:"id"`
	Author    identity.PublicKey `json:"author"`
	Text      string             `json:"text"`
	ParentID  identity.MessageID `json:"parent_id,omitempty"`
	Timestamp int64              `json:"timestamp"`
	Deleted   bool               `json:"deleted"`
}
