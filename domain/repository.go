package domain

import (
	"github.com/google/btree"

	"github.com/luca-patrignani/popcore/consensus"
	"github.com/luca-patrignani/popcore/identity"
)

const (
	kindLao         = "lao"
	kindRollCall    = "roll_call"
	kindMeeting     = "meeting"
	kindElection    = "election"
	kindConsensus   = "consensus"
	kindChirp       = "chirp"
	kindTransaction = "transaction"
	kindMessage     = "message"
	kindProposal    = "lao update"
)

// eventRef orders the scheduled entities of a LAO by creation time.
type eventRef struct {
	creation int64
	kind     string
	id       string
}

func lessEvent(a, b eventRef) bool {
	if a.creation != b.creation {
		return a.creation < b.creation
	}
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	return a.id < b.id
}

// Repository holds the entities of one LAO. It has a single writer, the
// StateMachine; everyone else reads Snapshots.
type Repository struct {
	laoID identity.Base64URLData
	lao   *Lao

	proposals        map[string]proposal
	rollCalls        map[string]*RollCall
	rollCallUpdates  map[string]string
	meetings         map[string]*Meeting
	elections        map[string]*Election
	book             *consensus.Book
	chirps           map[string]*Chirp
	chirpOrder       []string
	transactions     map[string]*CoinTransaction
	transactionOrder []string

	events   *btree.BTreeG[eventRef]
	produced map[string]bool
	applied  int
}

func NewRepository(laoID identity.Base64URLData) *Repository {
	return &Repository{
		laoID:           laoID,
		proposals:       map[string]proposal{},
		rollCalls:       map[string]*RollCall{},
		rollCallUpdates: map[string]string{},
		meetings:        map[string]*Meeting{},
		elections:       map[string]*Election{},
		book:            consensus.NewBook(),
		chirps:          map[string]*Chirp{},
		transactions:    map[string]*CoinTransaction{},
		events:          btree.NewG[eventRef](8, lessEvent),
		produced:        map[string]bool{},
	}
}

func (r *Repository) LaoID() identity.Base64URLData { return r.laoID }

// Lao returns a copy of the LAO, if it was created.
func (r *Repository) Lao() (Lao, bool) {
	if r.lao == nil {
		return Lao{}, false
	}
	return r.lao.clone(), true
}

func (r *Repository) RollCall(id identity.Base64URLData) (RollCall, bool) {
	rc, ok := r.rollCalls[id.String()]
	if !ok {
		return RollCall{}, false
	}
	return rc.clone(), true
}

func (r *Repository) Meeting(id identity.Base64URLData) (Meeting, bool) {
	m, ok := r.meetings[id.String()]
	if !ok {
		return Meeting{}, false
	}
	return m.clone(), true
}

func (r *Repository) Election(id identity.Base64URLData) (Election, bool) {
	e, ok := r.elections[id.String()]
	if !ok {
		return Election{}, false
	}
	return e.clone(), true
}

func (r *Repository) Chirp(id identity.MessageID) (Chirp, bool) {
	c, ok := r.chirps[id.String()]
	if !ok {
		return Chirp{}, false
	}
	return *c, true
}

// Produced reports whether id was produced by a committed message.
func (r *Repository) Produced(id identity.Base64URLData) bool {
	return r.produced[id.String()]
}

func (r *Repository) produce(ids ...identity.Base64URLData) {
	for _, id := range ids {
		r.produced[id.String()] = true
	}
}

func (r *Repository) schedule(kind string, creation int64, id identity.Base64URLData) {
	r.events.ReplaceOrInsert(eventRef{creation: creation, kind: kind, id: id.String()})
}

// Snapshot is an immutable copy of the state of a LAO.
type Snapshot struct {
	LaoID        identity.Base64URLData `json:"lao_id"`
	Lao          *Lao                   `json:"lao,omitempty"`
	RollCalls    []RollCall             `json:"roll_calls"`
	Meetings     []Meeting              `json:"meetings"`
	Elections    []Election             `json:"elections"`
	Consensus    []ConsensusView        `json:"consensus"`
	Chirps       []Chirp                `json:"chirps"`
	Transactions []CoinTransaction      `json:"transactions"`
	Applied      int                    `json:"applied"`
	Pending      int                    `json:"pending"`
}

// Snapshot copies the repository. Roll calls, meetings and elections are
// ordered by creation time.
func (r *Repository) Snapshot() Snapshot {
	s := Snapshot{
		LaoID:        r.laoID,
		RollCalls:    []RollCall{},
		Meetings:     []Meeting{},
		Elections:    []Election{},
		Consensus:    []ConsensusView{},
		Chirps:       []Chirp{},
		Transactions: []CoinTransaction{},
		Applied:      r.applied,
	}
	if r.lao != nil {
		l := r.lao.clone()
		s.Lao = &l
	}
	r.events.Ascend(func(ev eventRef) bool {
		switch ev.kind {
		case kindRollCall:
			s.RollCalls = append(s.RollCalls, r.rollCalls[ev.id].clone())
		case kindMeeting:
			s.Meetings = append(s.Meetings, r.meetings[ev.id].clone())
		case kindElection:
			s.Elections = append(s.Elections, r.elections[ev.id].clone())
		case kindConsensus:
			inst, ok := r.book.Proposal(mustDecodeID(ev.id))
			if ok {
				s.Consensus = append(s.Consensus, viewOf(inst))
			}
		}
		return true
	})
	for _, id := range r.chirpOrder {
		s.Chirps = append(s.Chirps, *r.chirps[id])
	}
	for _, id := range r.transactionOrder {
		s.Transactions = append(s.Transactions, r.transactions[id].clone())
	}
	return s
}

func viewOf(inst *consensus.Instance) ConsensusView {
	return ConsensusView{
		InstanceID: inst.ID,
		ProposalID: inst.ProposalID,
		Key:        inst.Key,
		Value:      inst.Value,
		CreatedAt:  inst.CreatedAt,
		Proposer:   inst.Proposer,
		Acceptors:  inst.Acceptors(),
		Accepts:    inst.Accepts(),
		Accepted:   inst.Accepted(),
		Learned:    inst.Learned(),
	}
}

// mustDecodeID decodes an id this package encoded itself.
func mustDecodeID(s string) identity.MessageID {
	id, err := identity.ParseMessageID(s)
	if err != nil {
		panic(err)
	}
	return id
}
