package domain

import (
	"sort"

	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
)

// castBallot is the latest vote of one sender for one question.
type castBallot struct {
	sender  identity.PublicKey
	vote    messagedata.Vote
	arrival uint64
}

// ballotBox keeps one ballot per (sender, question). A newer arrival
// replaces the older one.
type ballotBox struct {
	ballots map[string]castBallot
	arrival uint64
}

func newBallotBox() *ballotBox {
	return &ballotBox{ballots: map[string]castBallot{}}
}

func (b *ballotBox) cast(sender identity.PublicKey, v messagedata.Vote) {
	b.arrival++
	b.ballots[sender.String()+"|"+v.Question.String()] = castBallot{sender: sender, vote: v, arrival: b.arrival}
}

// retained returns the ballots in arrival order.
func (b *ballotBox) retained() []castBallot {
	out := make([]castBallot, 0, len(b.ballots))
	for _, c := range b.ballots {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].arrival < out[j].arrival })
	return out
}

func (b *ballotBox) voters() int {
	seen := map[string]bool{}
	for _, c := range b.ballots {
		seen[c.sender.String()] = true
	}
	return len(seen)
}

func (sm *StateMachine) election(id identity.Base64URLData) (*Election, error) {
	e, ok := sm.repo.elections[id.String()]
	if !ok {
		return nil, &UnknownEntityError{Kind: kindElection, ID: id}
	}
	return e, nil
}

func (sm *StateMachine) requireElectionState(e *Election, action string, states ...ElectionState) error {
	for _, s := range states {
		if e.State == s {
			return nil
		}
	}
	return &InvalidStateTransitionError{Entity: kindElection, ID: e.ID, State: string(e.State), Action: action}
}

func (sm *StateMachine) setupElection(env Envelope, d *messagedata.SetupElection) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	if _, ok := sm.repo.elections[d.ID.String()]; ok {
		return Outcome{}, &DuplicateResourceError{Kind: kindElection, ID: d.ID}
	}
	e := &Election{
		ID:        d.ID,
		Name:      d.Name,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
		Questions: append([]messagedata.Question{}, d.Questions...),
		State:     ElectionCreated,
		ballots:   newBallotBox(),
	}
	sm.repo.elections[d.ID.String()] = e
	sm.repo.schedule(kindElection, d.CreatedAt, d.ID)

	produced := []identity.Base64URLData{d.ID}
	for _, q := range d.Questions {
		produced = append(produced, q.ID)
	}
	return Outcome{Produced: produced}, nil
}

func (sm *StateMachine) keyElection(env Envelope, d *messagedata.KeyElection) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	e, err := sm.election(d.Election)
	if err != nil {
		return Outcome{}, err
	}
	if e.Version != messagedata.SecretBallot {
		return Outcome{}, invalidData("election %s is not a secret ballot", e.ID)
	}
	if err := sm.requireElectionState(e, d.Action(), ElectionCreated); err != nil {
		return Outcome{}, err
	}
	if !e.ElectionKey.IsEmpty() {
		return Outcome{}, &DuplicateResourceError{Kind: "election key", ID: e.ID}
	}
	e.ElectionKey = d.ElectionKey
	return Outcome{}, nil
}

func (sm *StateMachine) openElection(env Envelope, d *messagedata.OpenElection) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	e, err := sm.election(d.Election)
	if err != nil {
		return Outcome{}, err
	}
	if err := sm.requireElectionState(e, d.Action(), ElectionCreated); err != nil {
		return Outcome{}, err
	}
	if d.OpenedAt < e.CreatedAt {
		return Outcome{}, invalidData("election opened at %d before its creation %d", d.OpenedAt, e.CreatedAt)
	}
	e.State = ElectionOpened
	e.OpenedAt = d.OpenedAt
	return Outcome{}, nil
}

func (sm *StateMachine) castVote(env Envelope, d *messagedata.CastVote) (Outcome, error) {
	e, err := sm.election(d.Election)
	if err != nil {
		return Outcome{}, err
	}
	if err := sm.requireElectionState(e, d.Action(), ElectionOpened); err != nil {
		return Outcome{}, err
	}
	for _, v := range d.Votes {
		if err := checkVote(e, v); err != nil {
			return Outcome{}, err
		}
	}
	for _, v := range d.Votes {
		e.ballots.cast(env.Sender(), v)
	}
	e.Voters = e.ballots.voters()
	return Outcome{}, nil
}

func checkVote(e *Election, v messagedata.Vote) error {
	q, ok := e.question(v.Question)
	if !ok {
		return invalidData("question %s is not part of election %s", v.Question, e.ID)
	}
	if e.Version == messagedata.SecretBallot {
		if v.Vote == nil || !v.Vote.IsEncrypted() {
			return invalidData("vote %s of a secret ballot is not encrypted", v.ID)
		}
		expected := messagedata.EncryptedVoteID(e.ID, q.ID, v.Vote.Encrypted)
		if !v.ID.Equal(expected) {
			return &InvalidMessageIDError{Err: mismatch("vote id", expected, v.ID)}
		}
		return nil
	}

	var indexes []int
	if v.Vote != nil {
		if v.Vote.IsEncrypted() {
			return invalidData("vote %s of an open ballot is encrypted", v.ID)
		}
		indexes = v.Vote.Indexes
	}
	expected := messagedata.ElectionVoteID(e.ID, q.ID, indexes, v.WriteIn, q.WriteIn)
	if !v.ID.Equal(expected) {
		return &InvalidMessageIDError{Err: mismatch("vote id", expected, v.ID)}
	}
	if q.WriteIn {
		if v.WriteIn == "" {
			return invalidData("vote %s has an empty write-in", v.ID)
		}
		return nil
	}
	return checkIndexes(q, indexes)
}

func checkIndexes(q messagedata.Question, indexes []int) error {
	if len(indexes) == 0 {
		return invalidData("no ballot option selected for %q", q.Question)
	}
	if q.VotingMethod == messagedata.PluralityMethod && len(indexes) != 1 {
		return invalidData("plurality question %q takes exactly one option, got %d", q.Question, len(indexes))
	}
	seen := map[int]bool{}
	for _, i := range indexes {
		if i < 0 || i >= len(q.BallotOptions) {
			return invalidData("ballot option %d out of range for %q", i, q.Question)
		}
		if seen[i] {
			return invalidData("ballot option %d selected twice for %q", i, q.Question)
		}
		seen[i] = true
	}
	return nil
}

func (sm *StateMachine) endElection(env Envelope, d *messagedata.EndElection) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	e, err := sm.election(d.Election)
	if err != nil {
		return Outcome{}, err
	}
	if err := sm.requireElectionState(e, d.Action(), ElectionOpened); err != nil {
		return Outcome{}, err
	}
	if d.CreatedAt < e.OpenedAt {
		return Outcome{}, invalidData("election ended at %d before it opened at %d", d.CreatedAt, e.OpenedAt)
	}

	retained := e.ballots.retained()
	ids := make([]identity.Base64URLData, len(retained))
	for i, c := range retained {
		ids[i] = c.vote.ID
	}
	registered := messagedata.RegisteredVotes(ids)
	if !registered.Equal(d.RegisteredVotes) {
		sm.logger.Warn("registered votes differ from the local ballot box",
			"election", e.ID.String(),
			"expected", registered.String(),
			"got", d.RegisteredVotes.String())
	}

	e.State = ElectionClosed
	e.EndedAt = d.CreatedAt
	e.RegisteredVotes = registered
	e.Tally = sm.tally(e, retained)
	return Outcome{}, nil
}

func (sm *StateMachine) electionResult(env Envelope, d *messagedata.ElectionResult) (Outcome, error) {
	if err := sm.requireOrganizer(env); err != nil {
		return Outcome{}, err
	}
	e, err := sm.electionOf(env)
	if err != nil {
		return Outcome{}, err
	}
	if err := sm.requireElectionState(e, d.Action(), ElectionClosed); err != nil {
		return Outcome{}, err
	}
	for _, r := range d.Questions {
		if _, ok := e.question(r.ID); !ok {
			return Outcome{}, invalidData("result for unknown question %s", r.ID)
		}
	}
	e.State = ElectionResultsReady
	e.Results = append([]messagedata.QuestionResult{}, d.Questions...)
	return Outcome{}, nil
}

// electionOf finds the election of a message that does not name it, from
// its channel /root/<lao>/<election>.
func (sm *StateMachine) electionOf(env Envelope) (*Election, error) {
	if len(env.Channel.Segments) == 0 {
		return nil, invalidData("election#result published outside an election channel")
	}
	id, err := identity.DecodeBase64URL(env.Channel.Segments[0])
	if err != nil {
		return nil, invalidData("channel segment %q is not an election id", env.Channel.Segments[0])
	}
	return sm.election(id)
}

// tally counts the retained ballots per question. Secret ballots are
// decrypted when this device holds the election key; otherwise nil is
// returned.
func (sm *StateMachine) tally(e *Election, retained []castBallot) []messagedata.QuestionResult {
	var decrypt func(ciphertext string) (int, error)
	if e.Version == messagedata.SecretBallot {
		if sm.keys == nil {
			return nil
		}
		key, ok := sm.keys.ElectionKey(e.ID)
		if !ok {
			return nil
		}
		decrypt = func(ciphertext string) (int, error) {
			ct, err := identity.DecodeBase64URL(ciphertext)
			if err != nil {
				return 0, err
			}
			return key.DecryptVote(ct)
		}
	}

	counts := make(map[string][]int, len(e.Questions))
	for _, q := range e.Questions {
		counts[q.ID.String()] = make([]int, len(q.BallotOptions))
	}
	for _, c := range retained {
		q, _ := e.question(c.vote.Question)
		row := counts[q.ID.String()]
		switch {
		case decrypt != nil:
			idx, err := decrypt(c.vote.Vote.Encrypted)
			if err != nil || idx >= len(row) {
				sm.logger.Warn("skipping undecryptable vote",
					"election", e.ID.String(),
					"vote", c.vote.ID.String(),
					"err", err)
				continue
			}
			row[idx]++
		case q.WriteIn:
			for i, o := range q.BallotOptions {
				if o == c.vote.WriteIn {
					row[i]++
				}
			}
		default:
			for _, idx := range c.vote.Vote.Indexes {
				row[idx]++
			}
		}
	}

	out := make([]messagedata.QuestionResult, 0, len(e.Questions))
	for _, q := range e.Questions {
		row := counts[q.ID.String()]
		result := messagedata.QuestionResult{ID: q.ID, Result: make([]messagedata.BallotCount, len(q.BallotOptions))}
		for i, o := range q.BallotOptions {
			result.Result[i] = messagedata.BallotCount{BallotOption: o, Count: row[i]}
		}
		out = append(out, result)
	}
	return out
}
