package domain

import (
	"log/slog"
	"sync"
	"time"

	"github.com/luca-patrignani/popcore/ballot"
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
)

// Ledger is where the accepted messages of the LAO are kept, so witness
// signatures can be attached to them.
type Ledger interface {
	Contains(id identity.MessageID) bool
	AddWitnessSignature(id identity.MessageID, w protocol.WitnessSignature) (bool, error)
}

// ElectionKeys gives access to the election private keys this device holds.
type ElectionKeys interface {
	ElectionKey(electionID identity.Base64URLData) (*ballot.KeyPair, bool)
}

// KeyRing is an in-memory ElectionKeys.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]*ballot.KeyPair
}

func NewKeyRing() *KeyRing {
	return &KeyRing{keys: map[string]*ballot.KeyPair{}}
}

func (k *KeyRing) Add(electionID identity.Base64URLData, key *ballot.KeyPair) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[electionID.String()] = key
}

func (k *KeyRing) ElectionKey(electionID identity.Base64URLData) (*ballot.KeyPair, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[electionID.String()]
	return key, ok
}

// Outcome is what a committed message leaves behind.
type Outcome struct {
	// Produced lists the ids other messages may now reference.
	Produced []identity.Base64URLData
	// Learn is set when an instance proposed by the local device just
	// reached a majority; the caller publishes it.
	Learn *messagedata.Learn
}

type Option func(*StateMachine)

func WithLogger(logger *slog.Logger) Option {
	return func(sm *StateMachine) { sm.logger = logger }
}

// WithLocalKey tells the machine which key is the local device, to detect
// the consensus instances it proposed.
func WithLocalKey(key identity.PublicKey) Option {
	return func(sm *StateMachine) { sm.self = key }
}

func WithElectionKeys(keys ElectionKeys) Option {
	return func(sm *StateMachine) { sm.keys = keys }
}

func WithLedger(l Ledger) Option {
	return func(sm *StateMachine) { sm.ledger = l }
}

// WithClock sets the clock that timestamps the messages the machine emits.
func WithClock(now func() time.Time) Option {
	return func(sm *StateMachine) { sm.now = now }
}

// StateMachine applies the envelopes of one LAO. It is not safe for
// concurrent use; callers run it on a single worker.
type StateMachine struct {
	repo   *Repository
	self   identity.PublicKey
	ledger Ledger
	keys   ElectionKeys
	now    func() time.Time
	logger *slog.Logger
}

func NewStateMachine(laoID identity.Base64URLData, opts ...Option) *StateMachine {
	sm := &StateMachine{
		repo:   NewRepository(laoID),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(sm)
	}
	sm.logger = sm.logger.With("lao", laoID.String())
	return sm
}

func (sm *StateMachine) Repository() *Repository { return sm.repo }

// Snapshot copies the current state.
func (sm *StateMachine) Snapshot() Snapshot { return sm.repo.Snapshot() }

// Apply validates env against the current state and commits it. On error
// nothing is changed.
func (sm *StateMachine) Apply(env Envelope) (Outcome, error) {
	if laoID := env.LaoID(); !laoID.Equal(sm.repo.laoID) {
		return Outcome{}, invalidData("message for LAO %s applied to LAO %s", laoID, sm.repo.laoID)
	}
	if _, ok := env.Data.(*messagedata.CreateLao); !ok && sm.repo.lao == nil {
		return Outcome{}, &UnknownEntityError{Kind: kindLao, ID: sm.repo.laoID}
	}

	var (
		out Outcome
		err error
	)
	switch d := env.Data.(type) {
	case *messagedata.CreateLao:
		out, err = sm.createLao(env, d)
	case *messagedata.UpdateLao:
		out, err = sm.updateLao(env, d)
	case *messagedata.StateLao:
		out, err = sm.stateLao(env, d)
	case *messagedata.CreateMeeting:
		out, err = sm.createMeeting(env, d)
	case *messagedata.StateMeeting:
		out, err = sm.stateMeeting(env, d)
	case *messagedata.CreateRollCall:
		out, err = sm.createRollCall(env, d)
	case *messagedata.OpenRollCall:
		out, err = sm.openRollCall(env, d)
	case *messagedata.CloseRollCall:
		out, err = sm.closeRollCall(env, d)
	case *messagedata.SetupElection:
		out, err = sm.setupElection(env, d)
	case *messagedata.KeyElection:
		out, err = sm.keyElection(env, d)
	case *messagedata.OpenElection:
		out, err = sm.openElection(env, d)
	case *messagedata.CastVote:
		out, err = sm.castVote(env, d)
	case *messagedata.EndElection:
		out, err = sm.endElection(env, d)
	case *messagedata.ElectionResult:
		out, err = sm.electionResult(env, d)
	case *messagedata.Elect:
		out, err = sm.elect(env, d)
	case *messagedata.ElectAccept:
		out, err = sm.electAccept(env, d)
	case *messagedata.Learn:
		out, err = sm.learn(env, d)
	case *messagedata.WitnessMessage:
		out, err = sm.witness(env, d)
	case *messagedata.AddChirp:
		out, err = sm.addChirp(env, d)
	case *messagedata.DeleteChirp:
		out, err = sm.deleteChirp(env, d)
	case *messagedata.PostTransaction:
		out, err = sm.postTransaction(env, d)
	default:
		return Outcome{}, &UnsupportedDataTypeError{Object: env.Data.Object(), Action: env.Data.Action()}
	}
	if err != nil {
		return Outcome{}, err
	}

	out.Produced = append(out.Produced, env.MessageID().Data())
	sm.repo.produce(out.Produced...)
	sm.repo.applied++
	sm.logger.Debug("message applied",
		"object", env.Data.Object(),
		"action", env.Data.Action(),
		"message_id", env.MessageID().String())
	return out, nil
}

func (sm *StateMachine) requireOrganizer(env Envelope) error {
	if !env.Sender().Equal(sm.repo.lao.Organizer) {
		return &AccessDeniedError{
			Sender: env.Sender(),
			Reason: env.Data.Object() + "#" + env.Data.Action() + " is reserved to the organizer",
		}
	}
	return nil
}
