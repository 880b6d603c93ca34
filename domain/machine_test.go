package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/popcore/ballot"
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/keystore"
	"github.com/luca-patrignani/popcore/ledger"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
)

const creation = int64(1623825071)

// clock is the fixture's fixed time, a minute after the LAO creation.
func clock() time.Time { return time.Unix(creation+60, 0) }

type fixture struct {
	t         *testing.T
	organizer *keystore.Memory
	witnesses []*keystore.Memory
	laoID     identity.Base64URLData
	channel   string
	ledger    *ledger.Ledger
	keys      *KeyRing
	sm        *StateMachine
}

func newKeys(t *testing.T) *keystore.Memory {
	t.Helper()
	k, err := keystore.NewMemory()
	require.NoError(t, err)
	return k
}

// newFixture creates a LAO with n witnesses, the organizer being the local
// device.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	f := &fixture{t: t, organizer: newKeys(t), ledger: ledger.New(), keys: NewKeyRing()}
	var witnessKeys []identity.PublicKey
	for i := 0; i < n; i++ {
		w := newKeys(t)
		f.witnesses = append(f.witnesses, w)
		witnessKeys = append(witnessKeys, w.PublicKey())
	}
	create := messagedata.NewCreateLao(f.organizer.PublicKey(), "LAO", creation, witnessKeys)
	f.laoID = create.ID
	f.channel = protocol.LaoChannel(f.laoID.String())
	f.sm = NewStateMachine(f.laoID,
		WithLocalKey(f.organizer.PublicKey()),
		WithLedger(f.ledger),
		WithElectionKeys(f.keys),
		WithClock(clock))
	_, err := f.apply(f.organizer, protocol.Root, create)
	require.NoError(t, err)
	return f
}

func (f *fixture) envelope(signer *keystore.Memory, channel string, d messagedata.Data) Envelope {
	f.t.Helper()
	raw, err := messagedata.Encode(d)
	require.NoError(f.t, err)
	msg, err := protocol.NewMessage(signer, raw)
	require.NoError(f.t, err)
	env, err := Open(channel, msg)
	require.NoError(f.t, err)
	return env
}

func (f *fixture) apply(signer *keystore.Memory, channel string, d messagedata.Data) (Outcome, error) {
	f.t.Helper()
	return f.applyEnvelope(f.envelope(signer, channel, d))
}

func (f *fixture) applyEnvelope(env Envelope) (Outcome, error) {
	f.t.Helper()
	out, err := f.sm.Apply(env)
	if err == nil {
		_, lerr := f.ledger.Append(env.Channel.String(), env.Message, ledger.Metadata{})
		require.NoError(f.t, lerr)
	}
	return out, err
}

func (f *fixture) witnessSignatures(id identity.MessageID) []protocol.WitnessSignature {
	f.t.Helper()
	for _, b := range f.ledger.Records() {
		if b.Message.MessageID.Equal(id) {
			return b.Message.WitnessSignatures
		}
	}
	f.t.Fatalf("message %s not recorded", id)
	return nil
}

func TestCreateLao_State(t *testing.T) {
	f := newFixture(t, 2)
	lao, ok := f.sm.Repository().Lao()
	require.True(t, ok)
	require.Equal(t, "LAO", lao.Name)
	require.Len(t, lao.Witnesses, 2)
	require.True(t, f.sm.Repository().Produced(f.laoID))

	_, err := f.apply(f.organizer, f.channel, messagedata.NewCreateLao(f.organizer.PublicKey(), "LAO", creation, nil))
	var dup *DuplicateResourceError
	require.ErrorAs(t, err, &dup)
}

func TestCreateLao_OrganizerMustSend(t *testing.T) {
	organizer := newKeys(t)
	create := messagedata.NewCreateLao(organizer.PublicKey(), "LAO", creation, nil)
	sm := NewStateMachine(create.ID)
	f := &fixture{t: t, sm: sm, ledger: ledger.New()}
	_, err := f.apply(newKeys(t), protocol.Root, create)
	var denied *AccessDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, protocol.CodeAccessDenied, Code(err))
}

func TestMessageBeforeLao_IsUnknown(t *testing.T) {
	organizer := newKeys(t)
	create := messagedata.NewCreateLao(organizer.PublicKey(), "LAO", creation, nil)
	sm := NewStateMachine(create.ID)
	f := &fixture{t: t, sm: sm, ledger: ledger.New()}

	rc := messagedata.NewCreateRollCall(create.ID, "party", creation+1, creation+2, creation+3, "hall", "")
	_, err := f.apply(organizer, protocol.LaoChannel(create.ID.String()), rc)
	id, ok := IsUnknownEntity(err)
	require.True(t, ok)
	require.True(t, id.Equal(create.ID))
}

func TestRollCall_Lifecycle(t *testing.T) {
	f := newFixture(t, 0)
	create := messagedata.NewCreateRollCall(f.laoID, "party", creation+10, creation+20, creation+30, "hall", "")
	_, err := f.apply(f.organizer, f.channel, create)
	require.NoError(t, err)

	open := messagedata.NewOpenRollCall(f.laoID, create.ID, creation+20)
	out, err := f.apply(f.organizer, f.channel, open)
	require.NoError(t, err)
	require.True(t, out.Produced[0].Equal(open.UpdateID))

	attendee := newKeys(t).PublicKey()
	closing := messagedata.NewCloseRollCall(f.laoID, open.UpdateID, creation+30, []identity.PublicKey{attendee})
	_, err = f.apply(f.organizer, f.channel, closing)
	require.NoError(t, err)

	rc, ok := f.sm.Repository().RollCall(create.ID)
	require.True(t, ok)
	require.Equal(t, RollCallClosed, rc.State)
	require.Len(t, rc.Attendees, 1)
	require.Len(t, rc.Transitions, 3)

	reopen := messagedata.NewReopenRollCall(f.laoID, closing.UpdateID, creation+40)
	_, err = f.apply(f.organizer, f.channel, reopen)
	require.NoError(t, err)
	rc, _ = f.sm.Repository().RollCall(create.ID)
	require.Equal(t, RollCallOpened, rc.State)
	require.True(t, rc.LastUpdateID.Equal(reopen.UpdateID))
}

func TestRollCall_WrongReferences(t *testing.T) {
	f := newFixture(t, 0)
	create := messagedata.NewCreateRollCall(f.laoID, "party", creation+10, creation+20, creation+30, "hall", "")
	_, err := f.apply(f.organizer, f.channel, create)
	require.NoError(t, err)

	// a reference nobody produced waits for its predecessor
	bogus := messagedata.NewCloseRollCall(f.laoID, identity.Hash("nope"), creation+30, nil)
	_, err = f.apply(f.organizer, f.channel, bogus)
	id, ok := IsUnknownEntity(err)
	require.True(t, ok)
	require.True(t, id.Equal(identity.Hash("nope")))

	open := messagedata.NewOpenRollCall(f.laoID, create.ID, creation+20)
	_, err = f.apply(f.organizer, f.channel, open)
	require.NoError(t, err)

	// the creation id is superseded by the open
	stale := messagedata.NewCloseRollCall(f.laoID, create.ID, creation+30, nil)
	_, err = f.apply(f.organizer, f.channel, stale)
	var staleErr *StaleReferenceError
	require.ErrorAs(t, err, &staleErr)

	// reopening an opened roll call is not a valid transition
	reopen := messagedata.NewReopenRollCall(f.laoID, open.UpdateID, creation+25)
	_, err = f.apply(f.organizer, f.channel, reopen)
	var transition *InvalidStateTransitionError
	require.ErrorAs(t, err, &transition)
	require.Equal(t, protocol.CodeInvalidAction, Code(err))

	rc, _ := f.sm.Repository().RollCall(create.ID)
	require.Equal(t, RollCallOpened, rc.State)
}

func TestRollCall_OnlyOrganizer(t *testing.T) {
	f := newFixture(t, 1)
	create := messagedata.NewCreateRollCall(f.laoID, "party", creation+10, creation+20, creation+30, "hall", "")
	_, err := f.apply(f.witnesses[0], f.channel, create)
	var denied *AccessDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestMeeting_StateReferencesLastMessage(t *testing.T) {
	f := newFixture(t, 1)
	create := messagedata.NewCreateMeeting(f.laoID, "standup", creation+10, creation+20, creation+30, "room")
	env := f.envelope(f.organizer, f.channel, create)
	_, err := f.applyEnvelope(env)
	require.NoError(t, err)

	sig, err := f.witnesses[0].Sign(env.MessageID())
	require.NoError(t, err)
	state := &messagedata.StateMeeting{
		ID:             create.ID,
		Name:           "standup (moved)",
		Creation:       create.Creation,
		LastModified:   creation + 15,
		Location:       "garden",
		Start:          create.Start,
		End:            create.End,
		ModificationID: env.MessageID(),
		ModificationSignatures: []protocol.WitnessSignature{
			{Witness: f.witnesses[0].PublicKey(), Signature: sig},
			{Witness: f.organizer.PublicKey(), Signature: sig},
		},
	}
	stateEnv := f.envelope(f.organizer, f.channel, state)
	_, err = f.applyEnvelope(stateEnv)
	require.NoError(t, err)

	m, ok := f.sm.Repository().Meeting(create.ID)
	require.True(t, ok)
	require.Equal(t, "garden", m.Location)
	require.Len(t, m.ModificationSignatures, 1)
	require.True(t, m.LastMessageID.Equal(stateEnv.MessageID()))

	// the creation message is no longer the last one
	state.LastModified = creation + 16
	_, err = f.apply(f.organizer, f.channel, state)
	var staleErr *StaleReferenceError
	require.ErrorAs(t, err, &staleErr)
}

func TestLao_UpdateThenState(t *testing.T) {
	f := newFixture(t, 1)
	lao, _ := f.sm.Repository().Lao()
	newWitness := newKeys(t).PublicKey()
	update := &messagedata.UpdateLao{
		ID:           messagedata.LaoID(lao.Organizer, lao.Creation, "Renamed"),
		Name:         "Renamed",
		LastModified: creation + 100,
		Witnesses:    append(lao.Witnesses, newWitness),
	}
	updateEnv := f.envelope(f.organizer, f.channel, update)

	state := &messagedata.StateLao{
		ID:             f.laoID,
		Name:           "Renamed",
		Creation:       creation,
		LastModified:   creation + 100,
		Organizer:      lao.Organizer,
		Witnesses:      update.Witnesses,
		ModificationID: updateEnv.MessageID(),
	}
	sig, err := f.witnesses[0].Sign(updateEnv.MessageID())
	require.NoError(t, err)
	state.ModificationSignatures = []protocol.WitnessSignature{
		{Witness: f.witnesses[0].PublicKey(), Signature: sig},
		{Witness: newWitness, Signature: sig},
	}

	// the state arrives first and waits for the proposal
	_, err = f.apply(f.organizer, f.channel, state)
	id, ok := IsUnknownEntity(err)
	require.True(t, ok)
	require.True(t, id.Equal(updateEnv.MessageID().Data()))

	_, err = f.applyEnvelope(updateEnv)
	require.NoError(t, err)
	_, err = f.apply(f.organizer, f.channel, state)
	require.NoError(t, err)

	lao, _ = f.sm.Repository().Lao()
	require.Equal(t, "Renamed", lao.Name)
	require.Len(t, lao.Witnesses, 2)
	require.Len(t, lao.ModificationSignatures, 1)
	require.True(t, lao.ID.Equal(f.laoID))
}

func TestLao_StateMustMatchProposalWitnesses(t *testing.T) {
	f := newFixture(t, 1)
	lao, _ := f.sm.Repository().Lao()
	update := &messagedata.UpdateLao{
		ID:           messagedata.LaoID(lao.Organizer, lao.Creation, "Renamed"),
		Name:         "Renamed",
		LastModified: creation + 100,
		Witnesses:    lao.Witnesses,
	}
	updateEnv := f.envelope(f.organizer, f.channel, update)
	_, err := f.applyEnvelope(updateEnv)
	require.NoError(t, err)

	rogue := newKeys(t).PublicKey()
	state := &messagedata.StateLao{
		ID:             f.laoID,
		Name:           "Renamed",
		Creation:       creation,
		LastModified:   creation + 100,
		Organizer:      lao.Organizer,
		Witnesses:      []identity.PublicKey{rogue},
		ModificationID: updateEnv.MessageID(),

		ModificationSignatures: []protocol.WitnessSignature{},
	}
	_, err = f.apply(f.organizer, f.channel, state)
	var invalid *InvalidDataError
	require.ErrorAs(t, err, &invalid)

	lao, _ = f.sm.Repository().Lao()
	require.Equal(t, f.witnesses[0].PublicKey(), lao.Witnesses[0])
	require.Len(t, lao.Witnesses, 1)
	require.Equal(t, lao.Creation, lao.LastModified)
}

func TestLao_UpdateWrongID(t *testing.T) {
	f := newFixture(t, 0)
	update := &messagedata.UpdateLao{
		ID:           identity.Hash("wrong"),
		Name:         "Renamed",
		LastModified: creation + 1,
		Witnesses:    []identity.PublicKey{},
	}
	_, err := f.apply(f.organizer, f.channel, update)
	require.ErrorIs(t, err, identity.ErrInvalidMessageID)
	require.Equal(t, protocol.CodeInvalidMessageField, Code(err))
}

func TestUnsupportedDataType(t *testing.T) {
	f := newFixture(t, 0)
	msg, err := protocol.NewMessage(f.organizer, []byte(`{"object":"coin","action":"post_transaction"}`))
	require.NoError(t, err)
	env, err := Open(f.channel+"/coin", msg)
	require.NoError(t, err)

	_, err = f.sm.Apply(env)
	var unsupported *UnsupportedDataTypeError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, "coin", unsupported.Object)
}

func TestOpen_RejectsTamperedEnvelope(t *testing.T) {
	f := newFixture(t, 0)
	raw, err := messagedata.Encode(messagedata.NewCreateRollCall(f.laoID, "party", creation+1, creation+2, creation+3, "hall", ""))
	require.NoError(t, err)
	msg, err := protocol.NewMessage(f.organizer, raw)
	require.NoError(t, err)

	forged := msg.Clone()
	forged.Sender = newKeys(t).PublicKey()
	_, err = Open(f.channel, forged)
	var sigErr *InvalidSignatureError
	require.ErrorAs(t, err, &sigErr)
	require.ErrorIs(t, err, identity.ErrInvalidSignature)

	wrongID := msg.Clone()
	wrongID.MessageID = identity.MessageID(identity.Hash("x"))
	_, err = Open(f.channel, wrongID)
	require.ErrorIs(t, err, identity.ErrInvalidMessageID)

	_, err = Open("/elsewhere", msg)
	var mal *MalformedEnvelopeError
	require.ErrorAs(t, err, &mal)

	// the roll call id does not match another LAO
	_, err = Open(protocol.LaoChannel(identity.Hash("other").String()), msg)
	require.ErrorIs(t, err, identity.ErrInvalidMessageID)
}

func TestWitness_AttachesSignature(t *testing.T) {
	f := newFixture(t, 1)
	rc := messagedata.NewCreateRollCall(f.laoID, "party", creation+1, creation+2, creation+3, "hall", "")
	env := f.envelope(f.organizer, f.channel, rc)
	_, err := f.applyEnvelope(env)
	require.NoError(t, err)

	sig, err := f.witnesses[0].Sign(env.MessageID())
	require.NoError(t, err)
	_, err = f.apply(f.witnesses[0], f.channel, &messagedata.WitnessMessage{MessageID: env.MessageID(), Signature: sig})
	require.NoError(t, err)

	require.Len(t, f.witnessSignatures(env.MessageID()), 1)

	// a bad signature is ignored, not rejected
	bad := append(identity.Signature{}, sig...)
	bad[0] ^= 0xff
	_, err = f.apply(f.witnesses[0], f.channel, &messagedata.WitnessMessage{MessageID: env.MessageID(), Signature: bad})
	require.NoError(t, err)
	require.Len(t, f.witnessSignatures(env.MessageID()), 1)

	// an unknown target waits
	_, err = f.apply(f.witnesses[0], f.channel, &messagedata.WitnessMessage{MessageID: identity.MessageID("missing"), Signature: sig})
	_, ok := IsUnknownEntity(err)
	require.True(t, ok)
}

func TestChirp_AddDelete(t *testing.T) {
	f := newFixture(t, 0)
	author := newKeys(t)
	channel := protocol.SubChannel(f.laoID.String(), protocol.SocialSegment, author.PublicKey().String())

	env := f.envelope(author, channel, &messagedata.AddChirp{Text: "hello", Timestamp: creation + 1})
	_, err := f.applyEnvelope(env)
	require.NoError(t, err)

	_, err = f.apply(f.organizer, channel, &messagedata.DeleteChirp{ChirpID: env.MessageID(), Timestamp: creation + 2})
	var denied *AccessDeniedError
	require.ErrorAs(t, err, &denied)

	_, err = f.apply(author, channel, &messagedata.DeleteChirp{ChirpID: env.MessageID(), Timestamp: creation + 2})
	require.NoError(t, err)
	c, ok := f.sm.Repository().Chirp(env.MessageID())
	require.True(t, ok)
	require.True(t, c.Deleted)

	// someone else's channel
	_, err = f.apply(f.organizer, channel, &messagedata.AddChirp{Text: "spoof", Timestamp: creation + 3})
	require.ErrorAs(t, err, &denied)
}

func TestSnapshot_OrderedByCreation(t *testing.T) {
	f := newFixture(t, 0)
	late := messagedata.NewCreateRollCall(f.laoID, "late", creation+50, creation+60, creation+70, "hall", "")
	early := messagedata.NewCreateRollCall(f.laoID, "early", creation+10, creation+60, creation+70, "hall", "")
	meeting := messagedata.NewCreateMeeting(f.laoID, "standup", creation+30, creation+40, 0, "")
	for _, d := range []messagedata.Data{late, early, meeting} {
		_, err := f.apply(f.organizer, f.channel, d)
		require.NoError(t, err)
	}

	s := f.sm.Snapshot()
	require.NotNil(t, s.Lao)
	require.Len(t, s.RollCalls, 2)
	require.Equal(t, "early", s.RollCalls[0].Name)
	require.Equal(t, "late", s.RollCalls[1].Name)
	require.Len(t, s.Meetings, 1)
	require.Equal(t, 4, s.Applied)

	// snapshots do not alias the repository
	s.RollCalls[0].Attendees = append(s.RollCalls[0].Attendees, identity.PublicKey("x"))
	rc, _ := f.sm.Repository().RollCall(early.ID)
	require.Empty(t, rc.Attendees)
}

func TestCode_Mapping(t *testing.T) {
	require.Equal(t, protocol.CodeInvalidResource, Code(&UnknownEntityError{Kind: "x"}))
	require.Equal(t, protocol.CodeDuplicateResource, Code(&DuplicateResourceError{Kind: "x"}))
	require.Equal(t, protocol.CodeInvalidMessageField, Code(&ballot.DecryptionError{Reason: "x"}))
	require.Equal(t, protocol.CodeInvalidMessageField, Code(messagedata.ErrMalformed))
	require.Equal(t, protocol.CodeInternal, Code(errors.New("boom")))
}
