package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/popcore/ballot"
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
)

func setupElection(t *testing.T, f *fixture, version string) (*messagedata.SetupElection, messagedata.Question, string) {
	t.Helper()
	setup := messagedata.NewSetupElection(f.laoID, "board", version, creation+10, creation+20, creation+30)
	q := setup.AddQuestion("chair?", messagedata.PluralityMethod, []string{"alice", "bob", "carol"}, false)
	channel := protocol.SubChannel(f.laoID.String(), setup.ID.String())
	_, err := f.apply(f.organizer, channel, setup)
	require.NoError(t, err)
	return setup, q, channel
}

func TestElection_OpenBallot(t *testing.T) {
	f := newFixture(t, 0)
	setup, q, channel := setupElection(t, f, messagedata.OpenBallot)
	voterA, voterB := newKeys(t), newKeys(t)

	cast := func(index int) messagedata.Vote {
		return messagedata.NewOpenVote(setup.ID, q, []int{index}, "")
	}

	// votes before the election opens are refused
	early := &messagedata.CastVote{Lao: f.laoID, Election: setup.ID, CreatedAt: creation + 21, Votes: []messagedata.Vote{cast(0)}}
	_, err := f.apply(voterA, channel, early)
	var transition *InvalidStateTransitionError
	require.ErrorAs(t, err, &transition)

	_, err = f.apply(f.organizer, channel, &messagedata.OpenElection{Lao: f.laoID, Election: setup.ID, OpenedAt: creation + 20})
	require.NoError(t, err)

	first := cast(0)
	_, err = f.apply(voterA, channel, &messagedata.CastVote{Lao: f.laoID, Election: setup.ID, CreatedAt: creation + 22, Votes: []messagedata.Vote{first}})
	require.NoError(t, err)
	// a later vote of the same sender replaces the first one
	second := cast(1)
	_, err = f.apply(voterA, channel, &messagedata.CastVote{Lao: f.laoID, Election: setup.ID, CreatedAt: creation + 21, Votes: []messagedata.Vote{second}})
	require.NoError(t, err)
	third := cast(1)
	_, err = f.apply(voterB, channel, &messagedata.CastVote{Lao: f.laoID, Election: setup.ID, CreatedAt: creation + 23, Votes: []messagedata.Vote{third}})
	require.NoError(t, err)

	// out of range and wrong id
	bad := messagedata.NewOpenVote(setup.ID, q, []int{7}, "")
	_, err = f.apply(voterB, channel, &messagedata.CastVote{Lao: f.laoID, Election: setup.ID, CreatedAt: creation + 24, Votes: []messagedata.Vote{bad}})
	var invalid *InvalidDataError
	require.ErrorAs(t, err, &invalid)
	forged := cast(0)
	forged.Vote.Indexes = []int{2}
	_, err = f.apply(voterB, channel, &messagedata.CastVote{Lao: f.laoID, Election: setup.ID, CreatedAt: creation + 24, Votes: []messagedata.Vote{forged}})
	require.ErrorIs(t, err, identity.ErrInvalidMessageID)

	registered := messagedata.RegisteredVotes([]identity.Base64URLData{second.ID, third.ID})
	_, err = f.apply(f.organizer, channel, &messagedata.EndElection{Lao: f.laoID, Election: setup.ID, CreatedAt: creation + 30, RegisteredVotes: registered})
	require.NoError(t, err)

	e, ok := f.sm.Repository().Election(setup.ID)
	require.True(t, ok)
	require.Equal(t, ElectionClosed, e.State)
	require.Equal(t, 2, e.Voters)
	require.True(t, e.RegisteredVotes.Equal(registered))
	require.Len(t, e.Tally, 1)
	require.Equal(t, []messagedata.BallotCount{
		{BallotOption: "alice", Count: 0},
		{BallotOption: "bob", Count: 2},
		{BallotOption: "carol", Count: 0},
	}, e.Tally[0].Result)

	// the ballot box is frozen
	_, err = f.apply(voterB, channel, &messagedata.CastVote{Lao: f.laoID, Election: setup.ID, CreatedAt: creation + 31, Votes: []messagedata.Vote{cast(2)}})
	require.ErrorAs(t, err, &transition)

	_, err = f.apply(f.organizer, channel, &messagedata.ElectionResult{Questions: e.Tally})
	require.NoError(t, err)
	e, _ = f.sm.Repository().Election(setup.ID)
	require.Equal(t, ElectionResultsReady, e.State)
	require.Equal(t, e.Tally, e.Results)
}

func TestElection_SecretBallot(t *testing.T) {
	f := newFixture(t, 0)
	setup, q, channel := setupElection(t, f, messagedata.SecretBallot)
	key := ballot.GenerateKeyPair()
	f.keys.Add(setup.ID, key)

	_, err := f.apply(f.organizer, channel, &messagedata.KeyElection{Election: setup.ID, ElectionKey: key.PublicKey()})
	require.NoError(t, err)
	_, err = f.apply(f.organizer, channel, &messagedata.KeyElection{Election: setup.ID, ElectionKey: key.PublicKey()})
	var dup *DuplicateResourceError
	require.ErrorAs(t, err, &dup)

	_, err = f.apply(f.organizer, channel, &messagedata.OpenElection{Lao: f.laoID, Election: setup.ID, OpenedAt: creation + 20})
	require.NoError(t, err)

	var ids []identity.Base64URLData
	for _, index := range []int{2, 2, 0} {
		voter := newKeys(t)
		ct, err := ballot.EncryptVote(key.PublicKey(), index)
		require.NoError(t, err)
		v := messagedata.NewEncryptedVote(setup.ID, q.ID, ct.String())
		ids = append(ids, v.ID)
		_, err = f.apply(voter, channel, &messagedata.CastVote{Lao: f.laoID, Election: setup.ID, CreatedAt: creation + 25, Votes: []messagedata.Vote{v}})
		require.NoError(t, err)
	}

	// plaintext votes are refused on a secret ballot
	plain := messagedata.NewOpenVote(setup.ID, q, []int{0}, "")
	_, err = f.apply(newKeys(t), channel, &messagedata.CastVote{Lao: f.laoID, Election: setup.ID, CreatedAt: creation + 25, Votes: []messagedata.Vote{plain}})
	var invalid *InvalidDataError
	require.ErrorAs(t, err, &invalid)

	_, err = f.apply(f.organizer, channel, &messagedata.EndElection{
		Lao:             f.laoID,
		Election:        setup.ID,
		CreatedAt:       creation + 30,
		RegisteredVotes: messagedata.RegisteredVotes(ids),
	})
	require.NoError(t, err)

	e, _ := f.sm.Repository().Election(setup.ID)
	require.Equal(t, []messagedata.BallotCount{
		{BallotOption: "alice", Count: 1},
		{BallotOption: "bob", Count: 0},
		{BallotOption: "carol", Count: 2},
	}, e.Tally[0].Result)
}

func TestElection_KeyOnOpenBallotRefused(t *testing.T) {
	f := newFixture(t, 0)
	setup, _, channel := setupElection(t, f, messagedata.OpenBallot)
	_, err := f.apply(f.organizer, channel, &messagedata.KeyElection{Election: setup.ID, ElectionKey: ballot.GenerateKeyPair().PublicKey()})
	var invalid *InvalidDataError
	require.ErrorAs(t, err, &invalid)
}

func TestConsensus_MajorityEmitsLearn(t *testing.T) {
	f := newFixture(t, 3)
	channel := protocol.SubChannel(f.laoID.String(), protocol.ConsensusSegment)
	key := messagedata.ConsensusKey{Type: messagedata.ObjectElection, ID: identity.Hash("e"), Property: "state"}
	elect := messagedata.NewElect(key, "started", creation+5)
	electEnv := f.envelope(f.organizer, channel, elect)
	_, err := f.applyEnvelope(electEnv)
	require.NoError(t, err)

	accept := func(from int) (Outcome, error) {
		return f.apply(f.witnesses[from], channel, &messagedata.ElectAccept{
			InstanceID: elect.InstanceID,
			MessageID:  electEnv.MessageID(),
			Accept:     true,
		})
	}

	out, err := accept(0)
	require.NoError(t, err)
	require.Nil(t, out.Learn)

	// the same acceptor again does not count twice
	_, err = f.sm.Apply(f.envelope(f.witnesses[0], channel, &messagedata.ElectAccept{
		InstanceID: elect.InstanceID,
		MessageID:  electEnv.MessageID(),
		Accept:     true,
	}))
	require.NoError(t, err)

	s := f.sm.Snapshot()
	require.Len(t, s.Consensus, 1)
	require.Equal(t, 1, s.Consensus[0].Accepts)
	require.False(t, s.Consensus[0].Accepted)

	out, err = accept(1)
	require.NoError(t, err)
	require.NotNil(t, out.Learn)
	require.True(t, out.Learn.MessageID.Equal(electEnv.MessageID()))
	require.Len(t, out.Learn.Acceptors, 2)
	require.Equal(t, creation+60, out.Learn.CreatedAt)

	_, err = f.apply(newKeys(t), channel, &messagedata.ElectAccept{
		InstanceID: elect.InstanceID,
		MessageID:  electEnv.MessageID(),
		Accept:     true,
	})
	var denied *AccessDeniedError
	require.ErrorAs(t, err, &denied)

	_, err = f.apply(f.organizer, channel, out.Learn)
	require.NoError(t, err)
	s = f.sm.Snapshot()
	require.True(t, s.Consensus[0].Accepted)
	require.True(t, s.Consensus[0].Learned)
}

func TestConsensus_AcceptBeforeElectIsUnknown(t *testing.T) {
	f := newFixture(t, 1)
	channel := protocol.SubChannel(f.laoID.String(), protocol.ConsensusSegment)
	_, err := f.apply(f.witnesses[0], channel, &messagedata.ElectAccept{
		InstanceID: identity.Hash("instance"),
		MessageID:  identity.MessageID(identity.Hash("elect")),
		Accept:     true,
	})
	id, ok := IsUnknownEntity(err)
	require.True(t, ok)
	require.True(t, id.Equal(identity.Hash("elect")))
}
