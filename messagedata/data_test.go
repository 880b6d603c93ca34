package messagedata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/popcore/identity"
)

var organizer = identity.PublicKey("organizer-public-key-32-bytes-xx")

func TestDecode_CreateLao(t *testing.T) {
	c := NewCreateLao(organizer, "LAO", 1623825071, nil)
	raw, err := Encode(c)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"object":"lao","action":"create"`)

	d, err := Decode(raw)
	require.NoError(t, err)
	decoded, ok := d.(*CreateLao)
	require.True(t, ok)
	require.Equal(t, c.ID.String(), decoded.ID.String())
	require.Equal(t, "LAO", decoded.Name)
	require.NoError(t, decoded.Verify(nil))
	require.NoError(t, decoded.Verify(c.ID))
}

func TestDecode_UnknownPair(t *testing.T) {
	d, err := Decode([]byte(`{"object":"lao","action":"explode","x":1}`))
	require.NoError(t, err)
	u, ok := d.(*Unknown)
	require.True(t, ok)
	require.Equal(t, Key{"lao", "explode"}, KeyOf(u))
	require.False(t, Supported(KeyOf(u)))
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"object":"lao"}`))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"object":"lao","action":"create","creation":"yesterday"}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestCreateLao_WrongID(t *testing.T) {
	c := NewCreateLao(organizer, "LAO", 1623825071, nil)
	c.Name = "Other"
	require.ErrorIs(t, c.Verify(nil), identity.ErrInvalidMessageID)
}

func TestCreateMeeting_Verify(t *testing.T) {
	lao := LaoID(organizer, 100, "LAO")
	m := NewCreateMeeting(lao, "standup", 200, 300, 400, "room")
	require.NoError(t, m.Verify(lao))

	m.Start = 150
	require.ErrorIs(t, m.Verify(lao), ErrMalformed)

	m = NewCreateMeeting(lao, "standup", 200, 300, 400, "room")
	require.ErrorIs(t, m.Verify(LaoID(organizer, 101, "LAO")), identity.ErrInvalidMessageID)
}

func TestRollCall_IDChain(t *testing.T) {
	lao := LaoID(organizer, 100, "LAO")
	create := NewCreateRollCall(lao, "party", 200, 300, 400, "hall", "")
	require.NoError(t, create.Verify(lao))
	require.Equal(t, identity.Hash("R", lao, int64(200), "party").String(), create.ID.String())

	open := NewOpenRollCall(lao, create.ID, 300)
	require.NoError(t, open.Verify(lao))
	require.Equal(t, ActionOpen, open.Action())
	require.Equal(t, identity.Hash("R", lao, create.ID, int64(300)).String(), open.UpdateID.String())

	closing := NewCloseRollCall(lao, open.UpdateID, 400, nil)
	require.NoError(t, closing.Verify(lao))

	reopen := NewReopenRollCall(lao, closing.UpdateID, 500)
	require.Equal(t, ActionReopen, reopen.Action())
	require.True(t, reopen.IsReopen())

	raw, err := Encode(reopen)
	require.NoError(t, err)
	d, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, ActionReopen, d.Action())
	require.NoError(t, Verify(d, lao))
}

func TestCloseRollCall_DuplicateAttendee(t *testing.T) {
	lao := LaoID(organizer, 100, "LAO")
	a := identity.PublicKey("attendee")
	c := NewCloseRollCall(lao, identity.Base64URLData("prev"), 10, []identity.PublicKey{a, a})
	require.ErrorIs(t, c.Verify(lao), ErrMalformed)
}

func TestElection_SetupVerify(t *testing.T) {
	lao := LaoID(organizer, 100, "LAO")
	s := NewSetupElection(lao, "board", OpenBallot, 200, 300, 400)
	s.AddQuestion("chair?", PluralityMethod, []string{"alice", "bob"}, false)
	require.NoError(t, s.Verify(lao))

	s.Questions[0].BallotOptions = []string{"alice", "alice"}
	require.ErrorIs(t, s.Verify(lao), ErrMalformed)

	s = NewSetupElection(lao, "board", "RANKED", 200, 300, 400)
	s.AddQuestion("chair?", PluralityMethod, []string{"alice"}, false)
	require.ErrorIs(t, s.Verify(lao), ErrMalformed)
}

func TestElectionVoteID_WriteInIndependence(t *testing.T) {
	election := identity.Hash("election")
	question := identity.Hash("question")

	withWriteIn := ElectionVoteID(election, question, []int{0}, "carol", true)
	otherIndexes := ElectionVoteID(election, question, []int{1, 2}, "carol", true)
	require.True(t, withWriteIn.Equal(otherIndexes))

	without := ElectionVoteID(election, question, []int{0, 1}, "carol", false)
	otherText := ElectionVoteID(election, question, []int{0, 1}, "dave", false)
	require.True(t, without.Equal(otherText))
	require.Equal(t, identity.Hash("Vote", election, question, "[0, 1]").String(), without.String())
}

func TestVoteValue_JSONShapes(t *testing.T) {
	var v VoteValue
	require.NoError(t, json.Unmarshal([]byte(`2`), &v))
	require.Equal(t, []int{2}, v.Indexes)

	require.NoError(t, json.Unmarshal([]byte(`[0, 3]`), &v))
	require.Equal(t, []int{0, 3}, v.Indexes)
	require.False(t, v.IsEncrypted())

	require.NoError(t, json.Unmarshal([]byte(`"Y2lwaGVy"`), &v))
	require.True(t, v.IsEncrypted())
	require.Nil(t, v.Indexes)

	out, err := json.Marshal(VoteValue{Indexes: []int{1}})
	require.NoError(t, err)
	require.JSONEq(t, `[1]`, string(out))
}

func TestCastVote_Roundtrip(t *testing.T) {
	lao := LaoID(organizer, 100, "LAO")
	s := NewSetupElection(lao, "board", OpenBallot, 200, 300, 400)
	q := s.AddQuestion("chair?", PluralityMethod, []string{"alice", "bob"}, false)

	cast := &CastVote{
		Lao:       lao,
		Election:  s.ID,
		CreatedAt: 350,
		Votes:     []Vote{NewOpenVote(s.ID, q, []int{1}, "")},
	}
	require.NoError(t, cast.Verify(lao))
	raw, err := Encode(cast)
	require.NoError(t, err)

	d, err := Decode(raw)
	require.NoError(t, err)
	decoded := d.(*CastVote)
	require.Len(t, decoded.Votes, 1)
	require.Equal(t, []int{1}, decoded.Votes[0].Vote.Indexes)
	require.Equal(t, cast.Votes[0].ID.String(), decoded.Votes[0].ID.String())
}

func TestRegisteredVotes_OrderIndependent(t *testing.T) {
	a, b := identity.Hash("a"), identity.Hash("b")
	require.Equal(t,
		RegisteredVotes([]identity.Base64URLData{a, b}).String(),
		RegisteredVotes([]identity.Base64URLData{b, a}).String())
}

func TestElect_InstanceID(t *testing.T) {
	key := ConsensusKey{Type: "election", ID: identity.Hash("e"), Property: "state"}
	e := NewElect(key, "started", 10)
	require.NoError(t, e.Verify(nil))

	e.Value = "ended"
	require.NoError(t, e.Verify(nil))
	e.Key.Property = "end"
	require.ErrorIs(t, e.Verify(nil), identity.ErrInvalidMessageID)
}

func TestAddChirp_Length(t *testing.T) {
	ok := &AddChirp{Text: string(make([]rune, MaxChirpLength)), Timestamp: 1}
	require.NoError(t, ok.Verify(nil))

	long := make([]rune, MaxChirpLength+1)
	for i := range long {
		long[i] = 'é'
	}
	require.ErrorIs(t, (&AddChirp{Text: string(long), Timestamp: 1}).Verify(nil), ErrMalformed)
	require.ErrorIs(t, (&AddChirp{Timestamp: 1}).Verify(nil), ErrMalformed)
}
