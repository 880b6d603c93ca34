package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/popcore/domain"
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/keystore"
	"github.com/luca-patrignani/popcore/messagedata"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return strings.TrimSpace(out.String())
}

func TestHashCommand(t *testing.T) {
	require.Equal(t, identity.Hash("a", "b").String(), run(t, "hash", "a", "b"))
}

func TestKeygenCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.key")
	pub := run(t, "keygen", "--key-file", path)

	keys, err := keystore.Load(path)
	require.NoError(t, err)
	require.Equal(t, keys.PublicKey().String(), pub)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"keygen", "--key-file", path})
	require.Error(t, cmd.Execute(), "an existing key is never overwritten")
}

func TestElectionKeysCommand(t *testing.T) {
	out := run(t, "election-keys")
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	secret := strings.TrimPrefix(lines[1], "secret: ")

	ring, err := parseElectionKeys([]string{identity.Hash("election").String() + ":" + secret})
	require.NoError(t, err)
	key, ok := ring.ElectionKey(identity.Hash("election"))
	require.True(t, ok)
	require.Equal(t, "public: "+key.PublicKey().String(), lines[0])

	_, err = parseElectionKeys([]string{"no-separator"})
	require.Error(t, err)
}

func TestServerURL(t *testing.T) {
	cases := map[string]string{
		"localhost:9000":            "ws://localhost:9000/client",
		"ws://example.org/client":   "ws://example.org/client",
		"https://example.org":       "wss://example.org/client",
		"http://10.0.0.1:9000/peer": "ws://10.0.0.1:9000/peer",
	}
	for in, expected := range cases {
		actual, err := serverURL(in)
		require.NoError(t, err, in)
		require.Equal(t, expected, actual, in)
	}
	_, err := serverURL("ftp://example.org")
	require.Error(t, err)
}

type fakeReader map[string]domain.Snapshot

func (f fakeReader) State(id string) (domain.Snapshot, bool) {
	s, ok := f[id]
	return s, ok
}

func (f fakeReader) Joined() []string {
	var ids []string
	for id := range f {
		ids = append(ids, id)
	}
	return ids
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "popcore_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	laoID := identity.Hash("lao")
	reader := fakeReader{laoID.String(): {LaoID: laoID, Applied: 3}}
	srv := httptest.NewServer(newRouter(reg, reader))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/laos/" + laoID.String())
	require.NoError(t, err)
	var s domain.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 3, s.Applied)

	resp, err = http.Get(srv.URL + "/laos/missing")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/laos/")
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ids))
	resp.Body.Close()
	require.Equal(t, []string{laoID.String()}, ids)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Contains(t, body.String(), "popcore_test_total 1")
}

func TestStatePanels(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	laoID := identity.Hash("lao")
	q := messagedata.NewQuestion(identity.Hash("election"), "Pizza?", messagedata.PluralityMethod, []string{"yes", "no"}, false)
	s := domain.Snapshot{
		LaoID:     laoID,
		Lao:       &domain.Lao{ID: laoID, Name: "Party", Creation: 1700000000},
		RollCalls: []domain.RollCall{{Name: "entrance", State: domain.RollCallOpened, Location: "hall"}},
		Elections: []domain.Election{{
			Name:      "food",
			Version:   messagedata.OpenBallot,
			State:     domain.ElectionResultsReady,
			Questions: []messagedata.Question{q},
			Results: []messagedata.QuestionResult{{ID: q.ID, Result: []messagedata.BallotCount{
				{BallotOption: "yes", Count: 4},
				{BallotOption: "no", Count: 1},
			}}},
		}},
		Consensus: []domain.ConsensusView{{Key: messagedata.ConsensusKey{Type: "roll_call", Property: "state"}, Value: "started", Accepted: true}},
	}
	rows := statePanels(s)
	require.Len(t, rows, 4)

	out, err := pterm.DefaultPanel.WithPanels(rows).Srender()
	require.NoError(t, err)
	for _, want := range []string{"Party", "entrance", "OPENED", "Pizza?", "yes: 4", "no: 1", "accepted"} {
		require.Contains(t, out, want)
	}

	waiting := statePanels(domain.Snapshot{LaoID: laoID})
	require.Len(t, waiting, 1)
	require.Contains(t, waiting[0][0].Data, "waiting for")
}

func TestParseElectionKeysRejectsBadSecret(t *testing.T) {
	_, err := parseElectionKeys([]string{identity.Hash("e").String() + ":AAAA"})
	require.Error(t, err)
}
