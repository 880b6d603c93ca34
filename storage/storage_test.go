package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/popcore/keystore"
	"github.com/luca-patrignani/popcore/protocol"
)

func sampleSnapshot(t *testing.T) Snapshot {
	t.Helper()
	signer, err := keystore.NewMemory()
	require.NoError(t, err)
	witness, err := keystore.NewMemory()
	require.NoError(t, err)

	first, err := protocol.NewMessage(signer, []byte(`{"object":"lao","action":"create"}`))
	require.NoError(t, err)
	second, err := protocol.NewMessage(signer, []byte(`{"object":"roll_call","action":"create"}`))
	require.NoError(t, err)
	sig, err := witness.Sign(second.MessageID)
	require.NoError(t, err)
	second.AddWitnessSignature(protocol.WitnessSignature{Witness: witness.PublicKey(), Signature: sig})

	return Snapshot{
		LaoID:   "fzJSZjKf-2cbXH7kds9H8NORuuFIRLkevJlN7qQemjo=",
		SavedAt: time.Unix(1700000000, 0),
		Records: []Record{
			{Channel: protocol.Root, Message: first},
			{Channel: protocol.LaoChannel("fzJSZjKf-2cbXH7kds9H8NORuuFIRLkevJlN7qQemjo="), Message: second},
		},
	}
}

func requireSameSnapshot(t *testing.T, expected, actual Snapshot) {
	t.Helper()
	require.Equal(t, expected.LaoID, actual.LaoID)
	require.True(t, expected.SavedAt.Equal(actual.SavedAt))
	require.Len(t, actual.Records, len(expected.Records))
	for i, r := range expected.Records {
		got := actual.Records[i]
		require.Equal(t, r.Channel, got.Channel)
		require.True(t, r.Message.MessageID.Equal(got.Message.MessageID))
		require.Equal(t, []byte(r.Message.Data), []byte(got.Message.Data))
		require.Len(t, got.Message.WitnessSignatures, len(r.Message.WitnessSignatures))
		require.NoError(t, got.Message.Verify())
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, WithFileMode(0o640))
	require.NoError(t, err)

	snap := sampleSnapshot(t)
	require.NoError(t, store.Save(snap))

	info, err := os.Stat(filepath.Join(dir, snap.LaoID+".snapshot"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	loaded, err := store.Load(snap.LaoID)
	require.NoError(t, err)
	requireSameSnapshot(t, snap, loaded)

	// overwriting leaves no temporary files behind
	snap.Records = snap.Records[:1]
	require.NoError(t, store.Save(snap))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	loaded, err = store.Load(snap.LaoID)
	require.NoError(t, err)
	require.Len(t, loaded.Records, 1)
}

func TestFileStore_NotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Load("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RejectsPathLikeIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.Error(t, store.Save(Snapshot{LaoID: "../escape"}))
	_, err = store.Load("")
	require.Error(t, err)
}

func TestFileStore_Corrupted(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lao.snapshot"), []byte{0xc1}, 0o600))
	_, err = store.Load("lao")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Load("lao")
	require.ErrorIs(t, err, ErrNotFound)

	snap := sampleSnapshot(t)
	require.NoError(t, store.Save(snap))
	snap.Records[0].Channel = "changed"

	loaded, err := store.Load(snap.LaoID)
	require.NoError(t, err)
	require.Equal(t, protocol.Root, loaded.Records[0].Channel)
}
