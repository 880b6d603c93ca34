package ballot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/popcore/identity"
)

func TestEncryptVote_RoundTrip(t *testing.T) {
	key := GenerateKeyPair()
	require.Len(t, key.PublicKey(), 32)
	for _, index := range []int{0, 1, 7, 300, 0xffff} {
		ct, err := EncryptVote(key.PublicKey(), index)
		require.NoError(t, err)
		require.Len(t, ct, CiphertextSize)

		got, err := key.DecryptVote(ct)
		require.NoError(t, err)
		require.Equal(t, index, got)
	}
}

func TestEncrypt_RoundTrip(t *testing.T) {
	key := GenerateKeyPair()
	for _, n := range []int{0, 1, 16, 29} {
		msg := make([]byte, n)
		for i := range msg {
			msg[i] = byte(i + 1)
		}
		ct, err := Encrypt(key.PublicKey(), msg)
		require.NoError(t, err)
		require.Len(t, ct, CiphertextSize)

		got, err := key.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, msg, got)
	}

	_, err := Encrypt(key.PublicKey(), make([]byte, 30))
	require.Error(t, err)
}

func TestEncryptVote_Randomized(t *testing.T) {
	key := GenerateKeyPair()
	a, err := EncryptVote(key.PublicKey(), 1)
	require.NoError(t, err)
	b, err := EncryptVote(key.PublicKey(), 1)
	require.NoError(t, err)
	require.False(t, a.Equal(b))
}

func TestDecrypt_WrongLength(t *testing.T) {
	key := GenerateKeyPair()
	_, err := key.DecryptVote(identity.Base64URLData(make([]byte, 63)))
	var de *DecryptionError
	require.ErrorAs(t, err, &de)
}

func TestUnmarshalKeyPair(t *testing.T) {
	key := GenerateKeyPair()
	secret, err := key.MarshalBinary()
	require.NoError(t, err)

	restored, err := UnmarshalKeyPair(secret)
	require.NoError(t, err)
	require.True(t, key.PublicKey().Equal(restored.PublicKey()))

	ct, err := EncryptVote(key.PublicKey(), 42)
	require.NoError(t, err)
	got, err := restored.DecryptVote(ct)
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestEncrypt_InvalidKey(t *testing.T) {
	_, err := EncryptVote(identity.Base64URLData("short"), 1)
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = EncryptVote(GenerateKeyPair().PublicKey(), -1)
	require.Error(t, err)
}
