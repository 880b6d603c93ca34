package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v4/sign/eddsa"
	"go.dedis.ch/kyber/v4/util/random"
)

func TestHash_KnownVectors(t *testing.T) {
	require.Equal(t, "EEt7cnWoMeOmLNNi_iaB9wGlm6kjXrgNju8G_bGABTs=",
		Hash("organizer", "1623825071", "LAO").String())
	require.Equal(t, "FBOWHiwaqhDH2v5JN8DObYhGY5I-5WjPCksKSLG10xA=",
		Hash(`a"b`, `c\d`).String())
	require.Equal(t, "T1PNoYwrqgwDVLtfmj7L5e0Sq02OEbqHPC8RFhICuUU=", Hash().String())
	require.Equal(t, "m-54ZFQH0L3QvINGfbF5-SdX_882EWto36Ogqu7Nl34=", Hash("héllo").String())
}

func TestHash_Deterministic(t *testing.T) {
	first := Hash("organizer", int64(1623825071), "LAO")
	for i := 0; i < 10; i++ {
		require.True(t, first.Equal(Hash("organizer", int64(1623825071), "LAO")))
	}
	require.Equal(t, Hash("organizer", "1623825071", "LAO").String(), first.String())
	require.False(t, first.Equal(Hash("LAO", "1623825071", "organizer")))
}

func TestHash_StringerParts(t *testing.T) {
	id := Base64URLData("abc")
	require.Equal(t, Hash(id.String()).String(), Hash(id).String())
}

func TestHashMessageID(t *testing.T) {
	id := HashMessageID([]byte(`{"object":"lao"}`), Signature("sig"))
	require.Equal(t, "uPhxPpSxO7kFj6NoLiQKi5J2AHR6aOPEoYPlJQ3hYZA=", id.String())
}

func TestBase64URLData_RoundTrip(t *testing.T) {
	d := Base64URLData{0xfb, 0xff, 0x01}
	b, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `"-_8B"`, string(b))

	var back Base64URLData
	require.NoError(t, json.Unmarshal(b, &back))
	require.True(t, d.Equal(back))
}

func TestBase64URLData_EqualityIgnoresPadding(t *testing.T) {
	padded, err := DecodeBase64URL("YWI=")
	require.NoError(t, err)
	raw, err := DecodeBase64URL("YWI")
	require.NoError(t, err)
	require.True(t, padded.Equal(raw))
}

func TestBase64URLData_RejectsStandardAlphabet(t *testing.T) {
	_, err := DecodeBase64URL("+/+/")
	require.ErrorIs(t, err, ErrInvalidBase64)

	var id MessageID
	err = json.Unmarshal([]byte(`"not base64!"`), &id)
	require.Error(t, err)
}

func TestPublicKey_Verify(t *testing.T) {
	signer := eddsa.NewEdDSA(random.New())
	pub, err := signer.Public.MarshalBinary()
	require.NoError(t, err)
	data := []byte("some data")
	sig, err := signer.Sign(data)
	require.NoError(t, err)

	pk := PublicKey(pub)
	require.True(t, pk.Verify(sig, data))

	tampered := append([]byte{}, data...)
	tampered[0] ^= 0x01
	require.False(t, pk.Verify(sig, tampered))

	badSig := append(Signature{}, sig...)
	badSig[10] ^= 0x01
	require.False(t, pk.Verify(badSig, data))

	require.False(t, PublicKey("short").Verify(sig, data))
	require.False(t, pk.Verify(Signature("short"), data))
	require.False(t, pk.Verify(nil, data))
}
