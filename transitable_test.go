package awake_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kamune-org/awake"
	"github.com/kamune-org/awake/internal/primitive"
)

func TestTransitableBase58RoundTrip(t *testing.T) {
	a := require.New(t)
	s := "hello, awake"

	tr := awake.FromReadable(s)
	back, err := awake.FromBase58(tr.AsBase58())
	a.NoError(err)
	readable, err := back.AsReadable()
	a.NoError(err)
	a.Equal(s, readable)
}

func TestTransitableBase64RoundTrip(t *testing.T) {
	a := require.New(t)
	s := "hello, awake"

	tr := awake.FromReadable(s)
	back, err := awake.FromBase64(tr.AsBase64())
	a.NoError(err)
	readable, err := back.AsReadable()
	a.NoError(err)
	a.Equal(s, readable)
}

func TestTransitableBytesRoundTrip(t *testing.T) {
	a := require.New(t)
	s := "hello, awake"

	tr := awake.FromReadable(s)
	back := awake.FromBytes(tr.Bytes())
	readable, err := back.AsReadable()
	a.NoError(err)
	a.Equal(s, readable)
}

func TestDIDRoundTrip(t *testing.T) {
	a := require.New(t)

	kp, err := primitive.GenerateKeyPair(false)
	a.NoError(err)
	did := primitive.EncodeDID(kp.Public)
	pub, err := primitive.DecodeDID(did)
	a.NoError(err)
	a.Equal(kp.Public.Bytes(), pub.Bytes())
}

func TestTransitableSignVerify(t *testing.T) {
	a := require.New(t)

	kp, err := primitive.GenerateKeyPair(false)
	a.NoError(err)
	s := "hello, awake"

	signed, err := awake.FromReadable(s).Sign(kp.ToSigner())
	a.NoError(err)

	payload, ok, err := awake.Verify(signed, primitive.ToVerifier(kp.Public))
	a.NoError(err)
	a.True(ok)
	readable, err := payload.AsReadable()
	a.NoError(err)
	a.Equal(s, readable)
}

func TestTransitableVerifyFailsForImposter(t *testing.T) {
	a := require.New(t)

	kp, err := primitive.GenerateKeyPair(false)
	a.NoError(err)
	imposter, err := primitive.GenerateKeyPair(false)
	a.NoError(err)

	signed, err := awake.FromReadable("hello").Sign(kp.ToSigner())
	a.NoError(err)

	_, ok, err := awake.Verify(signed, primitive.ToVerifier(imposter.Public))
	a.NoError(err)
	a.False(ok)
}

func TestTransitableUnsignReturnsReadable(t *testing.T) {
	a := require.New(t)

	kp, err := primitive.GenerateKeyPair(false)
	a.NoError(err)
	s := "hello, awake"

	signed, err := awake.FromReadable(s).Sign(kp.ToSigner())
	a.NoError(err)

	payload, err := awake.Unsign(signed)
	a.NoError(err)
	readable, err := payload.AsReadable()
	a.NoError(err)
	a.Equal(s, readable)
}

func TestTransitableVerifyRejectsMalformed(t *testing.T) {
	a := require.New(t)

	_, _, err := awake.Verify("not-a-jwt", nil)
	a.ErrorIs(err, awake.ErrMalformedJwt)
}
