package primitive_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kamune-org/awake/internal/primitive"
)

func TestDIDRoundTrip(t *testing.T) {
	a := require.New(t)

	kp, err := primitive.GenerateKeyPair(false)
	a.NoError(err)

	did := primitive.EncodeDID(kp.Public)
	a.Contains(did, "did:key:zDn")

	pub, err := primitive.DecodeDID(did)
	a.NoError(err)
	a.Equal(kp.Public.Bytes(), pub.Bytes())
}

func TestDecodeDIDMalformed(t *testing.T) {
	a := require.New(t)

	_, err := primitive.DecodeDID("not-a-did")
	a.ErrorIs(err, primitive.ErrMalformedDid)

	_, err = primitive.DecodeDID("did:key:zDn" + "not-base58-!!!")
	a.ErrorIs(err, primitive.ErrMalformedDid)
}

func TestECDHAgreement(t *testing.T) {
	a := require.New(t)

	alice, err := primitive.GenerateKeyPair(false)
	a.NoError(err)
	bob, err := primitive.GenerateKeyPair(false)
	a.NoError(err)

	s1, err := primitive.ECDH(alice, bob.Public)
	a.NoError(err)
	s2, err := primitive.ECDH(bob, alice.Public)
	a.NoError(err)
	a.Equal(s1, s2)
}

func TestSignVerify(t *testing.T) {
	a := require.New(t)

	kp, err := primitive.GenerateKeyPair(true)
	a.NoError(err)
	msg := []byte(rand.Text())

	sig, err := primitive.Sign(kp.ToSigner(), msg)
	a.NoError(err)
	a.True(primitive.Verify(primitive.ToVerifier(kp.Public), msg, sig))

	imposter, err := primitive.GenerateKeyPair(true)
	a.NoError(err)
	a.False(primitive.Verify(primitive.ToVerifier(imposter.Public), msg, sig))
}

func TestHKDFDeterministic(t *testing.T) {
	a := require.New(t)

	secret := []byte(rand.Text())
	salt := []byte(rand.Text())
	info := []byte(rand.Text())

	b1, err := primitive.HKDF(secret, salt, info, 608)
	a.NoError(err)
	a.Len(b1, 76)
	b2, err := primitive.HKDF(secret, salt, info, 608)
	a.NoError(err)
	a.Equal(b1, b2)

	b3, err := primitive.HKDF(secret, salt, []byte("different"), 608)
	a.NoError(err)
	a.NotEqual(b1, b3)
}
