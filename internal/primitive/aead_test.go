package primitive_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kamune-org/awake/internal/primitive"
)

func TestSealOpen(t *testing.T) {
	a := require.New(t)

	key := make([]byte, 32)
	iv := make([]byte, 12)
	_, err := rand.Read(key)
	a.NoError(err)
	_, err = rand.Read(iv)
	a.NoError(err)
	msg := []byte("the quick brown fox")

	ct, err := primitive.Seal(key, iv, msg)
	a.NoError(err)
	a.NotEqual(msg, ct)

	pt, err := primitive.Open(key, iv, ct)
	a.NoError(err)
	a.Equal(msg, pt)
}

func TestOpenTamperedFails(t *testing.T) {
	a := require.New(t)

	key := make([]byte, 32)
	iv := make([]byte, 12)
	_, err := rand.Read(key)
	a.NoError(err)
	_, err = rand.Read(iv)
	a.NoError(err)

	ct, err := primitive.Seal(key, iv, []byte("payload"))
	a.NoError(err)
	ct[0] ^= 0xFF

	_, err = primitive.Open(key, iv, ct)
	a.ErrorIs(err, primitive.ErrCipherFailure)
}
