package ratchet_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kamune-org/awake/pkg/ratchet"
)

func TestMutualRatchetsAgree(t *testing.T) {
	a := require.New(t)

	secret := []byte(rand.Text())
	salt := []byte(rand.Text())
	msg := []byte("hello, awake")

	sender, err := ratchet.New(secret, salt, true)
	a.NoError(err)
	receiver, err := ratchet.New(secret, salt, false)
	a.NoError(err)

	for id := range 5 {
		ct, err := sender.ProcessPayload(id, msg)
		a.NoError(err)
		pt, err := receiver.ProcessPayload(id, ct)
		a.NoError(err)
		a.Equal(msg, pt)
	}
}

func TestReusedIndexFails(t *testing.T) {
	a := require.New(t)

	secret := []byte(rand.Text())
	salt := []byte(rand.Text())
	r, err := ratchet.New(secret, salt, true)
	a.NoError(err)

	_, err = r.ProcessPayload(0, []byte("one"))
	a.NoError(err)
	_, err = r.ProcessPayload(0, []byte("two"))
	a.ErrorIs(err, ratchet.ErrAlreadyProcessed)
}

func TestLazyGrowBridgesGaps(t *testing.T) {
	a := require.New(t)

	secret := []byte(rand.Text())
	salt := []byte(rand.Text())
	sender, err := ratchet.New(secret, salt, true)
	a.NoError(err)
	receiver, err := ratchet.New(secret, salt, false)
	a.NoError(err)

	cts := make([][]byte, 4)
	for id := range cts {
		ct, err := sender.ProcessPayload(id, []byte("msg"))
		a.NoError(err)
		cts[id] = ct
	}

	// Decrypt id=3 first; this grows elements 0..3 on the receiver.
	pt, err := receiver.ProcessPayload(3, cts[3])
	a.NoError(err)
	a.Equal([]byte("msg"), pt)
	a.Equal(4, receiver.Len())

	// Earlier indexes can still be processed once: producing a successor
	// destroys an element's secret, shared secret and salt, but not its
	// AES key and IV.
	pt, err = receiver.ProcessPayload(0, cts[0])
	a.NoError(err)
	a.Equal([]byte("msg"), pt)
}

func TestTamperedCiphertextFails(t *testing.T) {
	a := require.New(t)

	secret := []byte(rand.Text())
	salt := []byte(rand.Text())
	sender, err := ratchet.New(secret, salt, true)
	a.NoError(err)
	receiver, err := ratchet.New(secret, salt, false)
	a.NoError(err)

	ct, err := sender.ProcessPayload(0, []byte("msg"))
	a.NoError(err)
	ct[0] ^= 0xFF

	_, err = receiver.ProcessPayload(0, ct)
	a.ErrorIs(err, ratchet.ErrCipherFailure)
}

func TestSetNewSharedKeyRekeys(t *testing.T) {
	a := require.New(t)

	secret := []byte(rand.Text())
	salt := []byte(rand.Text())
	sender, err := ratchet.New(secret, salt, true)
	a.NoError(err)
	receiver, err := ratchet.New(secret, salt, false)
	a.NoError(err)

	ct0, err := sender.ProcessPayload(0, []byte("pre-rekey"))
	a.NoError(err)
	_, err = receiver.ProcessPayload(0, ct0)
	a.NoError(err)

	newSecret := []byte(rand.Text())
	a.NoError(sender.SetNewSharedKey(1, newSecret))
	a.NoError(receiver.SetNewSharedKey(1, newSecret))

	ct, err := sender.ProcessPayload(1, []byte("post-rekey"))
	a.NoError(err)
	pt, err := receiver.ProcessPayload(1, ct)
	a.NoError(err)
	a.Equal([]byte("post-rekey"), pt)
}

func TestSetNewSharedKeyWrongIndexFails(t *testing.T) {
	a := require.New(t)

	secret := []byte(rand.Text())
	salt := []byte(rand.Text())
	r, err := ratchet.New(secret, salt, true)
	a.NoError(err)

	err = r.SetNewSharedKey(2, []byte(rand.Text()))
	a.ErrorIs(err, ratchet.ErrInvalidRekeyIndex)
}
