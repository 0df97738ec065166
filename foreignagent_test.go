package awake_test

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kamune-org/awake"
	"github.com/kamune-org/awake/internal/primitive"
)

func TestForeignAgentMidDerivation(t *testing.T) {
	a := require.New(t)

	requestorKeys, err := primitive.GenerateKeyPair(false)
	a.NoError(err)
	responderKeys, err := primitive.GenerateKeyPair(false)
	a.NoError(err)

	responderDID := primitive.EncodeDID(responderKeys.Public)
	agent, err := awake.NewForeignAgent(requestorKeys, responderDID, nil)
	a.NoError(err)

	a.NoError(agent.Finalize(requestorKeys, responderDID, []byte("PREFIX")))

	for i := uint64(0); i < 42; i++ {
		_, _, err := agent.EncryptFor(awake.FromBytes([]byte("x")))
		a.NoError(err)
	}

	mid, _, err := agent.EncryptFor(awake.FromBytes([]byte("the 43rd message")))
	a.NoError(err)

	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], 42)
	want := sha256.Sum256(append([]byte("PREFIX"), idBytes[:]...))
	a.Equal(base64.StdEncoding.EncodeToString(want[:]), mid)
}

func TestForeignAgentDecryptWithMidBridgesGaps(t *testing.T) {
	a := require.New(t)

	requestorKeys, err := primitive.GenerateKeyPair(false)
	a.NoError(err)
	responderKeys, err := primitive.GenerateKeyPair(false)
	a.NoError(err)
	responderDID := primitive.EncodeDID(responderKeys.Public)

	requestorDID := primitive.EncodeDID(requestorKeys.Public)

	sender, err := awake.NewForeignAgent(requestorKeys, responderDID, requestorKeys.Public)
	a.NoError(err)
	a.NoError(sender.Finalize(requestorKeys, responderDID, []byte("PREFIX")))

	receiver, err := awake.NewForeignAgent(responderKeys, requestorDID, nil)
	a.NoError(err)
	a.NoError(receiver.Finalize(responderKeys, requestorDID, []byte("PREFIX")))

	var mids []string
	var cts [][]byte
	for i := 0; i < 3; i++ {
		mid, ct, err := sender.EncryptFor(awake.FromBytes([]byte("msg")))
		a.NoError(err)
		mids = append(mids, mid)
		cts = append(cts, ct)
	}

	pt, err := receiver.DecryptWithMid(mids[2], cts[2])
	a.NoError(err)
	a.Equal([]byte("msg"), pt)

	pt, err = receiver.DecryptWithMid(mids[0], cts[0])
	a.NoError(err)
	a.Equal([]byte("msg"), pt)
}
