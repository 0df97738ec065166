package awake

import (
	"crypto/ecdh"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/kamune-org/awake/internal/primitive"
	"github.com/kamune-org/awake/pkg/ratchet"
)

// ForeignAgent binds one peer's DID to a pair of ratchets (one per
// direction) plus a monotonic send counter and an optional message-id
// prefix, per §4.4.
type ForeignAgent struct {
	peerDID      string
	nextSendID   uint64
	sendRatchet  *ratchet.Ratchet
	recvRatchet  *ratchet.Ratchet
	midPrefix    []byte
	midSearchCap int
}

// AgentOption configures a ForeignAgent at construction time.
type AgentOption func(*ForeignAgent)

// WithMidSearchCap overrides the bound on how far DecryptWithMid searches
// around the receive ratchet's current length (§4.4, §9).
func WithMidSearchCap(n int) AgentOption {
	return func(a *ForeignAgent) { a.midSearchCap = n }
}

// NewForeignAgent derives a shared secret via ECDH(myKeys, peer) and
// builds the send/receive ratchet pair. When requestorPub is non-nil, the
// salt is the did:key of requestorPub; otherwise it's peerDID's own bytes.
func NewForeignAgent(
	myKeys *primitive.KeyPair, peerDID string, requestorPub *ecdh.PublicKey,
	opts ...AgentOption,
) (*ForeignAgent, error) {
	peerPub, err := primitive.DecodeDID(peerDID)
	if err != nil {
		return nil, err
	}
	shared, err := primitive.ECDH(myKeys, peerPub)
	if err != nil {
		return nil, fmt.Errorf("deriving agent shared secret: %w", err)
	}

	var salt []byte
	if requestorPub != nil {
		salt = []byte(primitive.EncodeDID(requestorPub))
	} else {
		salt = []byte(peerDID)
	}

	sendR, err := ratchet.New(shared, salt, true)
	if err != nil {
		return nil, fmt.Errorf("building send ratchet: %w", err)
	}
	recvR, err := ratchet.New(shared, salt, false)
	if err != nil {
		return nil, fmt.Errorf("building receive ratchet: %w", err)
	}

	agent := &ForeignAgent{
		peerDID:      peerDID,
		sendRatchet:  sendR,
		recvRatchet:  recvR,
		midSearchCap: defaultMidSearchCap,
	}
	for _, opt := range opts {
		opt(agent)
	}
	return agent, nil
}

// PeerDID returns the DID this agent is bound to.
func (a *ForeignAgent) PeerDID() string { return a.peerDID }

// IsSenderOf verifies signed's JWT signature against the peer's DID.
func (a *ForeignAgent) IsSenderOf(signed string) (bool, error) {
	peerPub, err := primitive.DecodeDID(a.peerDID)
	if err != nil {
		return false, err
	}
	_, ok, err := Verify(signed, primitive.ToVerifier(peerPub))
	if err != nil {
		return false, err
	}
	return ok, nil
}

// EncryptFor encrypts payload at the current send index, then advances
// it. The returned mid is derived from midPrefix when set, or is simply
// the decimal send index otherwise.
func (a *ForeignAgent) EncryptFor(payload Transitable) (mid string, ciphertext []byte, err error) {
	id := a.nextSendID
	ct, err := a.sendRatchet.ProcessPayload(int(id), payload.Bytes())
	if err != nil {
		return "", nil, err
	}
	a.nextSendID++
	return a.deriveMid(id), ct, nil
}

// DecryptFor decrypts payload at the given receive index.
func (a *ForeignAgent) DecryptFor(id int, payload []byte) ([]byte, error) {
	return a.recvRatchet.ProcessPayload(id, payload)
}

// DecryptWithMid searches outward from the receive ratchet's current
// length, bounded by the agent's mid search cap, for an index whose
// derived mid equals mid.
func (a *ForeignAgent) DecryptWithMid(mid string, payload []byte) ([]byte, error) {
	tried := make(map[int]bool)
	center := a.recvRatchet.Len()

	try := func(id int) ([]byte, bool, error) {
		if id < 0 || tried[id] {
			return nil, false, nil
		}
		tried[id] = true
		if a.deriveMid(uint64(id)) != mid {
			return nil, false, nil
		}
		pt, err := a.DecryptFor(id, payload)
		return pt, true, err
	}

	if pt, matched, err := try(center); matched {
		return pt, err
	}
	for delta := 1; delta <= a.midSearchCap; delta++ {
		if pt, matched, err := try(center + delta); matched {
			return pt, err
		}
		if pt, matched, err := try(center - delta); matched {
			return pt, err
		}
	}
	return nil, ErrUnknownMid
}

// Finalize switches this agent from its handshake-time shared secret to a
// new one, rekeying both ratchets at index 1, and sets the message-id
// prefix used by future EncryptFor/DecryptWithMid calls.
func (a *ForeignAgent) Finalize(
	newKeys *primitive.KeyPair, newPeerDID string, midPrefix []byte,
) error {
	peerPub, err := primitive.DecodeDID(newPeerDID)
	if err != nil {
		return err
	}
	newSecret, err := primitive.ECDH(newKeys, peerPub)
	if err != nil {
		return fmt.Errorf("deriving finalize shared secret: %w", err)
	}
	if err := a.sendRatchet.SetNewSharedKey(1, newSecret); err != nil {
		return fmt.Errorf("rekeying send ratchet: %w", err)
	}
	if err := a.recvRatchet.SetNewSharedKey(1, newSecret); err != nil {
		return fmt.Errorf("rekeying receive ratchet: %w", err)
	}
	a.peerDID = newPeerDID
	a.midPrefix = midPrefix
	return nil
}

func (a *ForeignAgent) deriveMid(id uint64) string {
	if a.midPrefix == nil {
		return strconv.FormatUint(id, 10)
	}
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], id)
	buf := make([]byte, 0, len(a.midPrefix)+8)
	buf = append(buf, a.midPrefix...)
	buf = append(buf, idBytes[:]...)
	sum := primitive.SHA256(buf)
	return base64.StdEncoding.EncodeToString(sum[:])
}
