// Package ratchet implements the symmetric ratchet described by the
// protocol's §4.3: a linear, append-only sequence of one-shot
// PayloadHandlers, each deriving its key material from a shared secret,
// a salt, and the previous element's secret. Unlike the teacher's Double
// Ratchet (pkg/ratchet in kamune), this ratchet never re-keys on its own
// DH step; rekeying only happens through SetNewSharedKey, driven by the
// handshake's final step.
package ratchet

import (
	"errors"
	"fmt"

	"github.com/kamune-org/awake/internal/primitive"
)

const (
	keySize = 32
	ivSize  = 12
	// blockBits is 608: 32 bytes secret + 32 bytes aes_key + 12 bytes iv.
	blockBits = (keySize + keySize + ivSize) * 8
)

var (
	ErrAlreadyProcessed  = errors.New("ratchet element already processed")
	ErrAlreadyAdvanced   = errors.New("ratchet element has already produced its successor")
	ErrInvalidRekeyIndex = errors.New("rekey index does not match current chain length")
	ErrCipherFailure     = primitive.ErrCipherFailure
)

// PayloadHandler is one element of a Ratchet. ProcessPayload and next
// may each be called at most once; each is one-shot.
type PayloadHandler struct {
	sharedSecret []byte
	salt         []byte
	secret       []byte
	aesKey       []byte
	iv           []byte
	nextTaken    bool
	processTaken bool
	encrypting   bool
}

func newPayloadHandler(
	sharedSecret, salt, info []byte, encrypting bool,
) (*PayloadHandler, error) {
	block, err := primitive.HKDF(sharedSecret, salt, info, blockBits)
	if err != nil {
		return nil, fmt.Errorf("deriving payload handler: %w", err)
	}
	// Keep private copies: advance zeroes these, and callers (and sibling
	// ratchets) may share the slices passed in.
	return &PayloadHandler{
		sharedSecret: append([]byte(nil), sharedSecret...),
		salt:         append([]byte(nil), salt...),
		secret:       block[:keySize],
		aesKey:       block[keySize : 2*keySize],
		iv:           block[2*keySize : 2*keySize+ivSize],
		encrypting:   encrypting,
	}, nil
}

// ProcessPayload encrypts or decrypts p, depending on this element's
// direction, then destroys its AES key and IV. Calling it twice fails
// with ErrAlreadyProcessed.
func (h *PayloadHandler) ProcessPayload(p []byte) ([]byte, error) {
	if h.processTaken {
		return nil, ErrAlreadyProcessed
	}
	h.processTaken = true
	defer h.zeroCipherMaterial()

	if h.encrypting {
		return primitive.Seal(h.aesKey, h.iv, p)
	}
	return primitive.Open(h.aesKey, h.iv, p)
}

func (h *PayloadHandler) zeroCipherMaterial() {
	zero(h.aesKey)
	zero(h.iv)
	h.aesKey, h.iv = nil, nil
}

// advance derives the successor element, seeding it with ikm (normally
// this element's own sharedSecret, or a fresh secret for a rekey), this
// element's salt, and this element's secret as HKDF info. It then zeroes
// the fields that must not outlive the transition.
func (h *PayloadHandler) advance(ikm []byte) (*PayloadHandler, error) {
	if h.nextTaken {
		return nil, ErrAlreadyAdvanced
	}
	next, err := newPayloadHandler(ikm, h.salt, h.secret, h.encrypting)
	h.nextTaken = true
	zero(h.secret)
	zero(h.sharedSecret)
	zero(h.salt)
	h.secret, h.sharedSecret, h.salt = nil, nil, nil
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (h *PayloadHandler) next() (*PayloadHandler, error) {
	return h.advance(h.sharedSecret)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Ratchet is an ordered chain of PayloadHandlers, all seeded from the same
// shared secret and salt but growing lazily as higher indexes are needed.
type Ratchet struct {
	elements     []*PayloadHandler
	sharedSecret []byte
	salt         []byte
	encrypting   bool
}

// New seeds element 0 with an empty info, per §4.3.
func New(sharedSecret, salt []byte, encrypting bool) (*Ratchet, error) {
	first, err := newPayloadHandler(sharedSecret, salt, nil, encrypting)
	if err != nil {
		return nil, err
	}
	return &Ratchet{
		elements:     []*PayloadHandler{first},
		sharedSecret: sharedSecret,
		salt:         salt,
		encrypting:   encrypting,
	}, nil
}

// Len reports how many elements have been derived so far.
func (r *Ratchet) Len() int { return len(r.elements) }

func (r *Ratchet) growThrough(id int) error {
	for len(r.elements) <= id {
		last := r.elements[len(r.elements)-1]
		next, err := last.next()
		if err != nil {
			return fmt.Errorf("growing ratchet to index %d: %w", id, err)
		}
		r.elements = append(r.elements, next)
	}
	return nil
}

// ProcessPayload lazily grows the chain through id, then encrypts or
// decrypts p at that index. Reusing an index fails with ErrAlreadyProcessed.
func (r *Ratchet) ProcessPayload(id int, p []byte) ([]byte, error) {
	if id < 0 {
		return nil, fmt.Errorf("negative ratchet index: %d", id)
	}
	if err := r.growThrough(id); err != nil {
		return nil, err
	}
	out, err := r.elements[id].ProcessPayload(p)
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return nil, fmt.Errorf("%w: id=%d", ErrAlreadyProcessed, id)
		}
		return nil, err
	}
	return out, nil
}

// SetNewSharedKey rekeys the chain at startID: it requires the chain to
// currently have exactly startID elements (0..startID-1) and that element
// startID-1 has not yet produced a successor. The new element reuses
// element startID-1's salt and secret-as-info, but derives from newSecret
// instead of the ratchet's original shared secret.
func (r *Ratchet) SetNewSharedKey(startID int, newSecret []byte) error {
	if len(r.elements) != startID {
		return fmt.Errorf(
			"%w: chain has %d elements, want %d",
			ErrInvalidRekeyIndex, len(r.elements), startID,
		)
	}
	last := r.elements[startID-1]
	next, err := last.advance(newSecret)
	if err != nil {
		return fmt.Errorf("rekeying at index %d: %w", startID, err)
	}
	r.elements = append(r.elements, next)
	return nil
}
