package awake

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kamune-org/awake/internal/primitive"
	"github.com/kamune-org/awake/internal/ucan"
)

const protocolVersion = "0.1.0"

type initEnvelope struct {
	Awv  string       `json:"awv"`
	Type string       `json:"type"`
	DID  string       `json:"did"`
	Caps []Capability `json:"caps"`
}

type responseEnvelope struct {
	Awv  string `json:"awv"`
	Type string `json:"type"`
	Aud  string `json:"aud"`
	Iss  string `json:"iss"`
	Msg  string `json:"msg"`
}

type msgEnvelope struct {
	Awv  string `json:"awv"`
	Type string `json:"type"`
	Mid  string `json:"mid"`
	Msg  string `json:"msg"`
}

// challengePayload is the plaintext encrypted inside an awake/msg
// envelope during challenge(). NextDid carries the requestor's step-4
// DID, which §4.5's bullet list omits but §4.4's Finalize needs on the
// responder side to derive the same rekeyed secret; see DESIGN.md.
type challengePayload struct {
	Pin     string `json:"pin"`
	Did     string `json:"did"`
	Sig     string `json:"sig"`
	NextDid string `json:"next_did"`
}

// Handshake drives the four-step AWAKE state machine described in §4.5.
// It owns three keypairs — step2, step4, and the caller-supplied real
// identity — and a small map of tentative peers, at most one of which
// survives to FinalAgent.
type Handshake struct {
	mu sync.Mutex

	real  *primitive.KeyPair
	step2 *primitive.KeyPair
	step4 *primitive.KeyPair

	potentialPartners map[string]*ForeignAgent
	finalAgent        *ForeignAgent

	cfg *handshakeConfig
}

// NewHandshake creates a Fresh handshake for the given long-lived
// identity keypair, generating fresh step-2 and step-4 ephemeral
// keypairs. The real keypair is borrowed for the Handshake's lifetime
// only; persistence is a host concern.
func NewHandshake(real *primitive.KeyPair, opts ...HandshakeOption) (*Handshake, error) {
	step2, err := primitive.GenerateKeyPair(true)
	if err != nil {
		return nil, fmt.Errorf("generating step2 keypair: %w", err)
	}
	step4, err := primitive.GenerateKeyPair(true)
	if err != nil {
		return nil, fmt.Errorf("generating step4 keypair: %w", err)
	}

	cfg := defaultHandshakeConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Handshake{
		real:              real,
		step2:             step2,
		step4:             step4,
		potentialPartners: make(map[string]*ForeignAgent),
		cfg:               cfg,
	}, nil
}

// IsDone reports whether this handshake has produced a final agent.
func (h *Handshake) IsDone() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finalAgent != nil
}

// FinalAgent returns the bound ForeignAgent, or nil if not yet done.
func (h *Handshake) FinalAgent() *ForeignAgent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finalAgent
}

// Request produces the initial signed awake/init envelope, advertising
// the requestor's step-2 DID and capabilities.
func (h *Handshake) Request(caps []Capability) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finalAgent != nil {
		return "", ErrHandshakeClosed
	}

	body := initEnvelope{
		Awv:  protocolVersion,
		Type: "awake/init",
		DID:  primitive.EncodeDID(h.step2.Public),
		Caps: caps,
	}
	return h.signEnvelope(body)
}

// Respond consumes a signed awake/init envelope and, if areCapsValid
// accepts the exchange, returns a signed awake/res envelope carrying an
// encrypted UCAN with the responder's next-step DID and PIN challenge.
func (h *Handshake) Respond(
	requestSigned string,
	myCaps []Capability,
	lifetime time.Duration,
	areCapsValid func(theirs, mine []Capability) bool,
) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finalAgent != nil {
		return "", ErrHandshakeClosed
	}

	var req initEnvelope
	if err := h.unsignEnvelope(requestSigned, &req); err != nil {
		return "", err
	}

	agent, err := NewForeignAgent(h.step2, req.DID, nil, WithMidSearchCap(h.cfg.midSearchCap))
	if err != nil {
		return "", fmt.Errorf("building foreign agent: %w", err)
	}

	if !areCapsValid(req.Caps, myCaps) {
		h.cfg.logger.Warn("awake: capabilities rejected", "peer", req.DID)
		return "", ErrCapabilitiesRejected
	}

	issuer := ucan.NewKeyAdapter(h.real)
	token, err := ucan.NewBuilder(issuer).
		ForAudience(req.DID).
		WithLifetime(lifetime).
		WithFact(ucan.Fact{"awake/nextdid": primitive.EncodeDID(h.step4.Public)}).
		WithFact(ucan.Fact{"awake/challenge": "oob-pin", "caps": myCaps}).
		Sign()
	if err != nil {
		return "", fmt.Errorf("signing ucan: %w", err)
	}

	_, ct, err := agent.EncryptFor(Transitable(token))
	if err != nil {
		return "", fmt.Errorf("encrypting response: %w", err)
	}

	h.potentialPartners[req.DID] = agent

	body := responseEnvelope{
		Awv:  protocolVersion,
		Type: "awake/res",
		Aud:  req.DID,
		Iss:  primitive.EncodeDID(h.step2.Public),
		Msg:  base64.StdEncoding.EncodeToString(ct),
	}
	return h.signEnvelope(body)
}

// Challenge consumes a signed awake/res envelope, validates the enclosed
// UCAN via isUcanValid, and returns a signed awake/msg envelope carrying
// a PIN-anchored challenge signature. On success it also finalizes this
// side's agent, since both step-4 DIDs are already known at this point
// (see challengePayload's NextDid field and DESIGN.md).
func (h *Handshake) Challenge(
	responseSigned, oobPin string,
	isUcanValid func(*ucan.Token) bool,
) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finalAgent != nil {
		return "", ErrHandshakeClosed
	}

	var res responseEnvelope
	if err := h.unsignEnvelope(responseSigned, &res); err != nil {
		return "", err
	}

	peerStep2Pub, err := primitive.DecodeDID(res.Iss)
	if err != nil {
		return "", err
	}

	agent, err := NewForeignAgent(h.step2, res.Iss, h.step2.Public, WithMidSearchCap(h.cfg.midSearchCap))
	if err != nil {
		return "", fmt.Errorf("building foreign agent: %w", err)
	}

	ct, err := base64.StdEncoding.DecodeString(res.Msg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	ucanToken, err := agent.DecryptFor(0, ct)
	if err != nil {
		return "", err
	}

	// The UCAN is signed with the responder's real identity key, which the
	// requestor only learns from the token's own iss claim.
	ucanClaims, err := Unsign(string(ucanToken))
	if err != nil {
		return "", fmt.Errorf("reading ucan: %w", err)
	}
	var ucanIssuer struct {
		Iss string `json:"iss"`
	}
	if err := json.Unmarshal(ucanClaims, &ucanIssuer); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	issuerPub, err := primitive.DecodeDID(ucanIssuer.Iss)
	if err != nil {
		return "", err
	}
	parsed, err := ucan.Parse(string(ucanToken), issuerPub)
	if err != nil {
		return "", fmt.Errorf("parsing ucan: %w", err)
	}
	if !isUcanValid(parsed) {
		h.cfg.logger.Warn("awake: ucan rejected", "peer", res.Iss)
		return "", ErrUcanRejected
	}

	peerRealDID := parsed.Issuer
	peerStep4DID, ok := parsed.FactString("awake/nextdid")
	if !ok {
		return "", fmt.Errorf("%w: missing awake/nextdid fact", ErrMalformedEnvelope)
	}
	peerRealPub, err := primitive.DecodeDID(peerRealDID)
	if err != nil {
		return "", err
	}

	digest := primitive.SHA256(concatBytes(primitive.MarshalPublic(peerRealPub), []byte(oobPin)))
	sig, err := primitive.Sign(h.real.ToSigner(), digest[:])
	if err != nil {
		return "", fmt.Errorf("signing challenge: %w", err)
	}

	payload := challengePayload{
		Pin:     oobPin,
		Did:     primitive.EncodeDID(h.real.Public),
		Sig:     base64.StdEncoding.EncodeToString(sig),
		NextDid: primitive.EncodeDID(h.step4.Public),
	}
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling challenge payload: %w", err)
	}

	_, ct2, err := agent.EncryptFor(Transitable(payloadRaw))
	if err != nil {
		return "", fmt.Errorf("encrypting challenge: %w", err)
	}

	midSum := primitive.SHA256(concatBytes(
		primitive.MarshalPublic(h.step2.Public), primitive.MarshalPublic(peerStep2Pub),
	))
	mid := base64.StdEncoding.EncodeToString(midSum[:])

	if err := agent.Finalize(h.step4, peerStep4DID, []byte(peerRealDID)); err != nil {
		return "", fmt.Errorf("finalizing agent: %w", err)
	}
	h.finalAgent = agent
	h.potentialPartners = nil
	h.step2, h.step4 = nil, nil

	body := msgEnvelope{
		Awv:  protocolVersion,
		Type: "awake/msg",
		Mid:  mid,
		Msg:  base64.StdEncoding.EncodeToString(ct2),
	}
	return h.signEnvelope(body)
}

// Acknowledge consumes a signed awake/msg envelope produced by Challenge,
// verifies the PIN-anchored signature and runs isPinValid, and on
// acceptance finalizes the matching agent, binding the handshake.
func (h *Handshake) Acknowledge(
	challengeSigned string, isPinValid func(pin string) bool,
) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finalAgent != nil {
		return ErrHandshakeClosed
	}

	var msg msgEnvelope
	if err := h.unsignEnvelope(challengeSigned, &msg); err != nil {
		return err
	}

	agent, peerDID, err := h.findPartnerByMid(msg.Mid)
	if err != nil {
		return err
	}

	ct, err := base64.StdEncoding.DecodeString(msg.Msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	plaintext, err := agent.DecryptFor(0, ct)
	if err != nil {
		return err
	}

	var challenge challengePayload
	if err := json.Unmarshal(plaintext, &challenge); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	// challenge.Did identifies the signer (the requestor's real DID), used
	// to verify the signature below. The digest preimage itself, though,
	// is this side's OWN real DID bytes: Challenge signed
	// SHA-256(did_key_bytes(peer_real_did) ‖ pin) where "peer_real_did"
	// was the responder's DID as seen from the requestor's side — i.e.
	// this handshake's own identity, not the signer's.
	signerPub, err := primitive.DecodeDID(challenge.Did)
	if err != nil {
		return err
	}
	digest := primitive.SHA256(concatBytes(primitive.MarshalPublic(h.real.Public), []byte(challenge.Pin)))
	sig, err := base64.StdEncoding.DecodeString(challenge.Sig)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if !primitive.Verify(primitive.ToVerifier(signerPub), digest[:], sig) {
		return ErrCipherFailure
	}

	if !isPinValid(challenge.Pin) {
		h.cfg.logger.Warn("awake: pin rejected", "peer", peerDID)
		return ErrPinRejected
	}

	// mid_prefix must be the same bytes on both sides of the session:
	// Challenge above seeds it with peerRealDID, the responder's real DID
	// as seen from the requestor's side. From here, on the responder's
	// side, "the responder's real DID" is simply this handshake's own
	// identity — not challenge.Did, which only identifies the signer
	// (the requestor) and would give the two sides mismatched prefixes.
	if err := agent.Finalize(h.step4, challenge.NextDid, []byte(primitive.EncodeDID(h.real.Public))); err != nil {
		return fmt.Errorf("finalizing agent: %w", err)
	}

	h.finalAgent = agent
	h.potentialPartners = nil
	h.step2, h.step4 = nil, nil
	return nil
}

func (h *Handshake) findPartnerByMid(mid string) (*ForeignAgent, string, error) {
	for did, agent := range h.potentialPartners {
		peerPub, err := primitive.DecodeDID(did)
		if err != nil {
			continue
		}
		sum := primitive.SHA256(concatBytes(
			primitive.MarshalPublic(peerPub), primitive.MarshalPublic(h.step2.Public),
		))
		if base64.StdEncoding.EncodeToString(sum[:]) == mid {
			return agent, did, nil
		}
	}
	return nil, "", ErrUnknownMid
}

func (h *Handshake) signEnvelope(body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling envelope: %w", err)
	}
	signed, err := Transitable(raw).Sign(h.real.ToSigner())
	if err != nil {
		return "", fmt.Errorf("signing envelope: %w", err)
	}
	return signed, nil
}

func (h *Handshake) unsignEnvelope(signed string, out any) error {
	raw, err := Unsign(signed)
	if err != nil {
		return fmt.Errorf("unsigning envelope: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return nil
}

func concatBytes(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
