// Package ucan adapts a single P-256 identity key for use with a UCAN
// builder/parser, and implements just enough UCAN — issuer, audience,
// expiry, and a bag of facts — for AWAKE's handshake to carry its
// capability challenge and next-step DID (§4.6, §6). The full UCAN
// grammar and capability-validity predicate remain a host concern, per
// §1: this package only produces and reads the well-known fields the
// handshake needs.
package ucan

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kamune-org/awake/internal/primitive"
)

// signingAlg is the JWT "alg" UCAN tokens are encoded under. It does not
// match the hash actually used to produce the signature (SHA-512 over a
// P-256 curve, see signingMethodP256SHA512) — that mismatch is inherited
// from the source on purpose; see §4.6 and §9. Unlike Transitable, which
// advertises "ES512", the UCAN key adapter specifically advertises
// "ES256" while still signing with ECDSA-P256-SHA512; §4.6 calls out this
// asymmetry explicitly, and both peers must apply it uniformly.
const signingAlg = "ES256"

func init() {
	jwt.RegisterSigningMethod(signingAlg, func() jwt.SigningMethod {
		return signingMethodP256SHA512{}
	})
}

// signingMethodP256SHA512 is a jwt.SigningMethod backed by the identity
// key adapter's re-encoded ECDSA key (§4.1's ECDH-to-ECDSA conversion).
type signingMethodP256SHA512 struct{}

func (signingMethodP256SHA512) Alg() string { return signingAlg }

func (signingMethodP256SHA512) Sign(signingString string, key any) ([]byte, error) {
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	return primitive.Sign(priv, []byte(signingString))
}

func (signingMethodP256SHA512) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if !primitive.Verify(pub, []byte(signingString), sig) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

// KeyAdapter exposes a P-256 ECDH keypair as a UCAN identity. Tokens a
// Builder issues with it advertise "ES256" in their header while being
// signed with ECDSA-P256-SHA512 via signingMethodP256SHA512 — the
// asymmetry is preserved as observed in the source; both sides of a
// handshake must agree on it (§4.6).
type KeyAdapter struct {
	keys *primitive.KeyPair
}

// NewKeyAdapter wraps an existing P-256 keypair as a UCAN identity.
func NewKeyAdapter(keys *primitive.KeyPair) *KeyAdapter {
	return &KeyAdapter{keys: keys}
}

// DID returns this identity's did:key string.
func (k *KeyAdapter) DID() string { return primitive.EncodeDID(k.keys.Public) }

// Sign signs msg with the re-encoded ECDSA key.
func (k *KeyAdapter) Sign(msg []byte) ([]byte, error) {
	return primitive.Sign(k.keys.ToSigner(), msg)
}

// Verify checks a signature produced by Sign against a peer's raw public key.
func (k *KeyAdapter) Verify(pub *ecdh.PublicKey, msg, sig []byte) bool {
	return primitive.Verify(primitive.ToVerifier(pub), msg, sig)
}

func (k *KeyAdapter) ecdsaPrivate() *ecdsa.PrivateKey { return k.keys.ToSigner() }

// Fact is one order-independent UCAN fact, e.g. {"awake/nextdid": "..."}.
type Fact map[string]any

// Builder assembles a UCAN token the way the original draft's
// UcanBuilder chain does: issuer, audience, lifetime, then facts.
type Builder struct {
	issuer   *KeyAdapter
	audience string
	lifetime time.Duration
	facts    []Fact
}

// NewBuilder starts a UCAN issued by issuer.
func NewBuilder(issuer *KeyAdapter) *Builder {
	return &Builder{issuer: issuer}
}

func (b *Builder) ForAudience(audienceDID string) *Builder {
	b.audience = audienceDID
	return b
}

func (b *Builder) WithLifetime(d time.Duration) *Builder {
	b.lifetime = d
	return b
}

func (b *Builder) WithFact(f Fact) *Builder {
	b.facts = append(b.facts, f)
	return b
}

// Sign produces the signed UCAN JWT string.
func (b *Builder) Sign() (string, error) {
	if b.issuer == nil {
		return "", errors.New("ucan: builder has no issuer")
	}
	claims := jwt.MapClaims{
		"iss": b.issuer.DID(),
		"aud": b.audience,
		"fct": b.facts,
	}
	if b.lifetime > 0 {
		claims["exp"] = time.Now().Add(b.lifetime).Unix()
	}

	token := jwt.NewWithClaims(signingMethodP256SHA512{}, claims)
	signed, err := token.SignedString(b.issuer.ecdsaPrivate())
	if err != nil {
		return "", fmt.Errorf("signing ucan: %w", err)
	}
	return signed, nil
}

// Token is a parsed UCAN, with facts exposed for the host's
// is_ucan_valid predicate and for the handshake's own well-known fields.
type Token struct {
	Issuer   string
	Audience string
	Facts    []Fact
	Claims   jwt.MapClaims
}

// Parse verifies and decodes a UCAN issued by the holder of issuerPub.
func Parse(tokenString string, issuerPub *ecdh.PublicKey) (*Token, error) {
	verifier := primitive.ToVerifier(issuerPub)
	parsed, err := jwt.Parse(
		tokenString,
		func(t *jwt.Token) (any, error) { return verifier, nil },
		jwt.WithValidMethods([]string{signingAlg}),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing ucan: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("ucan: invalid token")
	}

	iss, _ := claims["iss"].(string)
	aud, _ := claims["aud"].(string)
	var facts []Fact
	if raw, ok := claims["fct"].([]any); ok {
		for _, r := range raw {
			if m, ok := r.(map[string]any); ok {
				facts = append(facts, Fact(m))
			}
		}
	}

	return &Token{Issuer: iss, Audience: aud, Facts: facts, Claims: claims}, nil
}

// FactString returns the string value of the first fact carrying key, if any.
func (t *Token) FactString(key string) (string, bool) {
	for _, f := range t.Facts {
		v, ok := f[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		return s, ok
	}
	return "", false
}

// Fact returns the first fact map containing key, if any.
func (t *Token) Fact(key string) (Fact, bool) {
	for _, f := range t.Facts {
		if _, ok := f[key]; ok {
			return f, true
		}
	}
	return nil, false
}
