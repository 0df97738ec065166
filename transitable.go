package awake

import (
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mr-tron/base58"

	"github.com/kamune-org/awake/internal/primitive"
)

// jwtHeader is the fixed header every Transitable JWT carries. The
// advertised alg does not match the hash actually used by Sign/Verify
// (SHA-512 under P-256); see §4.1 and §9.
const jwtHeader = `{"alg":"ES512","typ":"JWT"}`

// Transitable is an opaque byte sequence with four lossless projections,
// and the payload container signed/verified as a JWT-shaped string.
type Transitable []byte

// FromBytes wraps raw bytes as a Transitable.
func FromBytes(b []byte) Transitable {
	out := make(Transitable, len(b))
	copy(out, b)
	return out
}

// FromReadable wraps a UTF-8 string's bytes as a Transitable.
func FromReadable(s string) Transitable {
	return Transitable(s)
}

// FromBase58 decodes a base58 string into a Transitable.
func FromBase58(s string) (Transitable, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decoding base58 transitable: %w", err)
	}
	return Transitable(raw), nil
}

// FromBase64 decodes a standard base64 string into a Transitable.
func FromBase64(s string) (Transitable, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 transitable: %w", err)
	}
	return Transitable(raw), nil
}

// Bytes returns the raw byte projection.
func (t Transitable) Bytes() []byte { return []byte(t) }

// AsBase58 returns the base58 projection.
func (t Transitable) AsBase58() string { return base58.Encode(t) }

// AsBase64 returns the standard base64 projection.
func (t Transitable) AsBase64() string { return base64.StdEncoding.EncodeToString(t) }

// AsReadable returns the UTF-8 projection, failing if the bytes are not
// valid UTF-8.
func (t Transitable) AsReadable() (string, error) {
	if !utf8.Valid(t) {
		return "", fmt.Errorf("transitable is not valid utf-8")
	}
	return string(t), nil
}

// Sign produces the JWT string `h.p.s`: h is the fixed header, p is the
// base64url projection of t's ORIGINAL bytes, and s is the base64url
// ECDSA-P256-SHA512 signature over those same original bytes (not over
// p). Implementations MUST sign the original bytes, since Verify hashes
// the payload segment only after decoding it.
func (t Transitable) Sign(priv *ecdsa.PrivateKey) (string, error) {
	sig, err := primitive.Sign(priv, t)
	if err != nil {
		return "", fmt.Errorf("signing transitable: %w", err)
	}
	h := base64.RawURLEncoding.EncodeToString([]byte(jwtHeader))
	p := base64.RawURLEncoding.EncodeToString(t)
	s := base64.RawURLEncoding.EncodeToString(sig)
	return h + "." + p + "." + s, nil
}

// Verify splits signed on ".", decodes the payload and signature
// segments, and checks the signature against pub. A segment count other
// than three is reported as ErrMalformedJwt.
func Verify(signed string, pub *ecdsa.PublicKey) (Transitable, bool, error) {
	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		return nil, false, ErrMalformedJwt
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformedJwt, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformedJwt, err)
	}
	return Transitable(payload), primitive.Verify(pub, payload, sig), nil
}

// Unsign decodes signed's payload segment without checking its signature.
func Unsign(signed string) (Transitable, error) {
	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedJwt
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedJwt, err)
	}
	return Transitable(payload), nil
}
