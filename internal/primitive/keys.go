// Package primitive adapts the cryptographic operations AWAKE relies on to
// Go's standard library and golang.org/x/crypto, in one place, the way the
// teacher's internal/enigma and pkg/exchange packages adapt a host crypto
// API to Go. Every exported function here corresponds to one operation of
// the crypto primitives adapter described by the protocol's §4.1.
package primitive

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
)

const didPrefix = "did:key:zDn"

var (
	ErrMalformedDid = errors.New("malformed did")
	ErrInvalidKey   = errors.New("invalid key")
)

// KeyPair is a P-256 ECDH keypair. The same scalar is re-encoded as an
// ECDSA keypair on demand by ToSigner/ToVerifier: one identity key is
// published once as a did:key, but used for both key agreement and
// signatures (see §9 of the spec for the rationale and the tradeoff).
type KeyPair struct {
	Public  *ecdh.PublicKey
	private *ecdh.PrivateKey
}

// GenerateKeyPair creates a fresh P-256 ECDH keypair.
//
// extractable mirrors the WebCrypto `extractable` flag from the original
// host API; Go key material is always representable as raw bytes, so the
// flag has no effect here and exists only so callers porting from the
// original draft keep a familiar call shape.
func GenerateKeyPair(extractable bool) (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating p256 keypair: %w", err)
	}
	return &KeyPair{Public: priv.PublicKey(), private: priv}, nil
}

// ECDH performs a P-256 Diffie-Hellman exchange and returns the raw shared
// secret, ready to be used as HKDF input key material.
func ECDH(my *KeyPair, peer *ecdh.PublicKey) ([]byte, error) {
	secret, err := my.private.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("ecdh exchange: %w", err)
	}
	return secret, nil
}

// MarshalPublic returns the raw, uncompressed P-256 point (0x04 || X || Y),
// the same form the DID key codec encodes.
func MarshalPublic(pub *ecdh.PublicKey) []byte {
	return pub.Bytes()
}

// ParsePublic parses a raw, uncompressed P-256 point.
func ParsePublic(raw []byte) (*ecdh.PublicKey, error) {
	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return pub, nil
}

// ToSigner re-encodes a keypair's private scalar as a P-256 ECDSA signing
// key. This is the Go-native equivalent of the original adapter's JWK
// round-trip that rewrites alg/crv/kty/key_ops before re-importing the same
// point under a different algorithm identity.
func (k *KeyPair) ToSigner() *ecdsa.PrivateKey {
	d := new(big.Int).SetBytes(k.private.Bytes())
	x, y := ellipticUnmarshalUncompressed(k.Public.Bytes())
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
		D:         d,
	}
}

// ToVerifier re-encodes a raw P-256 public point as an ECDSA verification
// key, the public-side counterpart of ToSigner.
func ToVerifier(pub *ecdh.PublicKey) *ecdsa.PublicKey {
	x, y := ellipticUnmarshalUncompressed(pub.Bytes())
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
}

func ellipticUnmarshalUncompressed(raw []byte) (x, y *big.Int) {
	// raw is 0x04 || X(32) || Y(32); crypto/ecdh guarantees the uncompressed
	// form for P-256, so we slice directly instead of reaching for the
	// deprecated elliptic.Unmarshal.
	x = new(big.Int).SetBytes(raw[1:33])
	y = new(big.Int).SetBytes(raw[33:65])
	return x, y
}

// Sign produces an ECDSA-P256-SHA512 signature, matching the "ES512" JWT
// alg the wire format advertises (see §4.1 and §9: the SHA-512 digest under
// a P-256 curve is a deliberate, if anomalous, wire-compatibility choice).
func Sign(priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	hash := sha512.Sum512(msg)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, hash[:])
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	return sig, nil
}

// Verify checks an ECDSA-P256-SHA512 signature produced by Sign.
func Verify(pub *ecdsa.PublicKey, msg, sig []byte) bool {
	hash := sha512.Sum512(msg)
	return ecdsa.VerifyASN1(pub, hash[:], sig)
}

// SHA256 is a thin, named wrapper so call sites read like the spec's
// sha256(bytes) -> [32] operation rather than reaching for crypto/sha256
// directly everywhere.
func SHA256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// EncodeDID renders a raw P-256 public key as a did:key string.
func EncodeDID(pub *ecdh.PublicKey) string {
	return didPrefix + base58.Encode(pub.Bytes())
}

// DecodeDID reverses EncodeDID, failing with ErrMalformedDid when the
// prefix doesn't match or the body isn't valid base58/a valid P-256 point.
func DecodeDID(did string) (*ecdh.PublicKey, error) {
	if len(did) <= len(didPrefix) || did[:len(didPrefix)] != didPrefix {
		return nil, ErrMalformedDid
	}
	raw, err := base58.Decode(did[len(didPrefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDid, err)
	}
	pub, err := ParsePublic(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDid, err)
	}
	return pub, nil
}
