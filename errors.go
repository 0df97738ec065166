package awake

import (
	"errors"

	"github.com/kamune-org/awake/internal/primitive"
	"github.com/kamune-org/awake/pkg/ratchet"
)

var (
	// ErrMalformedDid is returned when a did:key string has an invalid
	// prefix or an undecodable body.
	ErrMalformedDid = primitive.ErrMalformedDid

	// ErrMalformedJwt is returned when a Transitable JWT string does not
	// have exactly three dot-separated segments, or a segment isn't valid
	// base64.
	ErrMalformedJwt = errors.New("malformed jwt")

	// ErrMalformedEnvelope is returned when a wire envelope fails to parse
	// as JSON, or is missing a required field.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrHandshakeClosed is returned by any Handshake method called after
	// it has already produced a final agent.
	ErrHandshakeClosed = errors.New("handshake is already bound")

	// ErrAlreadyProcessed is returned when a ratchet index is reused.
	ErrAlreadyProcessed = ratchet.ErrAlreadyProcessed

	// ErrCipherFailure covers AES-GCM authentication failures and ECDSA
	// signature verification failures.
	ErrCipherFailure = primitive.ErrCipherFailure

	// ErrUnknownMid is returned when no agent or ratchet index matches a
	// supplied message id.
	ErrUnknownMid = errors.New("no match for message id")

	// ErrCapabilitiesRejected is returned when the host's
	// are_capabilities_valid callback returns false.
	ErrCapabilitiesRejected = errors.New("capabilities rejected")

	// ErrUcanRejected is returned when the host's is_ucan_valid callback
	// returns false.
	ErrUcanRejected = errors.New("ucan rejected")

	// ErrPinRejected is returned when the host's is_pin_valid callback
	// returns false. A challenge signature that does not verify is
	// reported as ErrCipherFailure instead.
	ErrPinRejected = errors.New("pin rejected")
)
