// Command awakedemo runs a bare AWAKE handshake between two in-process
// identities and prints each side's DID, to exercise the library end to
// end without a real transport.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kamune-org/awake"
	"github.com/kamune-org/awake/internal/primitive"
	"github.com/kamune-org/awake/internal/ucan"
)

// oobPin stands in for the out-of-band PIN a host would generate and
// show its user; PIN generation and rendering are a host concern (§1).
const oobPin = "Arbitrary Pin"

func main() {
	if err := run(); err != nil {
		slog.Error("awakedemo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	requestorReal, err := primitive.GenerateKeyPair(false)
	if err != nil {
		return fmt.Errorf("generating requestor identity: %w", err)
	}
	responderReal, err := primitive.GenerateKeyPair(false)
	if err != nil {
		return fmt.Errorf("generating responder identity: %w", err)
	}

	fmt.Println("requestor did:", primitive.EncodeDID(requestorReal.Public))
	fmt.Println("responder did:", primitive.EncodeDID(responderReal.Public))

	requestor, err := awake.NewHandshake(requestorReal)
	if err != nil {
		return fmt.Errorf("building requestor handshake: %w", err)
	}
	responder, err := awake.NewHandshake(responderReal)
	if err != nil {
		return fmt.Errorf("building responder handshake: %w", err)
	}

	reqSigned, err := requestor.Request(nil)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}

	resSigned, err := responder.Respond(reqSigned, nil, time.Minute, func(_, _ []awake.Capability) bool {
		return true
	})
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}

	msgSigned, err := requestor.Challenge(resSigned, oobPin, func(_ *ucan.Token) bool { return true })
	if err != nil {
		return fmt.Errorf("challenge: %w", err)
	}

	if err := responder.Acknowledge(msgSigned, func(candidate string) bool { return candidate == oobPin }); err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}

	fmt.Println("handshake bound:", requestor.IsDone() && responder.IsDone())

	plaintext := []byte("hello from the requestor")
	_, ct, err := requestor.FinalAgent().EncryptFor(awake.FromBytes(plaintext))
	if err != nil {
		return fmt.Errorf("encrypting first message: %w", err)
	}
	pt, err := responder.FinalAgent().DecryptFor(1, ct)
	if err != nil {
		return fmt.Errorf("decrypting first message: %w", err)
	}
	fmt.Println("responder received:", string(pt))

	return nil
}
