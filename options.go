package awake

import "log/slog"

// defaultMidSearchCap bounds ForeignAgent.DecryptWithMid's outward search.
// The source hard-codes 1,000,000 with no stated rationale; this is kept
// as a configurable default rather than a fixed constant (§9).
const defaultMidSearchCap = 1_000_000

type handshakeConfig struct {
	logger       *slog.Logger
	midSearchCap int
}

func defaultHandshakeConfig() *handshakeConfig {
	return &handshakeConfig{
		logger:       slog.Default(),
		midSearchCap: defaultMidSearchCap,
	}
}

// HandshakeOption configures a Handshake at construction time.
type HandshakeOption func(*handshakeConfig)

// WithLogger overrides the structured logger a Handshake writes
// rejection diagnostics to (capabilities, UCAN, and PIN rejections).
func WithLogger(l *slog.Logger) HandshakeOption {
	return func(c *handshakeConfig) { c.logger = l }
}

// WithAgentMidSearchCap overrides the bound every ForeignAgent this
// Handshake builds applies to DecryptWithMid's outward search (§4.4, §9).
func WithAgentMidSearchCap(n int) HandshakeOption {
	return func(c *handshakeConfig) { c.midSearchCap = n }
}
