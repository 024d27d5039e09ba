package session

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithMaxRetries caps the number of attempts a transaction makes before
// giving up with ErrRetriesExceeded. Zero, the default, retries forever;
// indefinite retry under sustained contention is the documented base
// behavior, the cap exists to surface that liveness risk as a tunable.
func WithMaxRetries(n int) Option {
	return func(s *Session) {
		s.maxRetries = n
	}
}

// WithRetryBackoff sets the pause between conflicting attempts. The pause
// grows linearly with the attempt number. Zero, the default, retries
// immediately.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Session) {
		s.backoff = d
	}
}

// WithLogger sets the logger for transaction lifecycle events.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// TxOption is a per-transaction option.
type TxOption func(*txConfig)

type txConfig struct {
	ignoreDouble bool
}

// IgnoreDouble lets a transaction opened while another is in flight on the
// same session join the in-flight one instead of failing with
// ErrDoubleTransaction. Appropriate for blocks built from additive commands
// such as score increments, where re-running after a conflict retry
// self-corrects because the rejected commit discarded every buffered effect.
func IgnoreDouble() TxOption {
	return func(c *txConfig) {
		c.ignoreDouble = true
	}
}
