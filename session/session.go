// Package session coordinates access to a remote collection store over one
// logical connection. Read-only operations go straight to the gateway via
// Queries; mutating operations always run inside Transaction, which watches
// the touched keys, buffers the mutations and retries the whole block when a
// concurrent writer invalidates the watch — optimistic locking, never
// partial application.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/coreos/go-semver/semver"
	"github.com/google/uuid"
)

var (
	txCommits   = metrics.GetOrCreateCounter(`collections_transactions_total{result="committed"}`)
	txConflicts = metrics.GetOrCreateCounter(`collections_transactions_total{result="conflict"}`)
)

// Session owns one logical connection to the store. All calls issued through
// a session are sequential; concurrency exists only across sessions
// contending on the same remote keys, and is resolved by the transaction
// retry protocol.
type Session struct {
	gw  Gateway
	id  string
	log *slog.Logger

	maxRetries int
	backoff    time.Duration

	capsOnce sync.Once
	caps     Capabilities
	capsErr  error

	mu      sync.Mutex
	current Tx
	attempt int
}

// New creates a session over the given gateway.
func New(gw Gateway, opts ...Option) *Session {
	s := &Session{
		gw:  gw,
		id:  uuid.NewString(),
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's identifier, used for log correlation.
func (s *Session) ID() string {
	return s.id
}

// Queries is the entry point for read-only operations. They execute
// immediately, watch nothing and never retry.
func (s *Session) Queries() Queries {
	return s.gw
}

// ServerVersion returns the store's version tuple.
func (s *Session) ServerVersion(ctx context.Context) (*semver.Version, error) {
	return s.gw.ServerVersion(ctx)
}

// Capabilities returns the gateway's capability report, fetched once and
// cached for the lifetime of the session.
func (s *Session) Capabilities(ctx context.Context) (Capabilities, error) {
	s.capsOnce.Do(func() {
		s.caps, s.capsErr = s.gw.Capabilities(ctx)
	})
	return s.caps, s.capsErr
}

// Close closes the session's gateway.
func (s *Session) Close() error {
	return s.gw.Close()
}

// Transaction is the entry point for mutating operations. It runs fn inside
// an optimistic attempt watching keys: fn may read through the transaction,
// watch further keys it discovers, and buffer mutations, which commit
// atomically if and only if no watched key was changed concurrently. On a
// rejected commit every buffered effect is discarded and fn is re-run from
// scratch with an incremented attempt counter, indefinitely by default
// (WithMaxRetries caps it, WithRetryBackoff paces it).
//
// Errors returned by fn abort the current attempt and propagate without
// retrying: only lost-update conflicts trigger a retry, never logic errors.
func (s *Session) Transaction(ctx context.Context, keys []string, fn func(tx Tx, attempt int) error, opts ...TxOption) error {
	var cfg txConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	if s.current != nil {
		tx, attempt := s.current, s.attempt
		s.mu.Unlock()
		if !cfg.ignoreDouble {
			return ErrDoubleTransaction
		}
		// Join the in-flight transaction: the outer commit covers the
		// inner block's buffered commands.
		if err := tx.Watch(ctx, keys...); err != nil {
			return err
		}
		return fn(tx, attempt)
	}
	s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		err := s.gw.Atomic(ctx, keys, func(tx Tx) error {
			s.mu.Lock()
			s.current, s.attempt = tx, attempt
			s.mu.Unlock()
			defer func() {
				s.mu.Lock()
				s.current = nil
				s.mu.Unlock()
			}()
			return fn(tx, attempt)
		})
		if err == nil {
			txCommits.Inc()
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		txConflicts.Inc()
		s.log.Debug("transaction conflict, retrying",
			slog.String("session", s.id),
			slog.Int("attempt", attempt),
			slog.Any("keys", keys),
		)
		if s.maxRetries > 0 && attempt >= s.maxRetries {
			return fmt.Errorf("%w: %d attempts", ErrRetriesExceeded, attempt)
		}
		if s.backoff > 0 {
			select {
			case <-time.After(time.Duration(attempt) * s.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
