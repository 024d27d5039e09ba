package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/collections/session"
	"github.com/creastat/collections/session/drivers"
)

func newSession(t *testing.T, opts ...session.Option) (*session.Session, *drivers.MemoryGateway) {
	t.Helper()
	gw := drivers.NewMemoryGateway()
	return session.New(gw, opts...), gw
}

// commit applies a mutation unconditionally, standing in for a concurrent
// writer from another session.
func commit(t *testing.T, gw *drivers.MemoryGateway, fn func(tx session.Tx)) {
	t.Helper()
	err := gw.Atomic(context.Background(), nil, func(tx session.Tx) error {
		fn(tx)
		return nil
	})
	require.NoError(t, err)
}

func TestTransactionCommits(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	s, gw := newSession(t)

	err := s.Transaction(ctx, []string{"k"}, func(tx session.Tx, attempt int) error {
		a.Equal(1, attempt)
		tx.SetAdd("k", []byte("a"), []byte("b"))
		return nil
	})
	require.NoError(t, err)

	n, err := gw.SetCard(ctx, "k")
	a.NoError(err)
	a.EqualValues(2, n)
}

func TestTransactionRetriesOnConflict(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	s, gw := newSession(t)

	attempts := 0
	err := s.Transaction(ctx, []string{"k"}, func(tx session.Tx, attempt int) error {
		attempts++
		a.Equal(attempts, attempt)
		if attempt == 1 {
			// Another writer mutates the watched key before our commit.
			commit(t, gw, func(tx session.Tx) {
				tx.SetAdd("k", []byte("rival"))
			})
		}
		tx.SetAdd("k", []byte("mine"))
		return nil
	})
	require.NoError(t, err)
	a.Equal(2, attempts)

	has, err := gw.SetHas(ctx, "k", []byte("mine"))
	a.NoError(err)
	a.True(has)
	has, err = gw.SetHas(ctx, "k", []byte("rival"))
	a.NoError(err)
	a.True(has)
}

func TestTransactionRetryLimit(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	s, gw := newSession(t, session.WithMaxRetries(3), session.WithRetryBackoff(time.Millisecond))

	attempts := 0
	err := s.Transaction(ctx, []string{"k"}, func(tx session.Tx, attempt int) error {
		attempts++
		commit(t, gw, func(tx session.Tx) {
			tx.SetAdd("k", []byte("rival"))
		})
		tx.SetAdd("k", []byte("mine"))
		return nil
	})
	a.ErrorIs(err, session.ErrRetriesExceeded)
	a.Equal(3, attempts)

	// The losing transaction left no partial effects behind.
	has, err := gw.SetHas(ctx, "k", []byte("mine"))
	a.NoError(err)
	a.False(has)
}

func TestTransactionDoesNotRetryBlockErrors(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	s, gw := newSession(t)

	boom := errors.New("boom")
	attempts := 0
	err := s.Transaction(ctx, []string{"k"}, func(tx session.Tx, attempt int) error {
		attempts++
		tx.SetAdd("k", []byte("never"))
		return boom
	})
	a.ErrorIs(err, boom)
	a.Equal(1, attempts)

	n, err := gw.SetCard(ctx, "k")
	a.NoError(err)
	a.Zero(n)
}

func TestDoubleTransaction(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	s, gw := newSession(t)

	err := s.Transaction(ctx, []string{"k"}, func(tx session.Tx, attempt int) error {
		inner := s.Transaction(ctx, []string{"k"}, func(tx session.Tx, attempt int) error {
			return nil
		})
		a.ErrorIs(inner, session.ErrDoubleTransaction)

		// With IgnoreDouble the inner block joins the in-flight attempt.
		inner = s.Transaction(ctx, []string{"k2"}, func(tx session.Tx, attempt int) error {
			tx.SetAdd("k2", []byte("joined"))
			return nil
		}, session.IgnoreDouble())
		a.NoError(inner)

		tx.SetAdd("k", []byte("outer"))
		return nil
	})
	require.NoError(t, err)

	// Both the outer and the joined inner mutation committed together.
	has, err := gw.SetHas(ctx, "k", []byte("outer"))
	a.NoError(err)
	a.True(has)
	has, err = gw.SetHas(ctx, "k2", []byte("joined"))
	a.NoError(err)
	a.True(has)
}

func TestJoinedTransactionWatchesItsKeys(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	s, gw := newSession(t)

	attempts := 0
	err := s.Transaction(ctx, []string{"k"}, func(tx session.Tx, attempt int) error {
		attempts++
		inner := s.Transaction(ctx, []string{"k2"}, func(tx session.Tx, attempt int) error {
			tx.SetAdd("k2", []byte("joined"))
			return nil
		}, session.IgnoreDouble())
		if inner != nil {
			return inner
		}
		if attempt == 1 {
			// A rival write to the inner block's key must abort the commit.
			commit(t, gw, func(tx session.Tx) {
				tx.SetAdd("k2", []byte("rival"))
			})
		}
		return nil
	})
	require.NoError(t, err)
	a.Equal(2, attempts)
}

func TestQueriesNeedNoTransaction(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	s, gw := newSession(t)

	commit(t, gw, func(tx session.Tx) {
		tx.SetAdd("k", []byte("a"))
	})

	n, err := s.Queries().SetCard(ctx, "k")
	a.NoError(err)
	a.EqualValues(1, n)
}

func TestCapabilitiesCached(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	gw := drivers.NewMemoryGateway(drivers.WithCapabilities(session.Capabilities{MultiValueAdd: false}))
	s := session.New(gw)

	caps, err := s.Capabilities(ctx)
	a.NoError(err)
	a.False(caps.MultiValueAdd)

	caps, err = s.Capabilities(ctx)
	a.NoError(err)
	a.False(caps.MultiValueAdd)
}

func TestServerVersion(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	s, _ := newSession(t)

	ver, err := s.ServerVersion(ctx)
	a.NoError(err)
	a.NotNil(ver)
}
