package collections

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/collections/codec"
	"github.com/creastat/collections/session"
	"github.com/creastat/collections/session/drivers"
)

func fillScores(t *testing.T, z *SortedSet[string], weights map[string]float64) {
	t.Helper()
	require.NoError(t, z.Replace(context.Background(), weights))
}

func scoresOf(t *testing.T, z *SortedSet[string]) map[string]float64 {
	t.Helper()
	scored, err := z.MembersWithScores(context.Background())
	require.NoError(t, err)
	got := make(map[string]float64, len(scored))
	for _, sv := range scored {
		got[sv.Value] = sv.Score
	}
	return got
}

func TestSortedSetIterateByScore(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	sess, _ := newTestSession(t)

	z := NewSortedSet[string](sess, "z", codec.Bytes{})
	fillScores(t, z, map[string]float64{"a": 3, "b": 1, "c": 2})

	members, err := z.Members(ctx)
	a.NoError(err)
	a.Equal([]string{"b", "c", "a"}, members)

	n, err := z.Len(ctx)
	a.NoError(err)
	a.EqualValues(3, n)
}

func TestSortedSetContainsAndScore(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	sess, _ := newTestSession(t)

	z := NewSortedSet[string](sess, "z", codec.Bytes{})
	fillScores(t, z, map[string]float64{"a": 1.5, "zero": 0})

	has, err := z.Contains(ctx, "a")
	a.NoError(err)
	a.True(has)
	has, err = z.Contains(ctx, "missing")
	a.NoError(err)
	a.False(has)

	// A zero score is still membership.
	has, err = z.Contains(ctx, "zero")
	a.NoError(err)
	a.True(has)

	score, ok, err := z.Score(ctx, "a")
	a.NoError(err)
	a.True(ok)
	a.Equal(1.5, score)

	_, ok, err = z.Score(ctx, "missing")
	a.NoError(err)
	a.False(ok)
}

func TestSortedSetContainsUnrepresentableValue(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	sess, _ := newTestSession(t)

	z := NewSortedSet[string](sess, "z", codec.UUID{})
	require.NoError(t, z.Update(ctx, OfValues("6ba7b810-9dad-11d1-80b4-00c04fd430c8")))

	has, err := z.Contains(ctx, "not-a-uuid")
	a.NoError(err)
	a.False(has)

	_, ok, err := z.Score(ctx, "not-a-uuid")
	a.NoError(err)
	a.False(ok)
}

func TestSortedSetClearIdempotent(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	sess, _ := newTestSession(t)

	z := NewSortedSet[string](sess, "z", codec.Bytes{})
	fillScores(t, z, map[string]float64{"a": 1})

	require.NoError(t, z.Clear(ctx))
	n, err := z.Len(ctx)
	a.NoError(err)
	a.Zero(n)

	require.NoError(t, z.Clear(ctx))
	n, err = z.Len(ctx)
	a.NoError(err)
	a.Zero(n)
}

func TestSortedSetUpdateWeightsAreAdditive(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	sess, _ := newTestSession(t)

	z := NewSortedSet[string](sess, "z", codec.Bytes{})
	fillScores(t, z, map[string]float64{"a": 2, "b": 3})

	require.NoError(t, z.Update(ctx, OfWeights(map[string]float64{"a": 1, "c": 4})))
	a.Equal(map[string]float64{"a": 3, "b": 3, "c": 4}, scoresOf(t, z))
}

func TestSortedSetUpdateValuesIncrementByOne(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	sess, _ := newTestSession(t)

	z := NewSortedSet[string](sess, "z", codec.Bytes{})
	fillScores(t, z, map[string]float64{"c": 1, "a": 2, "b": 3})

	require.NoError(t, z.Update(ctx, OfValues("a", "c", "d")))
	a.Equal(map[string]float64{"d": 1, "c": 2, "a": 3, "b": 3}, scoresOf(t, z))

	// Each occurrence counts.
	require.NoError(t, z.Update(ctx, OfValues("d", "d")))
	a.Equal(3.0, scoresOf(t, z)["d"])
}

func TestSortedSetUpdateMergesSameSessionViews(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	sess, _ := newTestSession(t)

	z := NewSortedSet[string](sess, "z", codec.Bytes{})
	other := NewSortedSet[string](sess, "other", codec.Bytes{})
	fillScores(t, z, map[string]float64{"a": 1, "b": 2})
	fillScores(t, other, map[string]float64{"b": 10, "c": 5})

	// Whole score distribution merges in one union-store, scores adding.
	require.NoError(t, z.Update(ctx, OfSortedView(other)))
	a.Equal(map[string]float64{"a": 1, "b": 12, "c": 5}, scoresOf(t, z))

	// Increments and the union-store commit together.
	fillScores(t, z, map[string]float64{"a": 1})
	require.NoError(t, z.Update(ctx, OfValues("a"), OfSortedView(other)))
	a.Equal(map[string]float64{"a": 2, "b": 10, "c": 5}, scoresOf(t, z))
}

func TestSortedSetUpdateMaterializesForeignViews(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	sess, _ := newTestSession(t)
	otherSess := session.New(drivers.NewMemoryGateway())

	z := NewSortedSet[string](sess, "z", codec.Bytes{})
	foreign := NewSortedSet[string](otherSess, "z", codec.Bytes{})
	fillScores(t, z, map[string]float64{"a": 1})
	fillScores(t, foreign, map[string]float64{"a": 2, "b": 7})

	// A view on another session cannot union-store; its scores still merge.
	require.NoError(t, z.Update(ctx, OfSortedView(foreign)))
	a.Equal(map[string]float64{"a": 3, "b": 7}, scoresOf(t, z))
}

func TestSortedSetUpdateFromSetView(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	sess, _ := newTestSession(t)

	z := NewSortedSet[string](sess, "z", codec.Bytes{})
	s := NewSet[string](sess, "s", codec.Bytes{})
	fillScores(t, z, map[string]float64{"a": 2})
	fill(t, s, "a", "b")

	require.NoError(t, z.Update(ctx, OfView(s)))
	a.Equal(map[string]float64{"a": 3, "b": 1}, scoresOf(t, z))
}

func TestSortedSetUpdateEncodeFailureAborts(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	sess, _ := newTestSession(t)

	z := NewSortedSet[string](sess, "z", codec.UUID{})
	err := z.Update(ctx, OfValues("6ba7b810-9dad-11d1-80b4-00c04fd430c8", "junk"))
	a.ErrorIs(err, codec.ErrConversion)

	n, err := z.Len(ctx)
	a.NoError(err)
	a.Zero(n)

	a.ErrorIs(z.Update(ctx, Operand[string]{}), ErrInvalidOperand)
}

func TestSortedSetConcurrentUpdatesAllLand(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	gw := drivers.NewMemoryGateway()

	const rounds = 50
	var wg sync.WaitGroup
	for _, member := range []string{"left", "right"} {
		member := member
		wg.Add(1)
		go func() {
			defer wg.Done()
			z := NewSortedSet[string](session.New(gw), "z", codec.Bytes{})
			for i := 0; i < rounds; i++ {
				if err := z.Update(ctx, OfValues(member)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	z := NewSortedSet[string](session.New(gw), "z", codec.Bytes{})
	a.Equal(map[string]float64{"left": rounds, "right": rounds}, scoresOf(t, z))
}
