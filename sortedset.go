package collections

import (
	"context"
	"errors"

	"github.com/creastat/collections/codec"
	"github.com/creastat/collections/session"
)

// Scored is one sorted-set element together with its score.
type Scored[T comparable] struct {
	Value T
	Score float64
}

// SortedSet is a view of the scored-set value stored at one key: each
// element carries a real-valued score, elements are unique, and iteration
// runs in ascending score order with ties in the store's member order.
type SortedSet[T comparable] struct {
	session *session.Session
	key     string
	codec   codec.Codec[T]
}

// NewSortedSet binds a sorted-set view to key on the given session.
func NewSortedSet[T comparable](sess *session.Session, key string, c codec.Codec[T]) *SortedSet[T] {
	return &SortedSet[T]{session: sess, key: key, codec: c}
}

// Key returns the key the view is bound to.
func (z *SortedSet[T]) Key() string {
	return z.key
}

// Len returns the cardinality of the sorted set.
func (z *SortedSet[T]) Len(ctx context.Context) (int64, error) {
	return z.session.Queries().SortedCard(ctx, z.key)
}

// Members fetches and decodes all elements in ascending score order.
func (z *SortedSet[T]) Members(ctx context.Context) ([]T, error) {
	raw, err := z.session.Queries().SortedRange(ctx, z.key, 0, -1)
	if err != nil {
		return nil, err
	}
	members := make([]T, len(raw))
	for i, data := range raw {
		v, err := z.codec.Decode(data)
		if err != nil {
			return nil, err
		}
		members[i] = v
	}
	return members, nil
}

// MembersWithScores is Members carrying each element's score.
func (z *SortedSet[T]) MembersWithScores(ctx context.Context) ([]Scored[T], error) {
	raw, err := z.session.Queries().SortedRangeWithScores(ctx, z.key, 0, -1)
	if err != nil {
		return nil, err
	}
	scored := make([]Scored[T], len(raw))
	for i, sm := range raw {
		v, err := z.codec.Decode(sm.Member)
		if err != nil {
			return nil, err
		}
		scored[i] = Scored[T]{Value: v, Score: sm.Score}
	}
	return scored, nil
}

// Contains reports whether value has a score assigned. As with Set, a
// value the codec cannot represent is simply not a member.
func (z *SortedSet[T]) Contains(ctx context.Context, value T) (bool, error) {
	data, err := z.codec.Encode(value)
	if err != nil {
		if errors.Is(err, codec.ErrConversion) {
			return false, nil
		}
		return false, err
	}
	_, ok, err := z.session.Queries().SortedScore(ctx, z.key, data)
	return ok, err
}

// Score returns value's score and whether it is assigned at all. An
// unrepresentable value has no score.
func (z *SortedSet[T]) Score(ctx context.Context, value T) (float64, bool, error) {
	data, err := z.codec.Encode(value)
	if err != nil {
		if errors.Is(err, codec.ErrConversion) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return z.session.Queries().SortedScore(ctx, z.key, data)
}

// Clear removes the key entirely.
func (z *SortedSet[T]) Clear(ctx context.Context) error {
	return z.session.Transaction(ctx, []string{z.key}, func(tx session.Tx, attempt int) error {
		tx.Del(z.key)
		return nil
	})
}

// Replace discards the current contents and refills the sorted set from
// the given scores, atomically.
func (z *SortedSet[T]) Replace(ctx context.Context, weights map[T]float64) error {
	return z.session.Transaction(ctx, []string{z.key}, func(tx session.Tx, attempt int) error {
		tx.Del(z.key)
		for v, score := range weights {
			data, err := z.codec.Encode(v)
			if err != nil {
				return err
			}
			tx.SortedIncrBy(z.key, score, data)
		}
		return nil
	})
}

// Update merges the operands into the sorted set, score-additively — a
// weighted multiset union rather than a replacing assignment:
//
//   - OfValues increments each element's score by 1 per occurrence;
//   - OfWeights increments each element's score by its mapped value;
//   - OfView increments each of the set view's members by 1;
//   - OfSortedView on the same session with an equal codec merges the whole
//     score distribution in one ZUNIONSTORE over self and the operand keys,
//     scores adding on collision; any other sorted view is materialized
//     with its scores and applied as increments.
//
// The per-element increments and the final union-store are buffered into
// one transaction, with self and every same-session operand key watched, so
// the whole merge is atomic and safely retryable: a conflict rolls the key
// back before the increments are resubmitted, never double-applied.
func (z *SortedSet[T]) Update(ctx context.Context, operands ...Operand[T]) error {
	return z.session.Transaction(ctx, []string{z.key}, func(tx session.Tx, attempt int) error {
		var unionKeys []string
		for _, op := range operands {
			switch op.kind {
			case operandValues:
				for _, v := range op.values {
					data, err := z.codec.Encode(v)
					if err != nil {
						return err
					}
					tx.SortedIncrBy(z.key, 1, data)
				}

			case operandWeights:
				for v, score := range op.weights {
					data, err := z.codec.Encode(v)
					if err != nil {
						return err
					}
					tx.SortedIncrBy(z.key, score, data)
				}

			case operandSetView:
				members, err := op.set.Members(ctx)
				if err != nil {
					return err
				}
				for _, v := range members {
					data, err := z.codec.Encode(v)
					if err != nil {
						return err
					}
					tx.SortedIncrBy(z.key, 1, data)
				}

			case operandSortedView:
				view := op.sorted
				if view.session == z.session && view.codec.Equal(z.codec) {
					if err := tx.Watch(ctx, view.key); err != nil {
						return err
					}
					unionKeys = append(unionKeys, view.key)
					continue
				}
				scored, err := view.MembersWithScores(ctx)
				if err != nil {
					return err
				}
				for _, sv := range scored {
					data, err := z.codec.Encode(sv.Value)
					if err != nil {
						return err
					}
					tx.SortedIncrBy(z.key, sv.Score, data)
				}

			default:
				return ErrInvalidOperand
			}
		}
		if len(unionKeys) > 0 {
			tx.SortedUnionStore(z.key, append([]string{z.key}, unionKeys...), nil)
		}
		return nil
	}, session.IgnoreDouble())
}
