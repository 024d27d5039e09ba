package collections

import (
	"context"

	"github.com/creastat/collections/session"
)

type operandKind int

const (
	operandInvalid operandKind = iota
	operandSetView
	operandSortedView
	operandValues
	operandWeights
)

// Operand is the classified right-hand side of a collection operation: a
// remote view, a slice of local values, or a local weight mapping. An
// operation inspects the classification once, then either delegates to the
// store (remote views on the same session with an equal codec) or
// materializes the operand and computes locally. The zero value is invalid
// and makes any operation fail with ErrInvalidOperand.
type Operand[T comparable] struct {
	kind    operandKind
	set     *Set[T]
	sorted  *SortedSet[T]
	values  []T
	weights map[T]float64
}

// OfView makes an operand out of a set view.
func OfView[T comparable](s *Set[T]) Operand[T] {
	return Operand[T]{kind: operandSetView, set: s}
}

// OfSortedView makes an operand out of a sorted-set view.
func OfSortedView[T comparable](z *SortedSet[T]) Operand[T] {
	return Operand[T]{kind: operandSortedView, sorted: z}
}

// OfValues makes an operand out of local values. Duplicates are kept: in a
// score-additive merge each occurrence counts.
func OfValues[T comparable](values ...T) Operand[T] {
	return Operand[T]{kind: operandValues, values: values}
}

// OfWeights makes an operand out of a value-to-score mapping.
func OfWeights[T comparable](weights map[T]float64) Operand[T] {
	return Operand[T]{kind: operandWeights, weights: weights}
}

// sameSessionSet returns the operand's set view when it is a view bound to
// the given session, the precondition for delegating set algebra remotely.
func (o Operand[T]) sameSessionSet(s *session.Session) (*Set[T], bool) {
	if o.kind == operandSetView && o.set.session == s {
		return o.set, true
	}
	return nil, false
}

// setLike reports whether the operand has plain-set semantics. Sorted views
// and weight mappings compare unequal to any set, the way a scored mapping
// is not a set natively.
func (o Operand[T]) setLike() bool {
	return o.kind == operandSetView || o.kind == operandValues
}

// materialize fetches or collects the operand's elements into a native set.
func (o Operand[T]) materialize(ctx context.Context) (map[T]struct{}, error) {
	switch o.kind {
	case operandSetView:
		return o.set.materialize(ctx)

	case operandSortedView:
		members, err := o.sorted.Members(ctx)
		if err != nil {
			return nil, err
		}
		set := make(map[T]struct{}, len(members))
		for _, v := range members {
			set[v] = struct{}{}
		}
		return set, nil

	case operandValues:
		set := make(map[T]struct{}, len(o.values))
		for _, v := range o.values {
			set[v] = struct{}{}
		}
		return set, nil

	case operandWeights:
		set := make(map[T]struct{}, len(o.weights))
		for v := range o.weights {
			set[v] = struct{}{}
		}
		return set, nil

	default:
		return nil, ErrInvalidOperand
	}
}
