// Package collections projects native set and sorted-set semantics onto
// Redis collection values. A view binds a session, a key and an element
// codec; it owns no data of its own. Algebra between views on the same
// session with equal codecs runs server-side in one command; any other
// operand is materialized locally and combined with generic set algebra,
// with identical results either way. Reads go straight to the store;
// every mutation runs inside an optimistic transaction on the session.
package collections

import (
	"context"
	"errors"

	"github.com/creastat/collections/codec"
	"github.com/creastat/collections/session"
)

// Set is a view of the set value stored at one key. It behaves like a
// native set over T; all state lives in the store, so every call reflects
// the remote state at call time.
type Set[T comparable] struct {
	session *session.Session
	key     string
	codec   codec.Codec[T]
}

// NewSet binds a set view to key on the given session.
func NewSet[T comparable](sess *session.Session, key string, c codec.Codec[T]) *Set[T] {
	return &Set[T]{session: sess, key: key, codec: c}
}

// Key returns the key the view is bound to.
func (s *Set[T]) Key() string {
	return s.key
}

// Len returns the cardinality of the set.
func (s *Set[T]) Len(ctx context.Context) (int64, error) {
	return s.session.Queries().SetCard(ctx, s.key)
}

// Members fetches and decodes all members. Order is unspecified.
func (s *Set[T]) Members(ctx context.Context) ([]T, error) {
	raw, err := s.session.Queries().SetMembers(ctx, s.key)
	if err != nil {
		return nil, err
	}
	return s.decodeAll(raw)
}

// Contains reports whether value is a member. A value the codec cannot
// represent is not a member of a typed set, so an encoding failure answers
// false rather than erroring.
func (s *Set[T]) Contains(ctx context.Context, value T) (bool, error) {
	data, err := s.codec.Encode(value)
	if err != nil {
		if errors.Is(err, codec.ErrConversion) {
			return false, nil
		}
		return false, err
	}
	return s.session.Queries().SetHas(ctx, s.key, data)
}

// Equal reports whether the set and a set-like operand hold the same
// members. Sorted views and weight mappings are never equal to a set.
func (s *Set[T]) Equal(ctx context.Context, other Operand[T]) (bool, error) {
	if other.kind == operandInvalid {
		return false, ErrInvalidOperand
	}
	if !other.setLike() {
		return false, nil
	}
	mine, err := s.materialize(ctx)
	if err != nil {
		return false, err
	}
	theirs, err := other.materialize(ctx)
	if err != nil {
		return false, err
	}
	if len(mine) != len(theirs) {
		return false, nil
	}
	for v := range mine {
		if _, ok := theirs[v]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// IsDisjoint reports whether the set and the operand share no member. Two
// same-session views with different codecs have disjoint representable
// domains and are disjoint by definition, without a round trip; with equal
// codecs one remote intersection probe decides. Any other operand is
// materialized and checked pairwise.
func (s *Set[T]) IsDisjoint(ctx context.Context, other Operand[T]) (bool, error) {
	if other.kind == operandInvalid {
		return false, ErrInvalidOperand
	}
	if view, ok := other.sameSessionSet(s.session); ok {
		if !view.codec.Equal(s.codec) {
			return true, nil
		}
		inter, err := s.session.Queries().SetInter(ctx, s.key, view.key)
		if err != nil {
			return false, err
		}
		return len(inter) == 0, nil
	}
	mine, err := s.materialize(ctx)
	if err != nil {
		return false, err
	}
	theirs, err := other.materialize(ctx)
	if err != nil {
		return false, err
	}
	for v := range theirs {
		if _, ok := mine[v]; ok {
			return false, nil
		}
	}
	return true, nil
}

// Difference returns the members of the set that are not in the operand.
// A same-session equal-codec view costs one remote SDIFF; a same-session
// view with a different codec removes nothing, since no member of this set
// is representable in it.
func (s *Set[T]) Difference(ctx context.Context, other Operand[T]) (map[T]struct{}, error) {
	if other.kind == operandInvalid {
		return nil, ErrInvalidOperand
	}
	if view, ok := other.sameSessionSet(s.session); ok {
		if !view.codec.Equal(s.codec) {
			return s.materialize(ctx)
		}
		raw, err := s.session.Queries().SetDiff(ctx, s.key, view.key)
		if err != nil {
			return nil, err
		}
		return s.decodeSet(raw)
	}
	mine, err := s.materialize(ctx)
	if err != nil {
		return nil, err
	}
	theirs, err := other.materialize(ctx)
	if err != nil {
		return nil, err
	}
	for v := range theirs {
		delete(mine, v)
	}
	return mine, nil
}

// Union returns the union of the set and the operands. Same-session views
// are grouped by codec and each group resolves with one remote SUNION
// decoded by its codec; every other operand is materialized and folded in.
// The result is a plain materialized set, not a persisted view.
func (s *Set[T]) Union(ctx context.Context, others ...Operand[T]) (map[T]struct{}, error) {
	type group struct {
		codec codec.Codec[T]
		keys  []string
	}
	groups := []group{{codec: s.codec, keys: []string{s.key}}}
	var offline []Operand[T]
	for _, op := range others {
		if op.kind == operandInvalid {
			return nil, ErrInvalidOperand
		}
		view, ok := op.sameSessionSet(s.session)
		if !ok {
			offline = append(offline, op)
			continue
		}
		placed := false
		for i := range groups {
			if groups[i].codec.Equal(view.codec) {
				groups[i].keys = append(groups[i].keys, view.key)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, group{codec: view.codec, keys: []string{view.key}})
		}
	}

	union := make(map[T]struct{})
	for _, grp := range groups {
		raw, err := s.session.Queries().SetUnion(ctx, grp.keys...)
		if err != nil {
			return nil, err
		}
		for _, data := range raw {
			v, err := grp.codec.Decode(data)
			if err != nil {
				return nil, err
			}
			union[v] = struct{}{}
		}
	}
	for _, op := range offline {
		elems, err := op.materialize(ctx)
		if err != nil {
			return nil, err
		}
		for v := range elems {
			union[v] = struct{}{}
		}
	}
	return union, nil
}

// Intersection returns the intersection of the set and the operands. A
// same-session view with a mismatched codec empties the whole result: there
// is no shared representable domain. The remaining same-session keys
// resolve with one remote SINTER, reduced further by any materialized
// operands.
func (s *Set[T]) Intersection(ctx context.Context, others ...Operand[T]) (map[T]struct{}, error) {
	var viewKeys []string
	seen := map[string]struct{}{s.key: {}}
	var offline []Operand[T]
	for _, op := range others {
		if op.kind == operandInvalid {
			return nil, ErrInvalidOperand
		}
		view, ok := op.sameSessionSet(s.session)
		if !ok {
			offline = append(offline, op)
			continue
		}
		if !view.codec.Equal(s.codec) {
			return map[T]struct{}{}, nil
		}
		if _, dup := seen[view.key]; !dup {
			seen[view.key] = struct{}{}
			viewKeys = append(viewKeys, view.key)
		}
	}

	var online map[T]struct{}
	var err error
	if len(viewKeys) > 0 {
		raw, rerr := s.session.Queries().SetInter(ctx, append([]string{s.key}, viewKeys...)...)
		if rerr != nil {
			return nil, rerr
		}
		online, err = s.decodeSet(raw)
	} else {
		online, err = s.materialize(ctx)
	}
	if err != nil {
		return nil, err
	}
	for _, op := range offline {
		theirs, err := op.materialize(ctx)
		if err != nil {
			return nil, err
		}
		for v := range online {
			if _, ok := theirs[v]; !ok {
				delete(online, v)
			}
		}
	}
	return online, nil
}

// Update merges the operand's members into the set. A same-session
// equal-codec view folds in with one SUNIONSTORE over its key; anything
// else is encoded and added, in one multi-value command when the server
// supports it and one command per member otherwise. Runs as one
// transaction watching the key (and the operand key on the remote path).
func (s *Set[T]) Update(ctx context.Context, members Operand[T]) error {
	if members.kind == operandInvalid {
		return ErrInvalidOperand
	}
	caps, err := s.session.Capabilities(ctx)
	if err != nil {
		return err
	}
	return s.session.Transaction(ctx, []string{s.key}, func(tx session.Tx, attempt int) error {
		return s.rawUpdate(ctx, tx, members, caps)
	})
}

// Replace discards the current members and refills the set from the
// operand, atomically.
func (s *Set[T]) Replace(ctx context.Context, members Operand[T]) error {
	if members.kind == operandInvalid {
		return ErrInvalidOperand
	}
	caps, err := s.session.Capabilities(ctx)
	if err != nil {
		return err
	}
	return s.session.Transaction(ctx, []string{s.key}, func(tx session.Tx, attempt int) error {
		tx.Del(s.key)
		return s.rawUpdate(ctx, tx, members, caps)
	})
}

// Clear removes the key entirely.
func (s *Set[T]) Clear(ctx context.Context) error {
	return s.session.Transaction(ctx, []string{s.key}, func(tx session.Tx, attempt int) error {
		tx.Del(s.key)
		return nil
	})
}

// rawUpdate buffers the merge of members into the key on tx. Encoding
// failures abort the attempt and propagate without retry.
func (s *Set[T]) rawUpdate(ctx context.Context, tx session.Tx, members Operand[T], caps session.Capabilities) error {
	if view, ok := members.sameSessionSet(s.session); ok && view.codec.Equal(s.codec) {
		if err := tx.Watch(ctx, view.key); err != nil {
			return err
		}
		tx.SetUnionStore(s.key, view.key, s.key)
		return nil
	}
	elems, err := members.materialize(ctx)
	if err != nil {
		return err
	}
	data := make([][]byte, 0, len(elems))
	for v := range elems {
		d, err := s.codec.Encode(v)
		if err != nil {
			return err
		}
		data = append(data, d)
	}
	if len(data) == 0 {
		return nil
	}
	if caps.MultiValueAdd {
		tx.SetAdd(s.key, data...)
		return nil
	}
	for _, d := range data {
		tx.SetAdd(s.key, d)
	}
	return nil
}

func (s *Set[T]) materialize(ctx context.Context) (map[T]struct{}, error) {
	raw, err := s.session.Queries().SetMembers(ctx, s.key)
	if err != nil {
		return nil, err
	}
	return s.decodeSet(raw)
}

func (s *Set[T]) decodeSet(raw [][]byte) (map[T]struct{}, error) {
	set := make(map[T]struct{}, len(raw))
	for _, data := range raw {
		v, err := s.codec.Decode(data)
		if err != nil {
			return nil, err
		}
		set[v] = struct{}{}
	}
	return set, nil
}

func (s *Set[T]) decodeAll(raw [][]byte) ([]T, error) {
	members := make([]T, len(raw))
	for i, data := range raw {
		v, err := s.codec.Decode(data)
		if err != nil {
			return nil, err
		}
		members[i] = v
	}
	return members, nil
}
