package session

import (
	"context"

	"github.com/coreos/go-semver/semver"
)

// ScoredMember is one element of a sorted set together with its score.
type ScoredMember struct {
	Member []byte
	Score  float64
}

// Capabilities reports optional store features the coordinator gates on.
type Capabilities struct {
	// MultiValueAdd is true when the store accepts several members in one
	// set-add command. Older servers need one command per member.
	MultiValueAdd bool
}

// Queries is the read-only command set. Queries execute immediately, never
// watch keys and never open a transaction.
type Queries interface {
	// SetCard returns the cardinality of the set at key.
	SetCard(ctx context.Context, key string) (int64, error)

	// SetMembers returns all members of the set at key, unordered.
	SetMembers(ctx context.Context, key string) ([][]byte, error)

	// SetHas reports whether member is in the set at key.
	SetHas(ctx context.Context, key string, member []byte) (bool, error)

	// SetDiff returns the members of key that are in none of the others.
	SetDiff(ctx context.Context, key string, others ...string) ([][]byte, error)

	// SetUnion returns the union of the sets at keys.
	SetUnion(ctx context.Context, keys ...string) ([][]byte, error)

	// SetInter returns the intersection of the sets at keys.
	SetInter(ctx context.Context, keys ...string) ([][]byte, error)

	// SortedCard returns the cardinality of the sorted set at key.
	SortedCard(ctx context.Context, key string) (int64, error)

	// SortedRange returns members of the sorted set at key between the
	// given rank indexes (inclusive, negative counts from the end), in
	// ascending score order with ties in lexical member order.
	SortedRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	// SortedRangeWithScores is SortedRange carrying each member's score.
	SortedRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)

	// SortedScore returns the score of member in the sorted set at key.
	// The boolean is false when the member has no score assigned.
	SortedScore(ctx context.Context, key string, member []byte) (float64, bool, error)

	// ServerVersion returns the store's version tuple.
	ServerVersion(ctx context.Context) (*semver.Version, error)
}

// Tx is the handle a transaction block operates on. Reads execute
// immediately on the watched connection; mutations are buffered and apply
// atomically at commit, or not at all.
type Tx interface {
	Queries

	// Watch marks further keys manipulative, adding them to the watch set
	// of the current attempt. A block calls this for operand keys it only
	// discovers while running.
	Watch(ctx context.Context, keys ...string) error

	// SetAdd buffers an insert of members into the set at key.
	SetAdd(key string, members ...[]byte)

	// SetUnionStore buffers storing the union of the sets at keys into dest.
	SetUnionStore(dest string, keys ...string)

	// SortedIncrBy buffers adding increment to member's score in the sorted
	// set at key, creating the member at that score when absent.
	SortedIncrBy(key string, increment float64, member []byte)

	// SortedUnionStore buffers merging the sorted sets at keys into dest,
	// adding scores on collision. A nil weights slice weighs every key 1.
	SortedUnionStore(dest string, keys []string, weights []float64)

	// Del buffers removing keys entirely.
	Del(keys ...string)
}

// Gateway is the minimal contract this layer requires from a store client.
type Gateway interface {
	Queries

	// Atomic runs fn as one optimistic attempt: watch keys, invoke fn, and
	// commit the mutations fn buffered if and only if no watched key was
	// changed by another writer in the meantime. A rejected commit returns
	// ErrConflict with all buffered mutations discarded. Errors from fn
	// abort the attempt and pass through unchanged.
	Atomic(ctx context.Context, keys []string, fn func(tx Tx) error) error

	// Capabilities reports the store's optional features.
	Capabilities(ctx context.Context) (Capabilities, error)

	// Close closes the gateway and releases its connection.
	Close() error
}
