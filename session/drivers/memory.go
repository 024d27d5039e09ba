package drivers

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/coreos/go-semver/semver"

	"github.com/creastat/collections/session"
)

// entry holds the value stored under one key, either a plain set or a
// scored set. A key carries at most one of the two at a time.
type entry struct {
	set    map[string]struct{}
	scored map[string]float64
}

func (e *entry) empty() bool {
	return len(e.set) == 0 && len(e.scored) == 0
}

// MemoryGateway implements session.Gateway with an in-process key table and
// per-key version counters for optimistic commits. It mirrors the redis
// gateway's contract closely enough to stand in for it in tests: atomic
// multi-command commit, conflict on concurrent mutation of a watched key,
// redis tie-breaking in sorted ranges.
type MemoryGateway struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// versions are bumped on every mutation of a key and survive deletion,
	// so delete/recreate cycles still invalidate watches.
	versions map[string]uint64

	version *semver.Version
	caps    session.Capabilities
}

func newMemoryGateway(cfg *config) *MemoryGateway {
	g := &MemoryGateway{
		entries:  make(map[string]*entry),
		versions: make(map[string]uint64),
		version:  cfg.serverVersion,
		caps:     session.Capabilities{MultiValueAdd: true},
	}
	if g.version == nil {
		g.version = semver.New("7.4.0")
	}
	if cfg.caps != nil {
		g.caps = *cfg.caps
	}
	return g
}

// Capabilities implements session.Gateway.
func (g *MemoryGateway) Capabilities(ctx context.Context) (session.Capabilities, error) {
	return g.caps, nil
}

// Version returns the optimistic-lock version counter of key: the number
// of committed mutations that have touched it, including deletions.
func (g *MemoryGateway) Version(key string) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.versions[key]
}

// ServerVersion implements session.Queries.
func (g *MemoryGateway) ServerVersion(ctx context.Context) (*semver.Version, error) {
	return g.version, nil
}

// Close implements session.Gateway.
func (g *MemoryGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = nil
	g.versions = nil
	return nil
}

// SetCard implements session.Queries.
func (g *MemoryGateway) SetCard(ctx context.Context, key string) (int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if e, ok := g.entries[key]; ok {
		return int64(len(e.set)), nil
	}
	return 0, nil
}

// SetMembers implements session.Queries.
func (g *MemoryGateway) SetMembers(ctx context.Context, key string) ([][]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.membersLocked(key), nil
}

func (g *MemoryGateway) membersLocked(key string) [][]byte {
	e, ok := g.entries[key]
	if !ok {
		return nil
	}
	members := make([][]byte, 0, len(e.set))
	for m := range e.set {
		members = append(members, []byte(m))
	}
	return members
}

// SetHas implements session.Queries.
func (g *MemoryGateway) SetHas(ctx context.Context, key string, member []byte) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[key]
	if !ok {
		return false, nil
	}
	_, ok = e.set[string(member)]
	return ok, nil
}

// SetDiff implements session.Queries.
func (g *MemoryGateway) SetDiff(ctx context.Context, key string, others ...string) ([][]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	diff := g.setSnapshotLocked(key)
	for _, other := range others {
		if e, ok := g.entries[other]; ok {
			for m := range e.set {
				delete(diff, m)
			}
		}
	}
	return collect(diff), nil
}

// SetUnion implements session.Queries.
func (g *MemoryGateway) SetUnion(ctx context.Context, keys ...string) ([][]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return collect(g.setUnionLocked(keys)), nil
}

// SetInter implements session.Queries.
func (g *MemoryGateway) SetInter(ctx context.Context, keys ...string) ([][]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(keys) == 0 {
		return nil, nil
	}
	inter := g.setSnapshotLocked(keys[0])
	for _, key := range keys[1:] {
		e, ok := g.entries[key]
		if !ok {
			return nil, nil
		}
		for m := range inter {
			if _, ok := e.set[m]; !ok {
				delete(inter, m)
			}
		}
	}
	return collect(inter), nil
}

func (g *MemoryGateway) setSnapshotLocked(key string) map[string]struct{} {
	snapshot := make(map[string]struct{})
	if e, ok := g.entries[key]; ok {
		for m := range e.set {
			snapshot[m] = struct{}{}
		}
	}
	return snapshot
}

func (g *MemoryGateway) setUnionLocked(keys []string) map[string]struct{} {
	union := make(map[string]struct{})
	for _, key := range keys {
		if e, ok := g.entries[key]; ok {
			for m := range e.set {
				union[m] = struct{}{}
			}
		}
	}
	return union
}

func collect(set map[string]struct{}) [][]byte {
	members := make([][]byte, 0, len(set))
	for m := range set {
		members = append(members, []byte(m))
	}
	return members
}

// SortedCard implements session.Queries.
func (g *MemoryGateway) SortedCard(ctx context.Context, key string) (int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if e, ok := g.entries[key]; ok {
		return int64(len(e.scored)), nil
	}
	return 0, nil
}

// SortedRange implements session.Queries.
func (g *MemoryGateway) SortedRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	scored, err := g.SortedRangeWithScores(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	members := make([][]byte, len(scored))
	for i, sm := range scored {
		members[i] = sm.Member
	}
	return members, nil
}

// SortedRangeWithScores implements session.Queries.
func (g *MemoryGateway) SortedRangeWithScores(ctx context.Context, key string, start, stop int64) ([]session.ScoredMember, error) {
	g.mu.RLock()
	e, ok := g.entries[key]
	var ranked []session.ScoredMember
	if ok {
		ranked = make([]session.ScoredMember, 0, len(e.scored))
		for m, score := range e.scored {
			ranked = append(ranked, session.ScoredMember{Member: []byte(m), Score: score})
		}
	}
	g.mu.RUnlock()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score < ranked[j].Score
		}
		return bytes.Compare(ranked[i].Member, ranked[j].Member) < 0
	})

	start, stop = clampRange(start, stop, int64(len(ranked)))
	if start > stop {
		return nil, nil
	}
	return ranked[start : stop+1], nil
}

// clampRange resolves redis-style rank indexes: negative counts from the
// end, out-of-range values clamp to the bounds.
func clampRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

// SortedScore implements session.Queries.
func (g *MemoryGateway) SortedScore(ctx context.Context, key string, member []byte) (float64, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[key]
	if !ok {
		return 0, false, nil
	}
	score, ok := e.scored[string(member)]
	return score, ok, nil
}

// Atomic implements session.Gateway. It snapshots the versions of watched
// keys, runs fn, and applies the buffered mutations under the write lock
// only if no watched version moved in the meantime.
func (g *MemoryGateway) Atomic(ctx context.Context, keys []string, fn func(tx session.Tx) error) error {
	tx := &memoryTx{g: g, watched: make(map[string]uint64)}
	if err := tx.Watch(ctx, keys...); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for key, version := range tx.watched {
		if g.versions[key] != version {
			return session.ErrConflict
		}
	}
	for _, apply := range tx.buffer {
		apply()
	}
	return nil
}

// memoryTx buffers mutations as closures over the gateway; reads pass
// through to the committed state, as they do on a watched redis connection.
type memoryTx struct {
	g       *MemoryGateway
	watched map[string]uint64
	buffer  []func()
}

// Watch implements session.Tx.
func (t *memoryTx) Watch(ctx context.Context, keys ...string) error {
	t.g.mu.RLock()
	defer t.g.mu.RUnlock()
	for _, key := range keys {
		if _, ok := t.watched[key]; !ok {
			t.watched[key] = t.g.versions[key]
		}
	}
	return nil
}

// SetAdd implements session.Tx.
func (t *memoryTx) SetAdd(key string, members ...[]byte) {
	added := make([]string, len(members))
	for i, m := range members {
		added[i] = string(m)
	}
	t.buffer = append(t.buffer, func() {
		e := t.g.entryLocked(key)
		if e.set == nil {
			e.set = make(map[string]struct{})
		}
		for _, m := range added {
			e.set[m] = struct{}{}
		}
		t.g.touchLocked(key)
	})
}

// SetUnionStore implements session.Tx.
func (t *memoryTx) SetUnionStore(dest string, keys ...string) {
	srcs := append([]string(nil), keys...)
	t.buffer = append(t.buffer, func() {
		union := t.g.setUnionLocked(srcs)
		t.g.storeLocked(dest, &entry{set: union})
	})
}

// SortedIncrBy implements session.Tx.
func (t *memoryTx) SortedIncrBy(key string, increment float64, member []byte) {
	m := string(member)
	t.buffer = append(t.buffer, func() {
		e := t.g.entryLocked(key)
		if e.scored == nil {
			e.scored = make(map[string]float64)
		}
		e.scored[m] += increment
		t.g.touchLocked(key)
	})
}

// SortedUnionStore implements session.Tx.
func (t *memoryTx) SortedUnionStore(dest string, keys []string, weights []float64) {
	srcs := append([]string(nil), keys...)
	ws := append([]float64(nil), weights...)
	t.buffer = append(t.buffer, func() {
		merged := make(map[string]float64)
		for i, key := range srcs {
			weight := 1.0
			if i < len(ws) {
				weight = ws[i]
			}
			e, ok := t.g.entries[key]
			if !ok {
				continue
			}
			for m, score := range e.scored {
				merged[m] += score * weight
			}
			// Plain sets take part with score 1 per member, as in redis.
			for m := range e.set {
				merged[m] += weight
			}
		}
		t.g.storeLocked(dest, &entry{scored: merged})
	})
}

// Del implements session.Tx.
func (t *memoryTx) Del(keys ...string) {
	deleted := append([]string(nil), keys...)
	t.buffer = append(t.buffer, func() {
		for _, key := range deleted {
			delete(t.g.entries, key)
			t.g.touchLocked(key)
		}
	})
}

// entryLocked returns the entry for key, creating it when absent.
// Callers hold the write lock.
func (g *MemoryGateway) entryLocked(key string) *entry {
	e, ok := g.entries[key]
	if !ok {
		e = &entry{}
		g.entries[key] = e
	}
	return e
}

// storeLocked replaces the value under key; an empty result deletes the
// key, matching SUNIONSTORE/ZUNIONSTORE behavior.
func (g *MemoryGateway) storeLocked(key string, e *entry) {
	if e.empty() {
		delete(g.entries, key)
	} else {
		g.entries[key] = e
	}
	g.touchLocked(key)
}

func (g *MemoryGateway) touchLocked(key string) {
	g.versions[key]++
}

// Read-through queries on the transaction handle.

func (t *memoryTx) SetCard(ctx context.Context, key string) (int64, error) {
	return t.g.SetCard(ctx, key)
}

func (t *memoryTx) SetMembers(ctx context.Context, key string) ([][]byte, error) {
	return t.g.SetMembers(ctx, key)
}

func (t *memoryTx) SetHas(ctx context.Context, key string, member []byte) (bool, error) {
	return t.g.SetHas(ctx, key, member)
}

func (t *memoryTx) SetDiff(ctx context.Context, key string, others ...string) ([][]byte, error) {
	return t.g.SetDiff(ctx, key, others...)
}

func (t *memoryTx) SetUnion(ctx context.Context, keys ...string) ([][]byte, error) {
	return t.g.SetUnion(ctx, keys...)
}

func (t *memoryTx) SetInter(ctx context.Context, keys ...string) ([][]byte, error) {
	return t.g.SetInter(ctx, keys...)
}

func (t *memoryTx) SortedCard(ctx context.Context, key string) (int64, error) {
	return t.g.SortedCard(ctx, key)
}

func (t *memoryTx) SortedRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	return t.g.SortedRange(ctx, key, start, stop)
}

func (t *memoryTx) SortedRangeWithScores(ctx context.Context, key string, start, stop int64) ([]session.ScoredMember, error) {
	return t.g.SortedRangeWithScores(ctx, key, start, stop)
}

func (t *memoryTx) SortedScore(ctx context.Context, key string, member []byte) (float64, bool, error) {
	return t.g.SortedScore(ctx, key, member)
}

func (t *memoryTx) ServerVersion(ctx context.Context) (*semver.Version, error) {
	return t.g.ServerVersion(ctx)
}
