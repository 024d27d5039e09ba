package drivers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-semver/semver"
	"github.com/redis/go-redis/v9"

	"github.com/creastat/collections/session"
)

// minMultiValueAdd is the first server version whose SADD accepts several
// members in one command. Deployments that know better can override the
// derived capability with WithCapabilities.
var minMultiValueAdd = *semver.New("2.4.0")

// RedisGateway implements session.Gateway over a go-redis client.
type RedisGateway struct {
	redisReader
	client *redis.Client
	caps   *session.Capabilities

	verOnce sync.Once
	ver     *semver.Version
	verErr  error
}

func newRedisGateway(cfg *config) *RedisGateway {
	return &RedisGateway{
		redisReader: redisReader{cmd: cfg.redisClient},
		client:      cfg.redisClient,
		caps:        cfg.caps,
	}
}

// ServerVersion implements session.Queries. The version is parsed from
// INFO once and cached for the lifetime of the gateway.
func (g *RedisGateway) ServerVersion(ctx context.Context) (*semver.Version, error) {
	g.verOnce.Do(func() {
		info, err := g.client.Info(ctx, "server").Result()
		if err != nil {
			g.verErr = err
			return
		}
		g.ver, g.verErr = parseServerVersion(info)
	})
	return g.ver, g.verErr
}

func parseServerVersion(info string) (*semver.Version, error) {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "redis_version:"); ok {
			ver, err := semver.NewVersion(v)
			if err != nil {
				return nil, fmt.Errorf("malformed redis_version %q: %w", v, err)
			}
			return ver, nil
		}
	}
	return nil, errors.New("server did not report redis_version")
}

// Capabilities implements session.Gateway. Unless overridden, multi-value
// add is derived from the server version.
func (g *RedisGateway) Capabilities(ctx context.Context) (session.Capabilities, error) {
	if g.caps != nil {
		return *g.caps, nil
	}
	ver, err := g.ServerVersion(ctx)
	if err != nil {
		return session.Capabilities{}, err
	}
	return session.Capabilities{
		MultiValueAdd: !ver.LessThan(minMultiValueAdd),
	}, nil
}

// Close implements session.Gateway.
func (g *RedisGateway) Close() error {
	return g.client.Close()
}

// Atomic implements session.Gateway. WATCH covers the keys, the block runs
// on the watched connection, and the buffered commands replay into one
// MULTI/EXEC pipeline. EXEC rejection by the server maps to ErrConflict.
func (g *RedisGateway) Atomic(ctx context.Context, keys []string, fn func(tx session.Tx) error) error {
	err := g.client.Watch(ctx, func(rtx *redis.Tx) error {
		tx := &redisTx{
			redisReader: redisReader{cmd: rtx},
			g:           g,
			tx:          rtx,
			ctx:         ctx,
		}
		if err := fn(tx); err != nil {
			return err
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, queue := range tx.buffer {
				queue(pipe)
			}
			return nil
		})
		return err
	}, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return session.ErrConflict
	}
	return err
}

// redisTx buffers mutations as closures replayed into the MULTI/EXEC
// pipeline; reads execute immediately on the watched connection.
type redisTx struct {
	redisReader
	g      *RedisGateway
	tx     *redis.Tx
	ctx    context.Context
	buffer []func(pipe redis.Pipeliner)
}

// Watch implements session.Tx.
func (t *redisTx) Watch(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return t.tx.Watch(ctx, keys...).Err()
}

// ServerVersion implements session.Queries.
func (t *redisTx) ServerVersion(ctx context.Context) (*semver.Version, error) {
	return t.g.ServerVersion(ctx)
}

// SetAdd implements session.Tx.
func (t *redisTx) SetAdd(key string, members ...[]byte) {
	args := anyMembers(members)
	t.buffer = append(t.buffer, func(pipe redis.Pipeliner) {
		pipe.SAdd(t.ctx, key, args...)
	})
}

// SetUnionStore implements session.Tx.
func (t *redisTx) SetUnionStore(dest string, keys ...string) {
	srcs := append([]string(nil), keys...)
	t.buffer = append(t.buffer, func(pipe redis.Pipeliner) {
		pipe.SUnionStore(t.ctx, dest, srcs...)
	})
}

// SortedIncrBy implements session.Tx.
func (t *redisTx) SortedIncrBy(key string, increment float64, member []byte) {
	m := string(member)
	t.buffer = append(t.buffer, func(pipe redis.Pipeliner) {
		pipe.ZIncrBy(t.ctx, key, increment, m)
	})
}

// SortedUnionStore implements session.Tx.
func (t *redisTx) SortedUnionStore(dest string, keys []string, weights []float64) {
	store := &redis.ZStore{
		Keys:    append([]string(nil), keys...),
		Weights: append([]float64(nil), weights...),
	}
	t.buffer = append(t.buffer, func(pipe redis.Pipeliner) {
		pipe.ZUnionStore(t.ctx, dest, store)
	})
}

// Del implements session.Tx.
func (t *redisTx) Del(keys ...string) {
	deleted := append([]string(nil), keys...)
	t.buffer = append(t.buffer, func(pipe redis.Pipeliner) {
		pipe.Del(t.ctx, deleted...)
	})
}

// redisReader implements the query side against any command runner, so the
// gateway (plain client) and the transaction handle (watched connection)
// share one implementation.
type redisReader struct {
	cmd redis.Cmdable
}

func (r redisReader) SetCard(ctx context.Context, key string) (int64, error) {
	return r.cmd.SCard(ctx, key).Result()
}

func (r redisReader) SetMembers(ctx context.Context, key string) ([][]byte, error) {
	members, err := r.cmd.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return toBytes(members), nil
}

func (r redisReader) SetHas(ctx context.Context, key string, member []byte) (bool, error) {
	return r.cmd.SIsMember(ctx, key, member).Result()
}

func (r redisReader) SetDiff(ctx context.Context, key string, others ...string) ([][]byte, error) {
	keys := append([]string{key}, others...)
	members, err := r.cmd.SDiff(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	return toBytes(members), nil
}

func (r redisReader) SetUnion(ctx context.Context, keys ...string) ([][]byte, error) {
	members, err := r.cmd.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	return toBytes(members), nil
}

func (r redisReader) SetInter(ctx context.Context, keys ...string) ([][]byte, error) {
	members, err := r.cmd.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	return toBytes(members), nil
}

func (r redisReader) SortedCard(ctx context.Context, key string) (int64, error) {
	return r.cmd.ZCard(ctx, key).Result()
}

func (r redisReader) SortedRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	members, err := r.cmd.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return toBytes(members), nil
}

func (r redisReader) SortedRangeWithScores(ctx context.Context, key string, start, stop int64) ([]session.ScoredMember, error) {
	ranked, err := r.cmd.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	scored := make([]session.ScoredMember, len(ranked))
	for i, z := range ranked {
		member, _ := z.Member.(string)
		scored[i] = session.ScoredMember{Member: []byte(member), Score: z.Score}
	}
	return scored, nil
}

func (r redisReader) SortedScore(ctx context.Context, key string, member []byte) (float64, bool, error) {
	score, err := r.cmd.ZScore(ctx, key, string(member)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func toBytes(members []string) [][]byte {
	out := make([][]byte, len(members))
	for i, m := range members {
		out[i] = []byte(m)
	}
	return out
}

func anyMembers(members [][]byte) []any {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
