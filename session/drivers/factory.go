// Package drivers provides the gateway implementations behind
// session.Gateway: a redis driver speaking through go-redis, and an
// in-memory driver with the same optimistic-commit contract, used as the
// store double in tests.
package drivers

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/creastat/collections/session"
)

// GatewayType represents the type of gateway driver.
type GatewayType string

const (
	GatewayTypeMemory GatewayType = "memory"
	GatewayTypeRedis  GatewayType = "redis"
)

// Common errors for gateway construction.
var (
	ErrInvalidConfig      = errors.New("invalid gateway configuration")
	ErrInvalidGatewayType = errors.New("invalid gateway type")
)

// New creates a gateway of the given type. Supports "memory" and "redis"
// driver types. For redis, requires the WithRedisClient option.
func New(gatewayType GatewayType, opts ...Option) (session.Gateway, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch gatewayType {
	case GatewayTypeMemory:
		return newMemoryGateway(cfg), nil

	case GatewayTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return newRedisGateway(cfg), nil

	default:
		return nil, ErrInvalidGatewayType
	}
}

// NewMemoryGateway creates an in-memory gateway.
func NewMemoryGateway(opts ...Option) *MemoryGateway {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return newMemoryGateway(cfg)
}

// NewRedisGateway creates a gateway over the given redis client.
func NewRedisGateway(client *redis.Client, opts ...Option) *RedisGateway {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.redisClient = client
	return newRedisGateway(cfg)
}
