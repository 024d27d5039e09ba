package drivers

import (
	"github.com/coreos/go-semver/semver"
	"github.com/redis/go-redis/v9"

	"github.com/creastat/collections/session"
)

// Option is a functional option for configuring a gateway.
type Option func(*config)

// config holds configuration shared by the gateway drivers.
type config struct {
	redisClient   *redis.Client
	serverVersion *semver.Version
	caps          *session.Capabilities
}

// WithRedisClient sets the client for the redis gateway.
func WithRedisClient(client *redis.Client) Option {
	return func(c *config) {
		c.redisClient = client
	}
}

// WithServerVersion sets the version the memory gateway reports.
func WithServerVersion(v *semver.Version) Option {
	return func(c *config) {
		c.serverVersion = v
	}
}

// WithCapabilities overrides the capability report. For the redis gateway
// this replaces the version-derived default; the exact version at which the
// server grew a feature is a property of the server, so deployments that
// know better can say so here.
func WithCapabilities(caps session.Capabilities) Option {
	return func(c *config) {
		c.caps = &caps
	}
}
