package bootstrap

import (
	"github.com/auditflow/automation-engine/common/config"
	"github.com/auditflow/automation-engine/common/db"
	"github.com/auditflow/automation-engine/common/logger"
)

// Option trims or overrides parts of Setup. Every service takes the
// full stack by default and opts out of what it does not touch.
type Option func(*options)

type options struct {
	skipDB        bool
	skipRedis     bool
	skipQueue     bool
	skipCache     bool
	skipTelemetry bool
	customLogger  *logger.Logger
	customConfig  *config.Config
	dbInitHook    func(*db.DB) error
}

// WithoutDB skips postgres. The event relay runs this way: it only
// bridges redis to websockets.
func WithoutDB() Option {
	return func(o *options) {
		o.skipDB = true
	}
}

// WithoutRedis skips redis. Implies a memory queue and memory cache
// regardless of configuration.
func WithoutRedis() Option {
	return func(o *options) {
		o.skipRedis = true
	}
}

// WithoutQueue skips the job queue for services that neither enqueue
// nor consume
func WithoutQueue() Option {
	return func(o *options) {
		o.skipQueue = true
	}
}

// WithoutCache skips the completion cache. Only the worker reads it;
// everything else opts out.
func WithoutCache() Option {
	return func(o *options) {
		o.skipCache = true
	}
}

// WithoutTelemetry skips the pprof endpoint even when configured on
func WithoutTelemetry() Option {
	return func(o *options) {
		o.skipTelemetry = true
	}
}

// WithCustomLogger uses the given logger instead of building one from
// the service config
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig bypasses config loading, for tests that assemble
// their own
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

// WithDBInitHook runs after the database connects and before anything
// queries it. The services use it to apply the schema.
func WithDBInitHook(hook func(*db.DB) error) Option {
	return func(o *options) {
		o.dbInitHook = hook
	}
}

func defaultOptions() *options {
	return &options{}
}
