package repository

import "github.com/okian/killsync/pkg/logger"

// Option applies a configuration option to the SQLStore.
type Option func(*openConfig)

type openConfig struct {
	log          logger.Logger
	busyTimeout  int
	maxOpenConns int
	migrate      bool
}

func defaultOpenConfig() openConfig {
	return openConfig{
		log:          logger.Nop(),
		busyTimeout:  10_000,
		maxOpenConns: 4,
		migrate:      true,
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(c *openConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBusyTimeout sets the SQLite busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(c *openConfig) {
		if ms > 0 {
			c.busyTimeout = ms
		}
	}
}

// WithMaxOpenConns bounds the Postgres pool. SQLite always uses one
// connection.
func WithMaxOpenConns(n int) Option {
	return func(c *openConfig) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}

// WithoutMigrate skips schema creation on open.
func WithoutMigrate() Option {
	return func(c *openConfig) { c.migrate = false }
}
