// Package config holds the server's compile-time configuration. There is
// no configuration file, CLI flag, or environment variable support: every
// value here is a constant, and DefaultConfig is the only way to obtain a
// Config value.
package config

import "time"

// Config bundles the fixed parameters the server runs with.
type Config struct {
	// Port is the TCP port the server listens on, bound to the wildcard
	// address.
	Port int

	// AOFPath is the append-only log file, relative to the process's
	// working directory unless given as an absolute path.
	AOFPath string

	// AOFEnabled controls whether mutating commands are persisted at all.
	AOFEnabled bool

	// IdleTimeout is how long a connection may go without a readable or
	// writable event before the event loop closes it.
	IdleTimeout time.Duration

	// MaxExpirePerTick bounds how many expired keys a single event-loop
	// iteration will evict, so a burst of simultaneous expirations can't
	// stall every other connection.
	MaxExpirePerTick int

	// LargeZSetThreshold is the member count above which deleting a
	// sorted set offloads its teardown to the worker pool instead of
	// running it inline.
	LargeZSetThreshold int

	// TeardownWorkers is the number of goroutines in the large-value
	// teardown pool.
	TeardownWorkers int
}

// DefaultConfig returns the server's fixed configuration.
func DefaultConfig() Config {
	return Config{
		Port:               1234,
		AOFPath:            "redis.aof",
		AOFEnabled:         true,
		IdleTimeout:        5 * time.Second,
		MaxExpirePerTick:   2000,
		LargeZSetThreshold: 1000,
		TeardownWorkers:    4,
	}
}
