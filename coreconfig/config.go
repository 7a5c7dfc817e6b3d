// Package coreconfig loads the tunables the core needs at construction
// time: pool sizes, retry bounds, lock TTLs and batch sizes. It carries no
// opinion about where the process gets its configuration from beyond
// environment variables, since wiring a CLI or file-based config layer is
// explicitly a concern of the out-of-scope wire-handler layer.
package coreconfig

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every knob the core's components need. Zero-value fields
// are filled with sane defaults by Load.
type Config struct {
	// PostgresDSN is the connection string for the event store, unique
	// constraint registry, projection lock and position tables.
	PostgresDSN string `env:"CORE_POSTGRES_DSN"`
	// PoolMaxConns bounds the shared connection pool.
	PoolMaxConns int32 `env:"CORE_POOL_MAX_CONNS" envDefault:"20"`

	// CommandRetryMax bounds transparent ConcurrencyConflict retries in
	// the Command Engine (§4.3 step 4, default 3).
	CommandRetryMax int `env:"CORE_COMMAND_RETRY_MAX" envDefault:"3"`
	// CommandRetryBaseDelay is the base of the jittered backoff between
	// retries.
	CommandRetryBaseDelay time.Duration `env:"CORE_COMMAND_RETRY_BASE_DELAY" envDefault:"10ms"`

	// ProjectionBatchSize bounds how many events a projection worker
	// tick streams and applies per lock acquisition.
	ProjectionBatchSize int `env:"CORE_PROJECTION_BATCH_SIZE" envDefault:"200"`
	// ProjectionLockTTL is how long a projection lock is held before it
	// is considered abandoned and stealable by another worker.
	ProjectionLockTTL time.Duration `env:"CORE_PROJECTION_LOCK_TTL" envDefault:"30s"`
	// ProjectionTickInterval is how often the supervisor schedules a
	// tick per (projection, instance) pair.
	ProjectionTickInterval time.Duration `env:"CORE_PROJECTION_TICK_INTERVAL" envDefault:"1s"`
	// ProjectionMaxWorkers bounds how many (projection, instance) pairs
	// are processed concurrently by one process.
	ProjectionMaxWorkers int `env:"CORE_PROJECTION_MAX_WORKERS" envDefault:"8"`

	// FailedEventMaxRetries is the failure_count cap after which a
	// poisoned event is quarantined and requires operator action.
	FailedEventMaxRetries int `env:"CORE_FAILED_EVENT_MAX_RETRIES" envDefault:"10"`
	// FailedEventBaseBackoff and FailedEventMaxBackoff bound the
	// exponential backoff applied between retries of a failed event.
	FailedEventBaseBackoff time.Duration `env:"CORE_FAILED_EVENT_BASE_BACKOFF" envDefault:"500ms"`
	FailedEventMaxBackoff  time.Duration `env:"CORE_FAILED_EVENT_MAX_BACKOFF" envDefault:"5m"`
}

// Load reads Config from the process environment, applying envDefault tags
// for anything unset.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
