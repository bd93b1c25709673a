package delivery

import (
	"time"

	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// LockKey is the leader lock held for the duration of a tick.
const LockKey = "mailpipe:delivery:tick"

// Config tunes the delivery worker.
type Config struct {
	Schedule string `env:"DELIVERY_SCHEDULE" envDefault:"*/1 * * * *"`

	BatchSize  int           `env:"DELIVERY_BATCH_SIZE" envDefault:"20"`
	MaxRetries int           `env:"DELIVERY_MAX_RETRIES" envDefault:"3"`
	RetryDelay time.Duration `env:"DELIVERY_RETRY_DELAY" envDefault:"5m"`
	// Lease bounds how long a claimed item stays invisible to other ticks.
	Lease   time.Duration `env:"DELIVERY_LEASE" envDefault:"2m"`
	LockTTL time.Duration `env:"DELIVERY_LOCK_TTL" envDefault:"55s"`

	// LogRetries appends a retrying log row for every non-terminal failure.
	LogRetries bool `env:"DELIVERY_LOG_RETRIES" envDefault:"false"`
	// SendRate caps sends per second within a tick. Zero means unlimited.
	SendRate float64 `env:"DELIVERY_SEND_RATE" envDefault:"0"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Schedule:   "*/1 * * * *",
		BatchSize:  20,
		MaxRetries: queue.MaxRetries,
		RetryDelay: 5 * time.Minute,
		Lease:      2 * time.Minute,
		LockTTL:    55 * time.Second,
	}
}

// normalize replaces unset or invalid values with defaults.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.Schedule == "" {
		c.Schedule = d.Schedule
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.Lease <= 0 {
		c.Lease = d.Lease
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	return c
}
