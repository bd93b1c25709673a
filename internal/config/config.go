// Package config loads mailpipe's environment configuration.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dmitrymomot/mailpipe/pkg/db"
	"github.com/dmitrymomot/mailpipe/pkg/delivery"
	"github.com/dmitrymomot/mailpipe/pkg/inbox"
	"github.com/dmitrymomot/mailpipe/pkg/logger"
	"github.com/dmitrymomot/mailpipe/pkg/mailer/resend"
	"github.com/dmitrymomot/mailpipe/pkg/redis"
)

// ErrLoad wraps environment parsing failures.
var ErrLoad = errors.New("config: load environment")

// Config is the full process configuration.
type Config struct {
	HTTP     HTTP
	Producer Producer
	Metrics  Metrics
	Inbox    Inbox
	Jobs     Jobs
	Log      logger.Config
	Sentry   logger.SentryConfig
	Database db.Config
	Redis    redis.Config
	Resend   resend.Config
	Delivery delivery.Config
}

// HTTP configures the producer API server.
type HTTP struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
	// APIToken guards the producer endpoints with a bearer token when set.
	APIToken        string        `env:"API_TOKEN"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	// RequestRate caps producer requests per second per client address. Zero disables it.
	RequestRate  float64 `env:"HTTP_REQUEST_RATE" envDefault:"0"`
	RequestBurst int     `env:"HTTP_REQUEST_BURST" envDefault:"20"`
}

// Producer configures campaign and hook producers.
type Producer struct {
	AdminEmail      string `env:"ADMIN_EMAIL" envDefault:"support@hubsnap.com"`
	UsersTable      string `env:"USERS_TABLE" envDefault:"users"`
	ChunkSize       int    `env:"PRODUCER_CHUNK_SIZE" envDefault:"400"`
	FanoutPageSize  int    `env:"CAMPAIGN_FANOUT_PAGE_SIZE" envDefault:"400"`
	ResumableFanout bool   `env:"CAMPAIGN_RESUMABLE_FANOUT" envDefault:"false"`
	// AsyncWelcome hands signup mail to a River job instead of enqueuing inline.
	AsyncWelcome bool `env:"SIGNUP_ASYNC_WELCOME" envDefault:"false"`
	// TemplateCacheTTL caches stored templates. Zero reads the store every time.
	TemplateCacheTTL time.Duration `env:"TEMPLATE_CACHE_TTL" envDefault:"5m"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Namespace string `env:"METRICS_NAMESPACE" envDefault:"mailpipe"`
	Enabled   bool   `env:"METRICS_ENABLED" envDefault:"true"`
	// Addr serves metrics and probes from the worker command. Empty disables it.
	Addr string `env:"METRICS_ADDR"`
}

// Inbox configures inbound reply sync.
type Inbox struct {
	// Dir is a maildir root. Empty disables sync.
	Dir      string `env:"INBOX_DIR"`
	Schedule string `env:"INBOX_SCHEDULE" envDefault:"*/5 * * * *"`
	// S3 takes precedence over Dir when a bucket is set.
	S3 inbox.S3Config
}

// Jobs configures the River job manager.
type Jobs struct {
	Workers int `env:"JOB_WORKERS" envDefault:"10"`
	// Enabled runs the delivery tick and fan-out through River. When false
	// the worker command uses its own cron loop.
	Enabled bool `env:"JOBS_ENABLED" envDefault:"true"`
}

// Load reads the nearest .env file, if any, then parses the environment.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Join(ErrLoad, err)
	}
	return cfg, nil
}

// loadDotEnv loads the first .env found walking up from the working
// directory. Variables already set win.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
