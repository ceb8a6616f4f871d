// Package config loads the eventify client settings from the environment
// (optionally seeded by a .env file) and from the profiles file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "EVENTIFY_"

const (
	MaxDebounce = 3 * time.Second
	MaxPageSize = 100
)

type Config struct {
	APIURL      string        `env:"API_URL"`                         // EVENTIFY_API_URL (falls back to the active profile)
	Token       string        `env:"TOKEN"`                           // EVENTIFY_TOKEN
	NATSURL     string        `env:"NATS_URL"`                        // EVENTIFY_NATS_URL (optional, empty = polling)
	RedisURL    string        `env:"REDIS_URL"`                       // EVENTIFY_REDIS_URL (optional, empty = no shared cache)
	CacheTTL    time.Duration `env:"CACHE_TTL"    envDefault:"30s"`   // EVENTIFY_CACHE_TTL
	Debounce    time.Duration `env:"DEBOUNCE"     envDefault:"400ms"` // EVENTIFY_DEBOUNCE
	PageSize    int           `env:"PAGE_SIZE"    envDefault:"10"`    // EVENTIFY_PAGE_SIZE
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`   // EVENTIFY_HTTP_TIMEOUT
	Retries     uint64        `env:"RETRIES"      envDefault:"3"`     // EVENTIFY_RETRIES
	// PollInterval drives live screens when no NATS URL is set; 0 disables polling.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	Profile      string        `env:"PROFILE"` // EVENTIFY_PROFILE overrides the active profile

	Export ExportConfig `envPrefix:"EXPORT_"`
}

// ExportConfig configures `ev export` destinations and scheduling.
type ExportConfig struct {
	Dir         string        `env:"DIR"          envDefault:"."`                 // EVENTIFY_EXPORT_DIR
	S3Bucket    string        `env:"S3_BUCKET"`                                   // enables S3 when set
	S3Endpoint  string        `env:"S3_ENDPOINT"`                                 // custom endpoint for MinIO
	S3Region    string        `env:"S3_REGION"    envDefault:"us-east-1"`         // EVENTIFY_EXPORT_S3_REGION
	S3Prefix    string        `env:"S3_PREFIX"    envDefault:"eventify/exports/"` // EVENTIFY_EXPORT_S3_PREFIX
	DatabaseURL string        `env:"DATABASE_URL"`                                // enables Postgres when set
	Interval    time.Duration `env:"INTERVAL"     envDefault:"0"`                 // 0 = run once
	Concurrency int           `env:"CONCURRENCY"  envDefault:"4"`                 // parallel page fetches
}

// Load reads .env (a missing file is fine), parses the EVENTIFY_* variables
// and sanitizes the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	c.Sanitize()
	return &c, nil
}

// Sanitize clamps values to the ranges the listing controller supports.
func (c *Config) Sanitize() {
	c.Debounce = ClampDebounce(c.Debounce)
	c.PageSize = ClampPageSize(c.PageSize)
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.PollInterval < 0 {
		c.PollInterval = 0
	}
	c.Export.Sanitize()
}

// Sanitize clamps the export settings.
func (e *ExportConfig) Sanitize() {
	if e.Concurrency < 1 {
		e.Concurrency = 1
	}
	if e.Concurrency > 16 {
		e.Concurrency = 16
	}
	if e.Interval < 0 {
		e.Interval = 0
	}
	if e.Dir == "" {
		e.Dir = "."
	}
}

// ClampDebounce limits d to [0, MaxDebounce].
func ClampDebounce(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxDebounce {
		return MaxDebounce
	}
	return d
}

// ClampPageSize limits n to [1, MaxPageSize].
func ClampPageSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// ApplyProfile fills the connection settings the environment left empty from
// p. Environment values win.
func (c *Config) ApplyProfile(p Profile) {
	if c.APIURL == "" {
		c.APIURL = p.URL
	}
	if c.Token == "" {
		c.Token = p.Token
	}
	if c.NATSURL == "" {
		c.NATSURL = p.NATSURL
	}
}

// Validate reports settings that make the client unusable.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("%sAPI_URL is required (or add a profile with 'ev profile add')", EnvPrefix)
	}
	return nil
}
