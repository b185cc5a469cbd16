// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers a YAML file and KILLSYNC_* environment variables on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// CutoffLayout is the layout of the historical cutoff date.
const CutoffLayout = "2006-01-02"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address of the read API, e.g. ":9080".
	Addr string `koanf:"addr"`

	// CorporationID is the tracked corporation; it decides KILL vs LOSS.
	CorporationID string `koanf:"corporation_id"`

	// CorporationName is the default corporation filter of the read API.
	CorporationName string `koanf:"corporation_name"`

	// UserAgent identifies this client to ESI; it should carry contact info.
	UserAgent string `koanf:"user_agent"`

	// Database connection. DBDSN wins; otherwise a Postgres DSN is built from
	// the discrete DB* fields when DBDriver is pgx.
	DBDriver   string `koanf:"db_driver"`
	DBDSN      string `koanf:"db_dsn"`
	DBHost     string `koanf:"db_host"`
	DBPort     int    `koanf:"db_port"`
	DBUser     string `koanf:"db_user"`
	DBPassword string `koanf:"db_password"`
	DBName     string `koanf:"db_name"`

	// Upstream base URLs.
	ZKBBaseURL string `koanf:"zkb_base_url"`
	ESIBaseURL string `koanf:"esi_base_url"`

	// HTTPTimeout bounds a single upstream request.
	HTTPTimeout time.Duration `koanf:"http_timeout"`

	// CutoffDate (YYYY-MM-DD) bounds historical backfill.
	CutoffDate string `koanf:"cutoff_date"`

	// MaxPages caps pages per run; 0 means unbounded.
	MaxPages int `koanf:"max_pages"`

	// Pacing between feed events and pages.
	EventDelay time.Duration `koanf:"event_delay"`
	PageDelay  time.Duration `koanf:"page_delay"`
	PageJitter time.Duration `koanf:"page_jitter"`

	// KnownStopCount ends an incremental run after this many consecutive
	// already-stored events.
	KnownStopCount int `koanf:"known_stop_count"`

	// Fetcher retry and rate-limit policy.
	FetchMaxAttempts    int           `koanf:"fetch_max_attempts"`
	FetchBackoffStep    time.Duration `koanf:"fetch_backoff_step"`
	RetryAfterDefault   time.Duration `koanf:"retry_after_default"`
	RetryAfterMax       time.Duration `koanf:"retry_after_max"`
	ErrorLimitThreshold int           `koanf:"error_limit_threshold"`
	ErrorLimitMaxWait   time.Duration `koanf:"error_limit_max_wait"`

	// ResolveCacheSize bounds the entity name cache; 0 disables it.
	ResolveCacheSize int `koanf:"resolve_cache_size"`

	// SyncInterval schedules incremental syncs while serving; 0 disables.
	SyncInterval time.Duration `koanf:"sync_interval"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		UserAgent:           "killsync/1.0 (+https://github.com/okian/killsync)",
		DBDriver:            DriverSQLite,
		DBDSN:               "killsync.db",
		DBPort:              5432,
		ZKBBaseURL:          "https://zkillboard.com",
		ESIBaseURL:          "https://esi.evetech.net",
		HTTPTimeout:         30 * time.Second,
		CutoffDate:          "2025-01-01",
		MaxPages:            0,
		EventDelay:          time.Second,
		PageDelay:           2 * time.Second,
		PageJitter:          0,
		KnownStopCount:      5,
		FetchMaxAttempts:    3,
		FetchBackoffStep:    5 * time.Second,
		RetryAfterDefault:   60 * time.Second,
		RetryAfterMax:       300 * time.Second,
		ErrorLimitThreshold: 20,
		ErrorLimitMaxWait:   30 * time.Second,
		ResolveCacheSize:    10_000,
		SyncInterval:        0,
	}
}

// Cutoff returns the parsed historical cutoff date (UTC midnight).
func (c *Config) Cutoff() (time.Time, error) {
	t, err := time.ParseInLocation(CutoffLayout, strings.TrimSpace(c.CutoffDate), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cutoff_date %q: %v", ErrInvalidConfig, c.CutoffDate, err)
	}
	return t, nil
}

// DataSource returns the driver-specific DSN.
func (c *Config) DataSource() string {
	if c.DBDSN != "" || c.DBDriver != DriverPostgres {
		return c.DBDSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DBHost, fmt.Sprint(c.DBPort)),
		Path:   "/" + c.DBName,
	}
	if c.DBUser != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	}
	return u.String()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.CorporationID) == "":
		return fmt.Errorf("%w: corporation_id must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.UserAgent) == "":
		return fmt.Errorf("%w: user_agent must not be empty", ErrInvalidConfig)
	case c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	case c.DataSource() == "":
		return fmt.Errorf("%w: database connection is not configured", ErrInvalidConfig)
	case c.FetchMaxAttempts < 1:
		return fmt.Errorf("%w: fetch_max_attempts must be at least 1", ErrInvalidConfig)
	case c.MaxPages < 0:
		return fmt.Errorf("%w: max_pages must not be negative", ErrInvalidConfig)
	case c.KnownStopCount < 1:
		return fmt.Errorf("%w: known_stop_count must be at least 1", ErrInvalidConfig)
	}
	if _, err := c.Cutoff(); err != nil {
		return err
	}
	return nil
}
