/*
config.go - Layered configuration

PURPOSE:
  Loads the server and CLI configuration from three layers, later layers
  overriding earlier ones:

    1. Built-in defaults (defaultConfig)
    2. Optional YAML file (LIBRARY_CONFIG, then ./library.yaml)
    3. Environment variables with the LIBRARY_ prefix

ENVIRONMENT MAPPING:
  Strip the prefix, lower-case, and "__" separates sections:

    LIBRARY_SERVER__ADDR=:9090            -> server.addr
    LIBRARY_LENDING__MAX_OPEN_LOANS=3     -> lending.max_open_loans
    LIBRARY_MINING__MIN_CONFIDENCE=0.2    -> mining.min_confidence

SEE ALSO:
  - cmd/server/main.go, cmd/libctl: Call Load
*/
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/warp/lending-engine/logging"
)

const (
	EnvPrefix  = "LIBRARY_"
	PathEnvVar = "LIBRARY_CONFIG"
)

// DefaultPaths are searched when PathEnvVar is not set.
var DefaultPaths = []string{"library.yaml", "library.yml"}

// =============================================================================
// CONFIG SECTIONS
// =============================================================================

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Lending  LendingConfig  `koanf:"lending"`
	Rules    RulesConfig    `koanf:"rules"`
	Mining   MiningConfig   `koanf:"mining"`
	Notices  NoticesConfig  `koanf:"notices"`
	Log      logging.Config `koanf:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit" validate:"min=0"`
	RateWindow      time.Duration `koanf:"rate_window"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
}

type DatabaseConfig struct {
	// Path is a sqlite file, or ":memory:".
	Path string `koanf:"path" validate:"required"`
}

type RedisConfig struct {
	// Addr enables the shared version counter when set.
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min=0"`
	Key      string `koanf:"key"`
}

type LendingConfig struct {
	MaxOpenLoans        int   `koanf:"max_open_loans" validate:"min=1"`
	CountPendingReturns bool  `koanf:"count_pending_returns"`
	CapReservations     bool  `koanf:"cap_reservations"`
	FinePerDay          int64 `koanf:"fine_per_day" validate:"min=0"`
	DefaultLoanDays     int   `koanf:"default_loan_days" validate:"min=1"`

	// ReconcileInterval schedules the available-count recomputation. 0 disables it.
	ReconcileInterval time.Duration `koanf:"reconcile_interval" validate:"min=0"`
}

type RulesConfig struct {
	// File is a JSON rule table. Empty means the stored table, or the built-in default.
	File string `koanf:"file"`
}

type MiningConfig struct {
	MinSupport    float64       `koanf:"min_support" validate:"gt=0,lte=1"`
	MinConfidence float64       `koanf:"min_confidence" validate:"gte=0,lte=1"`
	MinLift       float64       `koanf:"min_lift" validate:"gte=0"`
	MinBaskets    int           `koanf:"min_baskets" validate:"min=1"`
	Interval      time.Duration `koanf:"interval" validate:"min=0"`
}

type NoticesConfig struct {
	Topic           string        `koanf:"topic" validate:"required"`
	DueSoonInterval time.Duration `koanf:"due_soon_interval" validate:"min=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"min=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			CORSOrigins:     []string{"http://localhost:*", "http://127.0.0.1:*"},
			RateLimit:       100,
			RateWindow:      time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "library.db",
		},
		Redis: RedisConfig{
			Key: "library:borrows_version",
		},
		Lending: LendingConfig{
			MaxOpenLoans:        5,
			CountPendingReturns: true,
			FinePerDay:          3000,
			DefaultLoanDays:     14,
			ReconcileInterval:   6 * time.Hour,
		},
		Mining: MiningConfig{
			MinSupport:    0.01,
			MinConfidence: 0.1,
			MinLift:       1.0,
			MinBaskets:    5,
			Interval:      24 * time.Hour,
		},
		Notices: NoticesConfig{
			Topic:           "library.notices",
			DueSoonInterval: 24 * time.Hour,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config { return defaultConfig() }

// =============================================================================
// LOADING
// =============================================================================

// Load builds the configuration. path overrides the file search when non-empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := splitCommaList(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps LIBRARY_LENDING__MAX_OPEN_LOANS to lending.max_open_loans.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

// splitCommaList turns "a,b" from the environment into a slice.
func splitCommaList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok || s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if err := k.Set(path, out); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}
