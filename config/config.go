// config.go - process configuration.
//
// Values come from an optional YAML file overridden by environment
// variables; every knob has a sane default so the binary runs with no
// configuration at all.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full process configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Auth   AuthConfig   `yaml:"auth"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"LEDGER_HOST" env-default:"0.0.0.0"`
	Port int    `yaml:"port" env:"LEDGER_PORT" env-default:"8080"`
	Env  string `yaml:"env" env:"LEDGER_ENV" env-default:"development"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DBConfig carries the database path and the pool knobs. BusyTimeoutMS
// is the per-connection engine-level wait; AcquireTimeout bounds how
// long a request waits for a pool slot.
type DBConfig struct {
	Path           string        `yaml:"path" env:"LEDGER_DB_PATH" env-default:"ledger.db"`
	MaxConnections int           `yaml:"maxConnections" env:"LEDGER_DB_MAX_CONNECTIONS" env-default:"10"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout" env:"LEDGER_DB_ACQUIRE_TIMEOUT" env-default:"30s"`
	BusyTimeoutMS  int           `yaml:"busyTimeoutMs" env:"LEDGER_DB_BUSY_TIMEOUT_MS" env-default:"5000"`
	MaxRetries     int           `yaml:"maxRetries" env:"LEDGER_DB_MAX_RETRIES" env-default:"3"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay" env:"LEDGER_DB_RETRY_BASE_DELAY" env-default:"100ms"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret" env:"LEDGER_AUTH_SECRET" env-default:"change-me-in-production"`
	TokenTTL time.Duration `yaml:"tokenTtl" env:"LEDGER_AUTH_TOKEN_TTL" env-default:"24h"`
}

// Load reads configuration from the given YAML file (if non-empty and
// present) and the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			return &cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment config: %w", err)
	}
	return &cfg, nil
}
