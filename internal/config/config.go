// Package config loads the warehouse service configuration from an optional
// yaml file, an optional .env file and WAREHOUSE_* environment variables, in
// increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "WAREHOUSE_"

	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Shutdown  ShutdownConfig  `koanf:"shutdown"`
}

type ServerConfig struct {
	Port int `koanf:"port" validate:"min=1,max=65535"`
}

type StoreConfig struct {
	Driver string `koanf:"driver" validate:"oneof=file memory postgres"`
	Path   string `koanf:"path"   validate:"required_if=Driver file"`
}

type DatabaseConfig struct {
	URL string `koanf:"url"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Token   string `koanf:"token"`
}

type RateLimitConfig struct {
	Writes int           `koanf:"writes" validate:"min=0"`
	Window time.Duration `koanf:"window" validate:"min=0"`

	// TrustProxy keys the limiter by X-Forwarded-For.
	TrustProxy bool `koanf:"trustproxy"`
}

type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
}

// Sources names the optional files read before the environment. Empty paths
// are skipped.
type Sources struct {
	File   string
	DotEnv string
}

func DefaultSources() Sources {
	return Sources{File: "config.yaml", DotEnv: ".env"}
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":          8080,
		"store.driver":         DriverFile,
		"store.path":           "inventory.csv",
		"log.level":            "info",
		"metrics.enabled":      true,
		"ratelimit.writes":     60,
		"ratelimit.window":     "1m",
		"ratelimit.trustproxy": false,
		"shutdown.timeout":     "10s",
	}
}

func Load() (*Config, error) {
	return LoadFrom(DefaultSources())
}

func LoadFrom(src Sources) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if src.File != "" {
		if err := k.Load(file.Provider(src.File), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", src.File, err)
		}
	}

	if src.DotEnv != "" {
		vals, err := godotenv.Read(src.DotEnv)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", src.DotEnv, err)
		}
		m := make(map[string]any, len(vals))
		for key, v := range vals {
			if strings.HasPrefix(key, EnvPrefix) {
				m[envKey(key)] = v
			}
		}
		if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
			return nil, fmt.Errorf("load %s: %w", src.DotEnv, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps WAREHOUSE_STORE_PATH to store.path.
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "_", ".")
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Store.Driver == DriverPostgres && c.Database.URL == "" {
		return errors.New("database.url is required for the postgres store")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) String() string {
	var b strings.Builder

	b.WriteString("\n--- Server ---\n")
	b.WriteString(fmt.Sprintf("  server.port: %d\n", c.Server.Port))
	b.WriteString(fmt.Sprintf("  shutdown.timeout: %s\n", c.Shutdown.Timeout))

	b.WriteString("\n--- Store ---\n")
	b.WriteString(fmt.Sprintf("  store.driver: %s\n", c.Store.Driver))
	b.WriteString(fmt.Sprintf("  store.path: %s\n", c.Store.Path))
	b.WriteString(fmt.Sprintf("  database.url: %s\n", maskURL(c.Database.URL)))

	b.WriteString("\n--- Observability ---\n")
	b.WriteString(fmt.Sprintf("  log.level: %s\n", c.Log.Level))
	b.WriteString(fmt.Sprintf("  metrics.enabled: %t\n", c.Metrics.Enabled))
	b.WriteString(fmt.Sprintf("  ratelimit.writes: %d per %s\n", c.RateLimit.Writes, c.RateLimit.Window))
	b.WriteString(fmt.Sprintf("  ratelimit.trustproxy: %t\n", c.RateLimit.TrustProxy))

	return b.String()
}

func maskURL(url string) string {
	if url == "" {
		return "<not configured>"
	}
	if _, host, ok := strings.Cut(url, "@"); ok {
		return "****@" + host
	}
	return "****"
}
