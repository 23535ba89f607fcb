package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-bulkedit/adapters/zaplog"
	"github.com/goliatone/go-bulkedit/core"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "BULKEDIT_CONFIG"
	envDatabaseURL    = "BULKEDIT_DATABASE_URL"
	envDatabaseDriver = "BULKEDIT_DATABASE_DRIVER"
	envHTTPAddr       = "BULKEDIT_HTTP_ADDR"
	envLogLevel       = "BULKEDIT_LOG_LEVEL"

	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"
)

type databaseConfig struct {
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	Debug       bool          `yaml:"debug"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
}

func (c databaseConfig) GetDebug() bool {
	return c.Debug
}

func (c databaseConfig) GetDriver() string {
	return c.Driver
}

func (c databaseConfig) GetServer() string {
	return c.DSN
}

func (c databaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c databaseConfig) GetOtelIdentifier() string {
	return "go-bulkedit"
}

type httpConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type cacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// appConfig is the YAML file layout. The engine section is kept raw and
// resolved through the engine config provider so its defaults and
// validation apply.
type appConfig struct {
	Database databaseConfig `yaml:"database"`
	HTTP     httpConfig     `yaml:"http"`
	Log      zaplog.Config  `yaml:"log"`
	Cache    cacheConfig    `yaml:"cache"`
	Engine   map[string]any `yaml:"engine"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Database: databaseConfig{
			Driver: driverSQLite,
			DSN:    "file:bulkedit.db?cache=shared",
		},
		HTTP: httpConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  5 * time.Minute,
		},
		Log: zaplog.Config{
			Level:    "info",
			Encoding: "json",
		},
		Cache: cacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
	}
}

// loadConfig reads the optional YAML file then applies environment
// overrides.
func loadConfig(path string, lookupEnv func(string) (string, bool)) (appConfig, error) {
	cfg := defaultAppConfig()
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if strings.TrimSpace(path) == "" {
		if value, ok := lookupEnv(envConfigPath); ok {
			path = value
		}
	}
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return appConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return appConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if value, ok := lookupEnv(envDatabaseURL); ok && strings.TrimSpace(value) != "" {
		cfg.Database.DSN = strings.TrimSpace(value)
		if driver := driverFromDSN(cfg.Database.DSN); driver != "" {
			cfg.Database.Driver = driver
		}
	}
	if value, ok := lookupEnv(envDatabaseDriver); ok && strings.TrimSpace(value) != "" {
		cfg.Database.Driver = strings.TrimSpace(value)
	}
	if value, ok := lookupEnv(envHTTPAddr); ok && strings.TrimSpace(value) != "" {
		cfg.HTTP.Addr = strings.TrimSpace(value)
	}
	if value, ok := lookupEnv(envLogLevel); ok && strings.TrimSpace(value) != "" {
		cfg.Log.Level = strings.TrimSpace(value)
	}
	cfg.Database.Driver = normalizeDriver(cfg.Database.Driver)
	return cfg, nil
}

// engineProvider exposes the raw engine section as the engine's loaded
// config layer, so explicit zero values in the file are kept.
func (c appConfig) engineProvider() core.ConfigProvider {
	return core.NewCfgxConfigProvider(core.StaticConfigLoader{Values: c.Engine})
}

// engineConfig layers the raw engine section over the engine defaults.
func (c appConfig) engineConfig(ctx context.Context) (core.Config, error) {
	return c.engineProvider().Load(ctx, core.DefaultConfig())
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg":
		return driverPostgres
	case "", "sqlite", "sqlite3":
		return driverSQLite
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}

func driverFromDSN(dsn string) string {
	lowered := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lowered, "postgres://"), strings.HasPrefix(lowered, "postgresql://"):
		return driverPostgres
	case strings.HasPrefix(lowered, "file:"), strings.HasSuffix(lowered, ".db"):
		return driverSQLite
	}
	return ""
}
