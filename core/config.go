package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	PacingModeFixed       = "fixed"
	PacingModeTokenBucket = "token_bucket"
)

type RetryConfig struct {
	MaxRetries  int     `koanf:"max_retries" mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelayMS int     `koanf:"base_delay_ms" mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
	Factor      float64 `koanf:"factor" mapstructure:"factor" yaml:"factor"`
	MaxDelayMS  int     `koanf:"max_delay_ms" mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
}

type PacingConfig struct {
	Mode              string  `koanf:"mode" mapstructure:"mode" yaml:"mode"`
	RequestsPerSecond float64 `koanf:"requests_per_second" mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `koanf:"burst" mapstructure:"burst" yaml:"burst"`
}

type Config struct {
	ServiceName       string       `koanf:"service_name" mapstructure:"service_name" yaml:"service_name"`
	ChunkSize         int          `koanf:"chunk_size" mapstructure:"chunk_size" yaml:"chunk_size"`
	InterBatchPauseMS int          `koanf:"inter_batch_pause_ms" mapstructure:"inter_batch_pause_ms" yaml:"inter_batch_pause_ms"`
	MaxPayloadBytes   int          `koanf:"max_payload_bytes" mapstructure:"max_payload_bytes" yaml:"max_payload_bytes"`
	APIVersion        string       `koanf:"api_version" mapstructure:"api_version" yaml:"api_version"`
	RequestTimeoutMS  int          `koanf:"request_timeout_ms" mapstructure:"request_timeout_ms" yaml:"request_timeout_ms"`
	Retry             RetryConfig  `koanf:"retry" mapstructure:"retry" yaml:"retry"`
	Pacing            PacingConfig `koanf:"pacing" mapstructure:"pacing" yaml:"pacing"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:       "bulkedit",
		ChunkSize:         DefaultChunkSize,
		InterBatchPauseMS: 500,
		MaxPayloadBytes:   DefaultMaxPayloadBytes,
		APIVersion:        "2024-07",
		RequestTimeoutMS:  30000,
		Retry: RetryConfig{
			MaxRetries:  5,
			BaseDelayMS: 500,
			Factor:      2,
			MaxDelayMS:  8000,
		},
		Pacing: PacingConfig{
			Mode:              PacingModeFixed,
			RequestsPerSecond: 2,
			Burst:             1,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("core: chunk_size must be positive")
	}
	if c.InterBatchPauseMS < 0 {
		return fmt.Errorf("core: inter_batch_pause_ms must not be negative")
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("core: max_payload_bytes must be positive")
	}
	if c.RequestTimeoutMS < 0 {
		return fmt.Errorf("core: request_timeout_ms must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("core: retry.max_retries must not be negative")
	}
	if c.Retry.BaseDelayMS < 0 || c.Retry.MaxDelayMS < 0 {
		return fmt.Errorf("core: retry delays must not be negative")
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("core: retry.factor must be at least 1")
	}
	switch strings.TrimSpace(strings.ToLower(c.Pacing.Mode)) {
	case "", PacingModeFixed:
	case PacingModeTokenBucket:
		if c.Pacing.RequestsPerSecond <= 0 {
			return fmt.Errorf("core: pacing.requests_per_second must be positive for token_bucket")
		}
	default:
		return fmt.Errorf("core: unsupported pacing.mode %q", c.Pacing.Mode)
	}
	return nil
}

func (c Config) InterBatchPause() time.Duration {
	return time.Duration(c.InterBatchPauseMS) * time.Millisecond
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}
