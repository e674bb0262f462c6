package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if MARQUEE_CONFIG is set
//  3. env (prefix MARQUEE_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("MARQUEE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: MARQUEE_ADDR, MARQUEE_DELTA_QUEUE_SIZE, ...
	// Map env keys like MARQUEE_DELTA_QUEUE_SIZE -> delta_queue_size.
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("MARQUEE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "marquee_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations that cannot serve.
func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DeltaQueueSize < 1:
		return fmt.Errorf("%w: delta_queue_size must be positive", ErrInvalidConfig)
	case c.SyncWorkerCount < 1:
		return fmt.Errorf("%w: sync_worker_count must be positive", ErrInvalidConfig)
	case c.StalenessSLAMS < 1:
		return fmt.Errorf("%w: staleness_sla_ms must be positive", ErrInvalidConfig)
	case c.MaxPageSize < 1 || c.MaxPageCount < 1:
		return fmt.Errorf("%w: pagination bounds must be positive", ErrInvalidConfig)
	case c.SearchTimeoutMS < 0:
		return fmt.Errorf("%w: search_timeout_ms must not be negative", ErrInvalidConfig)
	case c.ApplyRetryMax < 1:
		return fmt.Errorf("%w: apply_retry_max must be positive", ErrInvalidConfig)
	case c.HotAvailabilityRatio < 0 || c.HotAvailabilityRatio > 1:
		return fmt.Errorf("%w: hot_availability_ratio must be in [0,1]", ErrInvalidConfig)
	}
	return nil
}
