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

const (
	envPrefix  = "BIKEFLOW_"
	envConfig  = "BIKEFLOW_CONFIG"
	maxPercent = 1.0
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if BIKEFLOW_CONFIG is set
//  3. env (prefix BIKEFLOW_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// BIKEFLOW_GOLD_BUCKET -> gold_bucket (flat keys matching koanf tags).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants the pipeline relies on.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	for name, bucket := range map[string]string{
		"bronze_bucket":     c.BronzeBucket,
		"silver_bucket":     c.SilverBucket,
		"gold_bucket":       c.GoldBucket,
		"historical_bucket": c.HistoricalBucket,
	} {
		if bucket == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidConfig, name)
		}
	}
	if c.PoorShareThreshold < 0 || c.PoorShareThreshold > maxPercent {
		return fmt.Errorf("%w: poor_share_threshold %v outside [0,1]", ErrInvalidConfig, c.PoorShareThreshold)
	}
	for src, v := range c.PoorShareThresholds {
		if v < 0 || v > maxPercent {
			return fmt.Errorf("%w: poor_share_thresholds[%s] %v outside [0,1]", ErrInvalidConfig, src, v)
		}
	}
	if c.FirehoseBadRatio < 0 || c.FirehoseBadRatio > maxPercent {
		return fmt.Errorf("%w: firehose_bad_ratio %v outside [0,1]", ErrInvalidConfig, c.FirehoseBadRatio)
	}
	if c.ArchiveMaxDepth < 1 {
		return fmt.Errorf("%w: archive_max_depth must be at least 1", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.RawExtension, ".") {
		return fmt.Errorf("%w: raw_extension %q must start with a dot", ErrInvalidConfig, c.RawExtension)
	}
	return nil
}
