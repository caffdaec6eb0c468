package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ValidateConfig performs validation on the complete configuration
func ValidateConfig(config *Config) error {
	if err := config.NodeDB.Validate(); err != nil {
		return fmt.Errorf("node_db validation failed: %w", err)
	}
	if err := config.SHAMap.Validate(); err != nil {
		return fmt.Errorf("shamap validation failed: %w", err)
	}
	if err := config.Sync.Validate(); err != nil {
		return fmt.Errorf("sync validation failed: %w", err)
	}
	if err := config.Log.Validate(); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}
	return nil
}

// Validate performs validation on the [shamap] section
func (s *SHAMapConfig) Validate() error {
	if s.TreeCacheSize < 0 {
		return fmt.Errorf("tree_cache_size must be non-negative, got %d", s.TreeCacheSize)
	}
	if s.FullBelowExpire < 0 {
		return fmt.Errorf("full_below_expire must be non-negative, got %s", s.FullBelowExpire)
	}
	if s.FlushBatch < 0 {
		return fmt.Errorf("flush_batch must be non-negative, got %d", s.FlushBatch)
	}
	return nil
}

// Validate performs validation on the [sync] section
func (s *SyncConfig) Validate() error {
	if s.MaxMissing < 1 {
		return fmt.Errorf("max_missing must be at least 1, got %d", s.MaxMissing)
	}
	if s.FatDepth < 0 {
		return fmt.Errorf("fat_depth must be non-negative, got %d", s.FatDepth)
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	return nil
}

// Validate performs validation on the [log] section
func (l *LogConfig) Validate() error {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format: %s (valid options: text, json)", l.Format)
	}
	return nil
}
