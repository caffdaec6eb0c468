package config

import (
	"time"

	"github.com/LeJamon/goshamap/internal/storage/nodestore"
)

// DefaultConfigPath is the configuration file read when none is given.
const DefaultConfigPath = "shamapd.toml"

// Config represents the complete shamapd configuration
type Config struct {
	// [node_db]: the persistent node store
	NodeDB nodestore.Config `toml:"node_db" mapstructure:"node_db"`

	// [shamap]: in-memory tree tuning
	SHAMap SHAMapConfig `toml:"shamap" mapstructure:"shamap"`

	// [sync]: map reconstruction from a peer store
	Sync SyncConfig `toml:"sync" mapstructure:"sync"`

	// [log]
	Log LogConfig `toml:"log" mapstructure:"log"`

	configPath string `toml:"-" mapstructure:"-"`
}

// SHAMapConfig represents the [shamap] section
type SHAMapConfig struct {
	TreeCacheSize   int           `toml:"tree_cache_size" mapstructure:"tree_cache_size"`
	FullBelowExpire time.Duration `toml:"full_below_expire" mapstructure:"full_below_expire"`
	FlushBatch      int           `toml:"flush_batch" mapstructure:"flush_batch"` // dirty nodes written per batch, 0 for one batch
}

// SyncConfig represents the [sync] section
type SyncConfig struct {
	MaxMissing int  `toml:"max_missing" mapstructure:"max_missing"` // positions requested per round
	FatDepth   int  `toml:"fat_depth" mapstructure:"fat_depth"`
	FatLeaves  bool `toml:"fat_leaves" mapstructure:"fat_leaves"`
	Workers    int  `toml:"workers" mapstructure:"workers"`
}

// LogConfig represents the [log] section
type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"` // "text" or "json"
	Color  bool   `toml:"color" mapstructure:"color"`
}

// GetConfigPath returns the path to the configuration file, empty when
// running on defaults.
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// JSONLogs reports whether logs should be written as JSON.
func (c *LogConfig) JSONLogs() bool {
	return c.Format == "json"
}
