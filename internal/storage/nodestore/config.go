package nodestore

import (
	"fmt"
	"time"

	"github.com/LeJamon/goshamap/internal/storage/nodestore/compression"
)

// Config holds configuration options for the NodeStore.
type Config struct {
	// Backend specifies the storage backend to use
	Backend string `mapstructure:"type"`

	// Path specifies the file system path for data storage
	Path string `mapstructure:"path"`

	// Positive cache
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_age"`

	// Negative cache for hashes known to be absent
	NegativeCacheTTL time.Duration `mapstructure:"negative_cache_age"`

	Compressor string `mapstructure:"compressor"`

	// Parallelism of FetchBatch
	ReadThreads int `mapstructure:"read_threads"`

	CreateIfMissing bool `mapstructure:"create_if_missing"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:          "pebble",
		Path:             "./nodestore",
		CacheSize:        16384,
		CacheTTL:         5 * time.Minute,
		NegativeCacheTTL: time.Minute,
		Compressor:       "lz4",
		ReadThreads:      4,
		CreateIfMissing:  true,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Backend == "" {
		return NewValidationError("type", nil, "backend must be specified")
	}
	if !IsBackendAvailable(c.Backend) {
		return NewValidationError("type", c.Backend, "unknown backend")
	}
	if c.Path == "" && IsPersistentBackend(c.Backend) {
		return NewValidationError("path", nil, "path must be specified")
	}
	if c.CacheSize < 0 {
		return NewValidationError("cache_size", c.CacheSize, "must be non-negative")
	}
	if c.CacheTTL < 0 {
		return NewValidationError("cache_age", c.CacheTTL, "must be non-negative")
	}
	if c.NegativeCacheTTL < 0 {
		return NewValidationError("negative_cache_age", c.NegativeCacheTTL, "must be non-negative")
	}
	if c.ReadThreads < 1 {
		return NewValidationError("read_threads", c.ReadThreads, "must be at least 1")
	}
	if !compression.IsAvailable(c.Compressor) {
		return NewValidationError("compressor", c.Compressor, "unsupported compressor")
	}
	return nil
}

// Option represents a functional option for configuring the NodeStore.
type Option func(*Config)

// WithPath sets the storage path.
func WithPath(path string) Option {
	return func(c *Config) {
		c.Path = path
	}
}

// WithBackend sets the storage backend.
func WithBackend(backend string) Option {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithCacheSize sets the cache size (number of items).
func WithCacheSize(size int) Option {
	return func(c *Config) {
		c.CacheSize = size
	}
}

// WithCacheTTL sets the cache time-to-live duration.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.CacheTTL = ttl
	}
}

// WithNegativeCacheTTL sets how long a miss is remembered.
func WithNegativeCacheTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.NegativeCacheTTL = ttl
	}
}

// WithCompressor sets the compression algorithm.
func WithCompressor(name string) Option {
	return func(c *Config) {
		c.Compressor = name
	}
}

// WithReadThreads sets the FetchBatch parallelism.
func WithReadThreads(threads int) Option {
	return func(c *Config) {
		c.ReadThreads = threads
	}
}

// ApplyOptions applies the given options to the config.
func (c *Config) ApplyOptions(options ...Option) {
	for _, option := range options {
		option(c)
	}
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a string representation of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf(`NodeStore Configuration:
  Backend: %s
  Path: %s
  Cache: %d items, TTL: %v, negative TTL: %v
  Compression: %s
  Read Threads: %d`,
		c.Backend,
		c.Path,
		c.CacheSize, c.CacheTTL, c.NegativeCacheTTL,
		c.Compressor,
		c.ReadThreads)
}
