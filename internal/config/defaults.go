package config

import (
	"github.com/spf13/viper"

	"github.com/LeJamon/goshamap/internal/shamap"
	"github.com/LeJamon/goshamap/internal/storage/nodestore"
)

// setDefaults sets the default value of every key
func setDefaults(v *viper.Viper) {
	db := nodestore.DefaultConfig()
	v.SetDefault("node_db.type", db.Backend)
	v.SetDefault("node_db.path", db.Path)
	v.SetDefault("node_db.cache_size", db.CacheSize)
	v.SetDefault("node_db.cache_age", db.CacheTTL)
	v.SetDefault("node_db.negative_cache_age", db.NegativeCacheTTL)
	v.SetDefault("node_db.compressor", db.Compressor)
	v.SetDefault("node_db.read_threads", db.ReadThreads)
	v.SetDefault("node_db.create_if_missing", db.CreateIfMissing)

	v.SetDefault("shamap.tree_cache_size", shamap.DefaultTreeCacheSize)
	v.SetDefault("shamap.full_below_expire", shamap.DefaultFullBelowExpiration)
	v.SetDefault("shamap.flush_batch", 0)

	v.SetDefault("sync.max_missing", 256)
	v.SetDefault("sync.fat_depth", 1)
	v.SetDefault("sync.fat_leaves", true)
	v.SetDefault("sync.workers", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
}
