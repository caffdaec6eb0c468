package nodestore

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/LeJamon/goshamap/internal/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DatabaseImpl wraps a Backend with a positive cache, a negative cache and
// statistics to implement the Database interface.
type DatabaseImpl struct {
	backend     Backend
	cache       *expirable.LRU[Hash256, *Node]
	cacheSize   int
	negative    *NegativeCache
	readThreads int
	log         *logrus.Entry

	stats struct {
		reads        atomic.Uint64
		cacheHits    atomic.Uint64
		cacheMisses  atomic.Uint64
		negativeHits atomic.Uint64
		writes       atomic.Uint64
		readBytes    atomic.Uint64
		writeBytes   atomic.Uint64
	}
}

// NewDatabase creates a Database over an open Backend. A zero CacheSize
// disables the positive cache.
func NewDatabase(backend Backend, config *Config) *DatabaseImpl {
	if config == nil {
		config = DefaultConfig()
	}

	d := &DatabaseImpl{
		backend:     backend,
		cacheSize:   config.CacheSize,
		negative:    NewNegativeCache(config.NegativeCacheTTL),
		readThreads: config.ReadThreads,
		log:         log.Module("nodestore").WithField("backend", backend.Name()),
	}
	if d.readThreads < 1 {
		d.readThreads = 1
	}
	if config.CacheSize > 0 {
		d.cache = expirable.NewLRU[Hash256, *Node](config.CacheSize, nil, config.CacheTTL)
	}
	return d
}

// Open creates, opens and wraps the backend named by config.
func Open(config *Config) (*DatabaseImpl, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	backend, err := CreateBackend(config.Backend, config)
	if err != nil {
		return nil, err
	}
	if err := backend.Open(config.CreateIfMissing); err != nil {
		return nil, err
	}
	return NewDatabase(backend, config), nil
}

// Backend returns the underlying storage backend.
func (d *DatabaseImpl) Backend() Backend {
	return d.backend
}

// Store persists a node to the store.
func (d *DatabaseImpl) Store(ctx context.Context, node *Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if node == nil {
		return ErrInvalidNode
	}

	if status := d.backend.Store(node); status != OK {
		d.log.WithField("hash", fmt.Sprintf("%x", node.Hash)).Errorf("store failed: %s", status)
		return NewError("store", d.backend.Name(), node.Hash, status.Err())
	}

	d.stats.writes.Add(1)
	d.stats.writeBytes.Add(uint64(len(node.Data)))
	d.remember(node)
	return nil
}

func (d *DatabaseImpl) remember(node *Node) {
	d.negative.Remove(node.Hash)
	if d.cache != nil {
		d.cache.Add(node.Hash, node)
	}
}

// Fetch retrieves a node by its hash. A missing node is nil, nil.
func (d *DatabaseImpl) Fetch(ctx context.Context, hash Hash256) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.stats.reads.Add(1)

	if d.cache != nil {
		if node, found := d.cache.Get(hash); found {
			d.stats.cacheHits.Add(1)
			return node, nil
		}
		d.stats.cacheMisses.Add(1)
	}

	if d.negative.IsMissing(hash) {
		d.stats.negativeHits.Add(1)
		return nil, nil
	}

	node, status := d.backend.Fetch(hash)
	switch status {
	case OK:
	case NotFound:
		d.negative.MarkMissing(hash)
		return nil, nil
	default:
		d.log.WithField("hash", fmt.Sprintf("%x", hash)).Errorf("fetch failed: %s", status)
		return nil, NewError("fetch", d.backend.Name(), hash, status.Err())
	}

	d.stats.readBytes.Add(uint64(len(node.Data)))
	if d.cache != nil {
		d.cache.Add(hash, node)
	}
	return node, nil
}

// FetchBatch retrieves multiple nodes concurrently, bounded by the
// configured read threads. Missing entries are nil.
func (d *DatabaseImpl) FetchBatch(ctx context.Context, hashes []Hash256) ([]*Node, error) {
	results := make([]*Node, len(hashes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.readThreads)
	for i, hash := range hashes {
		g.Go(func() error {
			node, err := d.Fetch(gctx, hash)
			if err != nil {
				return err
			}
			results[i] = node
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// StoreBatch stores multiple nodes in one backend write.
func (d *DatabaseImpl) StoreBatch(ctx context.Context, nodes []*Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}

	if status := d.backend.StoreBatch(nodes); status != OK {
		d.log.WithField("count", len(nodes)).Errorf("store batch failed: %s", status)
		return NewError("store batch", d.backend.Name(), Hash256{}, status.Err())
	}

	for _, node := range nodes {
		if node == nil {
			continue
		}
		d.stats.writes.Add(1)
		d.stats.writeBytes.Add(uint64(len(node.Data)))
		d.remember(node)
	}
	return nil
}

// Sweep removes expired negative cache entries. The positive cache expires
// entries on its own.
func (d *DatabaseImpl) Sweep() error {
	if n := d.negative.Sweep(); n > 0 {
		d.log.WithField("expired", n).Debug("swept negative cache")
	}
	return nil
}

// Stats returns performance statistics.
func (d *DatabaseImpl) Stats() Statistics {
	stats := Statistics{
		Reads:        d.stats.reads.Load(),
		CacheHits:    d.stats.cacheHits.Load(),
		CacheMisses:  d.stats.cacheMisses.Load(),
		NegativeHits: d.stats.negativeHits.Load(),
		ReadBytes:    d.stats.readBytes.Load(),
		Writes:       d.stats.writes.Load(),
		WriteBytes:   d.stats.writeBytes.Load(),
		NegativeSize: uint64(d.negative.Size()),
		BackendName:  d.backend.Name(),
	}
	if d.cache != nil {
		stats.CacheSize = uint64(d.cache.Len())
		stats.CacheMaxSize = uint64(d.cacheSize)
	}
	return stats
}

// Close gracefully closes the database.
func (d *DatabaseImpl) Close() error {
	if d.cache != nil {
		d.cache.Purge()
	}
	d.negative.Clear()
	return d.backend.Close()
}

// Sync forces pending writes to disk.
func (d *DatabaseImpl) Sync() error {
	if status := d.backend.Sync(); status != OK {
		return NewError("sync", d.backend.Name(), Hash256{}, status.Err())
	}
	return nil
}
