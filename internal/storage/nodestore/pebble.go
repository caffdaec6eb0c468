package nodestore

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/LeJamon/goshamap/internal/storage/nodestore/compression"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

const pebbleCacheSize = 256 << 20

// PebbleBackend stores nodes in a PebbleDB instance keyed by hash.
type PebbleBackend struct {
	mu         sync.RWMutex // guards db
	db         *pebble.DB
	compressor compression.Compressor
	config     *Config

	open atomic.Bool

	stats struct {
		reads        atomic.Int64
		writes       atomic.Int64
		bytesRead    atomic.Int64
		bytesWritten atomic.Int64
	}
}

// NewPebbleBackend creates a PebbleDB backend. Open must be called before use.
func NewPebbleBackend(config *Config) (Backend, error) {
	if config == nil {
		config = DefaultConfig()
	}

	compressor, err := compression.Get(config.Compressor)
	if err != nil {
		return nil, fmt.Errorf("failed to get compressor %s: %w", config.Compressor, err)
	}

	return &PebbleBackend{
		compressor: compressor,
		config:     config,
	}, nil
}

// Name returns the name of this backend.
func (p *PebbleBackend) Name() string {
	return fmt.Sprintf("pebble(%s)", p.config.Path)
}

// Open opens the backend for use.
func (p *PebbleBackend) Open(createIfMissing bool) error {
	if !p.open.CompareAndSwap(false, true) {
		return errors.New("backend already open")
	}

	if createIfMissing {
		if err := os.MkdirAll(p.config.Path, 0755); err != nil {
			p.open.Store(false)
			return fmt.Errorf("failed to create directory %s: %w", p.config.Path, err)
		}
	}

	opts := p.buildOptions()
	opts.ErrorIfNotExists = !createIfMissing

	p.mu.Lock()
	defer p.mu.Unlock()

	db, err := pebble.Open(p.config.Path, opts)
	if err != nil {
		p.open.Store(false)
		return fmt.Errorf("failed to open PebbleDB at %s: %w", p.config.Path, err)
	}
	p.db = db
	return nil
}

// buildOptions tunes pebble for point lookups by random hash. Values are
// compressed by the backend, so block compression is disabled.
func (p *PebbleBackend) buildOptions() *pebble.Options {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(pebbleCacheSize),
		MaxOpenFiles:                1000,
		MemTableSize:                64 << 20,
		MemTableStopWritesThreshold: 4,
		MaxConcurrentCompactions: func() int {
			return runtime.NumCPU()
		},
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 20,
		LBaseMaxBytes:         256 << 20,
		Levels:                make([]pebble.LevelOptions, 7),
	}

	for i := range opts.Levels {
		opts.Levels[i] = pebble.LevelOptions{
			BlockSize:      32 << 10,
			IndexBlockSize: 256 << 10,
			FilterPolicy:   bloom.FilterPolicy(10),
			FilterType:     pebble.TableFilter,
			TargetFileSize: int64(8<<20) << uint(i),
			Compression:    pebble.NoCompression,
		}
		if opts.Levels[i].TargetFileSize > 256<<20 {
			opts.Levels[i].TargetFileSize = 256 << 20
		}
	}
	return opts
}

// Close closes the backend and releases resources.
func (p *PebbleBackend) Close() error {
	if !p.open.CompareAndSwap(true, false) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.db != nil {
		err = errors.Join(p.db.Flush(), p.db.Close())
		p.db = nil
	}
	return err
}

// IsOpen returns true if the backend is currently open.
func (p *PebbleBackend) IsOpen() bool {
	return p.open.Load()
}

// Fetch retrieves a single object by key.
func (p *PebbleBackend) Fetch(key Hash256) (*Node, Status) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, BackendError
	}

	value, closer, err := p.db.Get(key[:])
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, NotFound
		}
		return nil, BackendError
	}
	defer closer.Close()

	node, err := decodeNode(p.compressor, key, value)
	if err != nil {
		return nil, DataCorrupt
	}

	p.stats.reads.Add(1)
	p.stats.bytesRead.Add(int64(len(value)))
	return node, OK
}

// Store saves a single object.
func (p *PebbleBackend) Store(node *Node) Status {
	if node == nil {
		return BackendError
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return BackendError
	}

	value, err := encodeNode(p.compressor, node)
	if err != nil {
		return BackendError
	}
	if err := p.db.Set(node.Hash[:], value, pebble.NoSync); err != nil {
		return BackendError
	}

	p.stats.writes.Add(1)
	p.stats.bytesWritten.Add(int64(len(value)))
	return OK
}

// StoreBatch saves multiple objects in one pebble batch.
func (p *PebbleBackend) StoreBatch(nodes []*Node) Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return BackendError
	}
	if len(nodes) == 0 {
		return OK
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	var totalBytes int64
	for _, node := range nodes {
		if node == nil {
			continue
		}
		value, err := encodeNode(p.compressor, node)
		if err != nil {
			return BackendError
		}
		if err := batch.Set(node.Hash[:], value, nil); err != nil {
			return BackendError
		}
		totalBytes += int64(len(value))
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return BackendError
	}

	p.stats.writes.Add(int64(len(nodes)))
	p.stats.bytesWritten.Add(totalBytes)
	return OK
}

// Sync forces pending writes to be flushed.
func (p *PebbleBackend) Sync() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return BackendError
	}
	if err := p.db.Flush(); err != nil {
		return BackendError
	}
	return OK
}

// ForEach iterates over all objects in the backend, skipping entries that
// cannot be decoded. fn must not close the backend.
func (p *PebbleBackend) ForEach(fn func(*Node) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return ErrBackendClosed
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != len(Hash256{}) {
			continue
		}

		var hash Hash256
		copy(hash[:], key)

		node, err := decodeNode(p.compressor, hash, iter.Value())
		if err != nil {
			continue
		}
		if err := fn(node); err != nil {
			return err
		}
	}
	return iter.Error()
}
