package nodestore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/LeJamon/goshamap/internal/storage/nodestore/compression"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBBackend stores nodes in a goleveldb database keyed by hash.
type LevelDBBackend struct {
	mu         sync.RWMutex // guards db
	db         *leveldb.DB
	compressor compression.Compressor
	config     *Config

	open atomic.Bool
}

// NewLevelDBBackend creates a goleveldb backend. Open must be called before use.
func NewLevelDBBackend(config *Config) (Backend, error) {
	if config == nil {
		config = DefaultConfig()
	}

	compressor, err := compression.Get(config.Compressor)
	if err != nil {
		return nil, fmt.Errorf("failed to get compressor %s: %w", config.Compressor, err)
	}

	return &LevelDBBackend{
		compressor: compressor,
		config:     config,
	}, nil
}

// Name returns the name of this backend.
func (l *LevelDBBackend) Name() string {
	return fmt.Sprintf("leveldb(%s)", l.config.Path)
}

// Open opens the backend for use.
func (l *LevelDBBackend) Open(createIfMissing bool) error {
	if !l.open.CompareAndSwap(false, true) {
		return errors.New("backend already open")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	db, err := leveldb.OpenFile(l.config.Path, &opt.Options{
		ErrorIfMissing: !createIfMissing,
		Filter:         filter.NewBloomFilter(10),
		Compression:    opt.NoCompression,
	})
	if err != nil {
		l.open.Store(false)
		return fmt.Errorf("failed to open LevelDB at %s: %w", l.config.Path, err)
	}
	l.db = db
	return nil
}

// Close closes the backend and releases resources.
func (l *LevelDBBackend) Close() error {
	if !l.open.CompareAndSwap(true, false) {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.db != nil {
		err = l.db.Close()
		l.db = nil
	}
	return err
}

// IsOpen returns true if the backend is currently open.
func (l *LevelDBBackend) IsOpen() bool {
	return l.open.Load()
}

// Fetch retrieves a single object by key.
func (l *LevelDBBackend) Fetch(key Hash256) (*Node, Status) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return nil, BackendError
	}

	value, err := l.db.Get(key[:], nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, NotFound
		}
		return nil, BackendError
	}

	node, err := decodeNode(l.compressor, key, value)
	if err != nil {
		return nil, DataCorrupt
	}
	return node, OK
}

// Store saves a single object.
func (l *LevelDBBackend) Store(node *Node) Status {
	if node == nil {
		return BackendError
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return BackendError
	}

	value, err := encodeNode(l.compressor, node)
	if err != nil {
		return BackendError
	}
	if err := l.db.Put(node.Hash[:], value, nil); err != nil {
		return BackendError
	}
	return OK
}

// StoreBatch saves multiple objects in one leveldb batch.
func (l *LevelDBBackend) StoreBatch(nodes []*Node) Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return BackendError
	}
	if len(nodes) == 0 {
		return OK
	}

	batch := new(leveldb.Batch)
	for _, node := range nodes {
		if node == nil {
			continue
		}
		value, err := encodeNode(l.compressor, node)
		if err != nil {
			return BackendError
		}
		batch.Put(node.Hash[:], value)
	}

	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return BackendError
	}
	return OK
}

// Sync forces the journal to disk by writing an empty synced batch.
func (l *LevelDBBackend) Sync() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return BackendError
	}
	if err := l.db.Write(new(leveldb.Batch), &opt.WriteOptions{Sync: true}); err != nil {
		return BackendError
	}
	return OK
}

// ForEach iterates over all objects in the backend, skipping entries that
// cannot be decoded. fn must not close the backend.
func (l *LevelDBBackend) ForEach(fn func(*Node) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return ErrBackendClosed
	}

	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		key := iter.Key()
		if len(key) != len(Hash256{}) {
			continue
		}

		var hash Hash256
		copy(hash[:], key)

		node, err := decodeNode(l.compressor, hash, iter.Value())
		if err != nil {
			continue
		}
		if err := fn(node); err != nil {
			return err
		}
	}
	return iter.Error()
}
