package shamap

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// MemoryFamily keeps prefix-format nodes in a map keyed by hash. It
// counts fetches so tests can tell resident nodes from loaded ones.
type MemoryFamily struct {
	mu    sync.RWMutex
	store map[[32]byte][]byte

	fetches atomic.Uint64
}

// NewMemoryFamily creates a new in-memory Family.
func NewMemoryFamily() *MemoryFamily {
	return &MemoryFamily{
		store: make(map[[32]byte][]byte),
	}
}

func (f *MemoryFamily) Fetch(_ NodeID, hash [32]byte) ([]byte, error) {
	f.fetches.Add(1)
	f.mu.RLock()
	defer f.mu.RUnlock()
	if data, ok := f.store[hash]; ok {
		return bytes.Clone(data), nil
	}
	return nil, nil
}

func (f *MemoryFamily) StoreBatch(entries []FlushEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		f.store[e.Hash] = bytes.Clone(e.Data)
	}
	return nil
}

// Put stores raw prefix-format data under hash without verification.
func (f *MemoryFamily) Put(hash [32]byte, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[hash] = bytes.Clone(data)
}

// Delete removes a node.
func (f *MemoryFamily) Delete(hash [32]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.store, hash)
}

// Has reports whether a node is stored.
func (f *MemoryFamily) Has(hash [32]byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.store[hash]
	return ok
}

// Len returns the number of stored nodes.
func (f *MemoryFamily) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.store)
}

// Fetches returns how many Fetch calls have been served.
func (f *MemoryFamily) Fetches() uint64 {
	return f.fetches.Load()
}
