package nodestore

import (
	"sync"
	"sync/atomic"
)

// MemoryBackend implements an in-memory Backend for tests and ephemeral
// stores. Stored nodes are copied on the way in and out.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[Hash256]*Node

	open atomic.Bool
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[Hash256]*Node),
	}
}

// NewMemoryBackendFromConfig adapts NewMemoryBackend to BackendFactory.
func NewMemoryBackendFromConfig(*Config) (Backend, error) {
	return NewMemoryBackend(), nil
}

func copyNode(node *Node) *Node {
	c := *node
	c.Data = make(Blob, len(node.Data))
	copy(c.Data, node.Data)
	return &c
}

// Name returns the name of this backend.
func (m *MemoryBackend) Name() string {
	return "memory"
}

// Open opens the backend for use.
func (m *MemoryBackend) Open(bool) error {
	m.open.Store(true)
	return nil
}

// Close closes the backend and clears all data.
func (m *MemoryBackend) Close() error {
	if !m.open.CompareAndSwap(true, false) {
		return nil
	}

	m.mu.Lock()
	m.data = make(map[Hash256]*Node)
	m.mu.Unlock()
	return nil
}

// IsOpen returns true if the backend is currently open.
func (m *MemoryBackend) IsOpen() bool {
	return m.open.Load()
}

// Fetch retrieves a single object by key.
func (m *MemoryBackend) Fetch(key Hash256) (*Node, Status) {
	if !m.IsOpen() {
		return nil, BackendError
	}

	m.mu.RLock()
	node, found := m.data[key]
	m.mu.RUnlock()

	if !found {
		return nil, NotFound
	}
	return copyNode(node), OK
}

// Store saves a single object.
func (m *MemoryBackend) Store(node *Node) Status {
	if node == nil || !m.IsOpen() {
		return BackendError
	}

	m.mu.Lock()
	m.data[node.Hash] = copyNode(node)
	m.mu.Unlock()
	return OK
}

// StoreBatch saves multiple objects.
func (m *MemoryBackend) StoreBatch(nodes []*Node) Status {
	if !m.IsOpen() {
		return BackendError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, node := range nodes {
		if node != nil {
			m.data[node.Hash] = copyNode(node)
		}
	}
	return OK
}

// Sync is a no-op for the memory backend.
func (m *MemoryBackend) Sync() Status {
	if !m.IsOpen() {
		return BackendError
	}
	return OK
}

// ForEach iterates over all objects in the backend.
func (m *MemoryBackend) ForEach(fn func(*Node) error) error {
	if !m.IsOpen() {
		return ErrBackendClosed
	}

	m.mu.RLock()
	nodes := make([]*Node, 0, len(m.data))
	for _, node := range m.data {
		nodes = append(nodes, copyNode(node))
	}
	m.mu.RUnlock()

	for _, node := range nodes {
		if err := fn(node); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a node by its hash.
func (m *MemoryBackend) Delete(hash Hash256) {
	m.mu.Lock()
	delete(m.data, hash)
	m.mu.Unlock()
}

// Size returns the number of nodes stored in the backend.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
