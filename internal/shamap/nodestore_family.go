package shamap

import (
	"context"

	"github.com/LeJamon/goshamap/internal/storage/nodestore"
)

// NodeStoreFamily implements Family over a nodestore.Database. Prefix-format
// node bytes are stored as opaque Node.Data keyed by the node hash.
type NodeStoreFamily struct {
	db nodestore.Database
}

// NewNodeStoreFamily creates a Family backed by an opened database.
func NewNodeStoreFamily(db nodestore.Database) *NodeStoreFamily {
	return &NodeStoreFamily{db: db}
}

// NewMemoryNodeStoreFamily creates a Family over an in-memory database.
func NewMemoryNodeStoreFamily() (*NodeStoreFamily, error) {
	cfg := nodestore.DefaultConfig()
	cfg.Backend = "memory"
	cfg.Path = ""
	db, err := nodestore.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewNodeStoreFamily(db), nil
}

func storeType(t Type) nodestore.NodeType {
	if t == TypeState {
		return nodestore.NodeAccount
	}
	return nodestore.NodeTransaction
}

// Fetch retrieves a node's prefix-format bytes by hash. A miss is nil, nil.
func (f *NodeStoreFamily) Fetch(_ NodeID, hash [32]byte) ([]byte, error) {
	node, err := f.db.Fetch(context.Background(), hash)
	if err != nil || node == nil {
		return nil, err
	}
	return node.Data, nil
}

// StoreBatch persists a batch of serialized nodes.
func (f *NodeStoreFamily) StoreBatch(entries []FlushEntry) error {
	if len(entries) == 0 {
		return nil
	}

	nodes := make([]*nodestore.Node, len(entries))
	for i, e := range entries {
		nodes[i] = &nodestore.Node{
			Type:      storeType(e.MapType),
			Hash:      e.Hash,
			Data:      e.Data,
			LedgerSeq: e.LedgerSeq,
		}
	}
	return f.db.StoreBatch(context.Background(), nodes)
}

// Sweep drops expired entries from the database caches.
func (f *NodeStoreFamily) Sweep() error {
	return f.db.Sweep()
}

// Stats returns statistics of the underlying database.
func (f *NodeStoreFamily) Stats() nodestore.Statistics {
	return f.db.Stats()
}

// Close closes the underlying database.
func (f *NodeStoreFamily) Close() error {
	return f.db.Close()
}
