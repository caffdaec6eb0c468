// Package nodestore provides persistent content-addressed storage for tree
// nodes. Every node is keyed by the SHA-512/256 half digest of its stored
// bytes, which makes the store self-verifying.
package nodestore

import (
	"context"
	"fmt"

	"github.com/LeJamon/goshamap/internal/crypto/common"
)

// Hash256 is the 32-byte key of a stored node.
type Hash256 = [32]byte

// Blob is an opaque byte payload.
type Blob = []byte

// NodeType represents the kind of tree a stored node belongs to.
type NodeType uint32

const (
	// NodeUnknown represents an unknown or invalid node type
	NodeUnknown NodeType = 0
	// NodeAccount represents a node of an account state tree
	NodeAccount NodeType = 3
	// NodeTransaction represents a node of a transaction tree
	NodeTransaction NodeType = 4
	// NodeDummy represents a missing object (used for negative caching)
	NodeDummy NodeType = 512
)

// String returns the string representation of the NodeType.
func (nt NodeType) String() string {
	switch nt {
	case NodeUnknown:
		return "NodeUnknown"
	case NodeAccount:
		return "NodeAccount"
	case NodeTransaction:
		return "NodeTransaction"
	case NodeDummy:
		return "NodeDummy"
	default:
		return fmt.Sprintf("NodeType(%d)", uint32(nt))
	}
}

// Node represents a stored object with its metadata.
type Node struct {
	Type      NodeType // Kind of tree the node belongs to
	Hash      Hash256  // Content hash (serves as the key)
	Data      Blob     // Serialized node
	LedgerSeq uint32   // Optional ledger sequence number
}

// NewNode creates a new Node with the specified type and data.
// The hash is computed from the data.
func NewNode(nodeType NodeType, data Blob) *Node {
	return &Node{
		Type: nodeType,
		Hash: common.Sha512Half(data),
		Data: data,
	}
}

// Size returns the size of the node's data in bytes.
func (n *Node) Size() int {
	return len(n.Data)
}

// IsValid returns true if the node has data and its hash matches.
func (n *Node) IsValid() bool {
	if n == nil {
		return false
	}
	if n.Type == NodeUnknown || n.Type == NodeDummy {
		return false
	}
	if len(n.Data) == 0 {
		return false
	}
	return n.Hash == common.Sha512Half(n.Data)
}

// Database defines the main interface for the NodeStore.
type Database interface {
	// Store persists a node to the store.
	Store(ctx context.Context, node *Node) error

	// Fetch retrieves a node by its hash. A missing node is nil, nil.
	Fetch(ctx context.Context, hash Hash256) (*Node, error)

	// FetchBatch retrieves multiple nodes; missing entries are nil.
	FetchBatch(ctx context.Context, hashes []Hash256) ([]*Node, error)

	// StoreBatch stores multiple nodes in a single write.
	StoreBatch(ctx context.Context, nodes []*Node) error

	// Sweep removes expired entries from caches.
	Sweep() error

	// Stats returns performance statistics.
	Stats() Statistics

	// Close gracefully closes the database and releases resources.
	Close() error

	// Sync forces any pending writes to be flushed to disk.
	Sync() error
}

// Statistics holds performance metrics for the NodeStore.
type Statistics struct {
	Reads        uint64
	CacheHits    uint64
	CacheMisses  uint64
	NegativeHits uint64
	ReadBytes    uint64
	Writes       uint64
	WriteBytes   uint64
	CacheSize    uint64
	CacheMaxSize uint64
	NegativeSize uint64
	BackendName  string
}

// String returns a formatted string representation of the statistics.
func (s Statistics) String() string {
	cacheHitRate := float64(0)
	if s.Reads > 0 {
		cacheHitRate = float64(s.CacheHits) / float64(s.Reads) * 100
	}

	return fmt.Sprintf(`NodeStore Statistics:
  Backend: %s
  Reads: %d (%.2f%% cache hit rate, %d known missing)
  Cache: %d/%d items, %d negative
  Writes: %d
  Read Bytes: %d
  Write Bytes: %d`,
		s.BackendName,
		s.Reads, cacheHitRate, s.NegativeHits,
		s.CacheSize, s.CacheMaxSize, s.NegativeSize,
		s.Writes,
		s.ReadBytes,
		s.WriteBytes)
}

// Status represents the status of a backend operation.
type Status int

const (
	// OK indicates the operation was successful
	OK Status = iota
	// NotFound indicates the requested object was not found
	NotFound
	// DataCorrupt indicates the stored data is corrupted
	DataCorrupt
	// BackendError indicates an error in the storage backend
	BackendError
	// Unknown indicates an unknown error occurred
	Unknown
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case NotFound:
		return "NotFound"
	case DataCorrupt:
		return "DataCorrupt"
	case BackendError:
		return "BackendError"
	case Unknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Err converts a non-OK status into the matching sentinel error.
func (s Status) Err() error {
	switch s {
	case OK:
		return nil
	case NotFound:
		return ErrNotFound
	case DataCorrupt:
		return ErrDataCorrupt
	case BackendError:
		return ErrBackendFailure
	default:
		return fmt.Errorf("nodestore: %s", s)
	}
}

// Backend defines the interface for storage backends.
type Backend interface {
	// Name returns a human-readable name for this backend.
	Name() string

	// Open opens the backend for use.
	Open(createIfMissing bool) error

	// Close closes the backend and releases resources.
	Close() error

	// IsOpen returns true if the backend is currently open.
	IsOpen() bool

	// Fetch retrieves a single object by key.
	Fetch(key Hash256) (*Node, Status)

	// Store saves a single object.
	Store(node *Node) Status

	// StoreBatch saves multiple objects atomically.
	StoreBatch(nodes []*Node) Status

	// Sync forces pending writes to be flushed.
	Sync() Status

	// ForEach iterates over all decodable objects in the backend.
	ForEach(fn func(*Node) error) error
}
