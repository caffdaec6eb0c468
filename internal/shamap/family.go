package shamap

//go:generate mockgen -source=family.go -destination=family_mock.go -package=shamap

// Family provides access to the persistent store shared by a group of
// backed SHAMap instances.
//
// Implementations must not call back into the SHAMap that issued a Fetch:
// the map holds its lock for the duration of the call.
type Family interface {
	// Fetch retrieves a node's serialized data (prefix format) by its hash.
	// Returns nil, nil if the node is not found.
	Fetch(id NodeID, hash [32]byte) ([]byte, error)

	// StoreBatch persists a batch of serialized nodes.
	StoreBatch(entries []FlushEntry) error
}

// FlushEntry is a node written to a Family, in prefix format.
type FlushEntry struct {
	NodeID    NodeID
	Hash      [32]byte
	Data      []byte
	NodeType  NodeType
	MapType   Type
	LedgerSeq uint32
}
