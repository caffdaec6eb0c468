package shamap

import "sync/atomic"

// BranchFactor is the number of children of an inner node.
const BranchFactor = 16

// Wire type tags, appended as the last byte of a serialized node.
const (
	wireTypeTransaction         byte = 0
	wireTypeAccountState        byte = 1
	wireTypeInner               byte = 2
	wireTypeCompressedInner     byte = 3
	wireTypeTransactionWithMeta byte = 4
)

// compressedBranchLimit is the branch count below which inner nodes are
// sent in the compressed (hash, branch) form.
const compressedBranchLimit = 12

// TreeNode is a node of the tree: either an *InnerNode or a *LeafNode.
type TreeNode interface {
	// Hash returns the cached content hash of the node.
	Hash() [32]byte
	IsLeaf() bool
	IsInner() bool
	Type() NodeType

	// SerializeForWire returns the peer wire representation.
	SerializeForWire() []byte

	// SerializeWithPrefix returns the storage representation. Its
	// Sha512Half is the node hash.
	SerializeWithPrefix() []byte

	String() string

	header() *nodeHeader
}

// nodeHeader carries the bookkeeping shared by both node kinds.
//
// cowID is the copy-on-write stamp of the map that owns the node. A node
// whose cowID matches a map's cowID is reachable from that map only and may
// be changed in place; every other node is shared and must be cloned first.
// Zero means the node is clean and shareable by any map.
type nodeHeader struct {
	cowID atomic.Uint32
	dirty atomic.Bool
}

func (h *nodeHeader) header() *nodeHeader {
	return h
}

// IsDirty reports whether the node has been created or changed since it
// was last written to the backing store.
func (h *nodeHeader) IsDirty() bool {
	return h.dirty.Load()
}

// markClean records that the node has been persisted and can be shared.
func (h *nodeHeader) markClean() {
	h.dirty.Store(false)
	h.cowID.Store(0)
}

func (h *nodeHeader) ownedBy(cowID uint32) bool {
	return cowID != 0 && h.cowID.Load() == cowID
}
