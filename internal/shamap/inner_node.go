package shamap

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/LeJamon/goshamap/internal/crypto/common"
	"github.com/LeJamon/goshamap/internal/protocol"
)

// InnerNode holds up to sixteen children, addressed by the next nibble of
// the key. Child hashes are always present; child pointers are populated
// lazily as the subtree is loaded.
type InnerNode struct {
	nodeHeader

	hash     [32]byte
	hashes   [BranchFactor][32]byte
	isBranch uint16

	// fullBelowGen is the FullBelowCache generation in which the whole
	// subtree was last verified present.
	fullBelowGen atomic.Uint32

	// mu guards children. Shared nodes still gain and lose resident
	// children through lazy loading, canonicalization and DropCache.
	mu       sync.RWMutex
	children [BranchFactor]TreeNode
}

func newInnerNode(cowID uint32) *InnerNode {
	n := &InnerNode{}
	n.cowID.Store(cowID)
	n.dirty.Store(true)
	return n
}

// Hash returns the node's hash; the zero hash for an empty node.
func (n *InnerNode) Hash() [32]byte {
	return n.hash
}

func (n *InnerNode) IsLeaf() bool { return false }
func (n *InnerNode) IsInner() bool { return true }
func (n *InnerNode) Type() NodeType { return NodeTypeInner }

// IsEmpty reports whether the node has no children.
func (n *InnerNode) IsEmpty() bool {
	return n.isBranch == 0
}

// BranchCount returns the number of non-empty branches.
func (n *InnerNode) BranchCount() int {
	return bits.OnesCount16(n.isBranch)
}

// HasBranch reports whether branch holds a child.
func (n *InnerNode) HasBranch(branch int) bool {
	return n.isBranch&(1<<uint(branch)) != 0
}

// ChildHash returns the hash advertised for branch, zero if empty.
func (n *InnerNode) ChildHash(branch int) [32]byte {
	return n.hashes[branch]
}

// Child returns the resident child at branch, or nil when the branch is
// empty or the child has not been loaded.
func (n *InnerNode) Child(branch int) TreeNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.children[branch]
}

// canonicalizeChild links node at branch unless another goroutine got there
// first, and returns whichever node is now resident.
func (n *InnerNode) canonicalizeChild(branch int, node TreeNode) TreeNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing := n.children[branch]; existing != nil {
		return existing
	}
	n.children[branch] = node
	return node
}

// replaceChild swaps the resident child at branch for an equivalent node
// with the same hash.
func (n *InnerNode) replaceChild(branch int, node TreeNode) {
	n.mu.Lock()
	n.children[branch] = node
	n.mu.Unlock()
}

// setChild installs child (nil clears the branch) and recomputes the hash.
// The node must be owned by the caller's map.
func (n *InnerNode) setChild(branch int, child TreeNode) {
	n.mu.Lock()
	n.children[branch] = child
	n.mu.Unlock()

	if child == nil {
		n.hashes[branch] = [32]byte{}
		n.isBranch &^= 1 << uint(branch)
	} else {
		n.hashes[branch] = child.Hash()
		n.isBranch |= 1 << uint(branch)
	}
	n.updateHash()
}

// dropChildren unlinks every resident child that has been persisted and
// returns how many were dropped.
func (n *InnerNode) dropChildren() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	dropped := 0
	for b, c := range n.children {
		if c != nil && !c.header().IsDirty() {
			n.children[b] = nil
			dropped++
		}
	}
	return dropped
}

func (n *InnerNode) updateHash() {
	if n.isBranch == 0 {
		n.hash = [32]byte{}
		return
	}
	parts := make([][]byte, 0, BranchFactor+1)
	parts = append(parts, protocol.HashPrefixInnerNode[:])
	for i := range n.hashes {
		parts = append(parts, n.hashes[i][:])
	}
	n.hash = common.Sha512Half(parts...)
}

// clone returns a dirty copy of the node stamped with cowID.
func (n *InnerNode) clone(cowID uint32) *InnerNode {
	c := newInnerNode(cowID)
	c.hash = n.hash
	c.hashes = n.hashes
	c.isBranch = n.isBranch
	n.mu.RLock()
	c.children = n.children
	n.mu.RUnlock()
	return c
}

func (n *InnerNode) isFullBelow(generation uint32) bool {
	return n.fullBelowGen.Load() == generation
}

func (n *InnerNode) setFullBelowGen(generation uint32) {
	n.fullBelowGen.Store(generation)
}

// SerializeForWire returns the compressed form for sparse nodes and the
// full sixteen-hash form otherwise.
func (n *InnerNode) SerializeForWire() []byte {
	if n.BranchCount() < compressedBranchLimit {
		out := make([]byte, 0, n.BranchCount()*33+1)
		for b := 0; b < BranchFactor; b++ {
			if n.HasBranch(b) {
				out = append(out, n.hashes[b][:]...)
				out = append(out, byte(b))
			}
		}
		return append(out, wireTypeCompressedInner)
	}
	out := make([]byte, 0, BranchFactor*32+1)
	for b := range n.hashes {
		out = append(out, n.hashes[b][:]...)
	}
	return append(out, wireTypeInner)
}

// SerializeWithPrefix returns MIN\0 followed by the sixteen child hashes.
func (n *InnerNode) SerializeWithPrefix() []byte {
	out := make([]byte, 0, protocol.HashPrefixLength+BranchFactor*32)
	out = append(out, protocol.HashPrefixInnerNode[:]...)
	for b := range n.hashes {
		out = append(out, n.hashes[b][:]...)
	}
	return out
}

func (n *InnerNode) String() string {
	return fmt.Sprintf("InnerNode(hash=%x, branches=%016b)", n.hash[:8], n.isBranch)
}
