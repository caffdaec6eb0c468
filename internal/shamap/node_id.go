package shamap

import (
	"encoding/hex"
	"fmt"
)

// MaxDepth is the deepest level of the tree: one nibble per level of a 256-bit key.
const MaxDepth = 64

// NodeID represents a node's position in the SHAMap: its depth and the
// key prefix consumed to reach it. ID is always masked to Depth nibbles.
type NodeID struct {
	Depth uint8    // Number of nibbles of ID that are relevant
	ID    [32]byte // Key prefix; nibbles past Depth are zero
}

// RootNodeID returns the position of the root node.
func RootNodeID() NodeID {
	return NodeID{}
}

// NewNodeID creates the NodeID at depth on the path to key.
func NewNodeID(depth uint8, key [32]byte) NodeID {
	if depth > MaxDepth {
		panic(fmt.Sprintf("node depth %d exceeds %d", depth, MaxDepth))
	}
	return NodeID{Depth: depth, ID: maskKey(key, depth)}
}

func maskKey(key [32]byte, depth uint8) [32]byte {
	var id [32]byte
	full := int(depth / 2)
	copy(id[:full], key[:full])
	if depth%2 == 1 {
		id[full] = key[full] & 0xF0
	}
	return id
}

// nibbleAt returns the branch taken from depth towards key.
func nibbleAt(key [32]byte, depth uint8) int {
	b := key[depth/2]
	if depth%2 == 0 {
		return int(b >> 4)
	}
	return int(b & 0x0F)
}

// IsRoot returns true if this node is the root.
func (n NodeID) IsRoot() bool {
	return n.Depth == 0
}

// SelectBranch returns which branch of this node leads towards key.
func (n NodeID) SelectBranch(key [32]byte) int {
	if n.Depth >= MaxDepth {
		panic("select branch below maximum depth")
	}
	return nibbleAt(key, n.Depth)
}

// ChildNodeID returns the child node ID for the given branch (0–15).
func (n NodeID) ChildNodeID(branch int) NodeID {
	if branch < 0 || branch > 15 {
		panic("branch index must be between 0 and 15")
	}
	if n.Depth >= MaxDepth {
		panic("child of a node at maximum depth")
	}
	child := NodeID{Depth: n.Depth + 1, ID: n.ID}
	idx := n.Depth / 2
	if n.Depth%2 == 0 {
		child.ID[idx] |= byte(branch) << 4
	} else {
		child.ID[idx] |= byte(branch)
	}
	return child
}

// Contains reports whether key lies in the subtree rooted at this position.
func (n NodeID) Contains(key [32]byte) bool {
	return maskKey(key, n.Depth) == n.ID
}

// Equal compares two NodeID values for equality.
func (n NodeID) Equal(other NodeID) bool {
	return n.Depth == other.Depth && n.ID == other.ID
}

// RawBytes returns the wire format: 32-byte ID + 1-byte depth
func (n NodeID) RawBytes() []byte {
	out := make([]byte, 33)
	copy(out[:32], n.ID[:])
	out[32] = n.Depth
	return out
}

// NodeIDFromRaw parses a raw 33-byte NodeID, rejecting depths past
// MaxDepth and IDs with bits set below their depth.
func NodeIDFromRaw(data []byte) (NodeID, error) {
	if len(data) != 33 {
		return NodeID{}, fmt.Errorf("%w: node id length %d", ErrInvalidNodeData, len(data))
	}
	depth := data[32]
	if depth > MaxDepth {
		return NodeID{}, fmt.Errorf("%w: node id depth %d", ErrInvalidNodeData, depth)
	}
	var id [32]byte
	copy(id[:], data[:32])
	if maskKey(id, depth) != id {
		return NodeID{}, fmt.Errorf("%w: node id not masked to depth %d", ErrInvalidNodeData, depth)
	}
	return NodeID{Depth: depth, ID: id}, nil
}

// String returns a human-readable form of the node ID.
func (n NodeID) String() string {
	if n.IsRoot() {
		return "NodeID(root)"
	}
	return fmt.Sprintf("NodeID(%d:%s)", n.Depth, hex.EncodeToString(n.ID[:(n.Depth+1)/2]))
}
