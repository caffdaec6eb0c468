package shamap

import (
	"fmt"

	"github.com/LeJamon/goshamap/internal/protocol"
)

// DeserializeNodeFromWire parses a node in peer wire format. The result is
// clean, unowned, and carries the hash computed from its content.
func DeserializeNodeFromWire(data []byte) (TreeNode, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty wire node", ErrInvalidNodeData)
	}
	body := data[:len(data)-1]

	switch tag := data[len(data)-1]; tag {
	case wireTypeTransaction:
		return leafFromBody(NodeTypeTransactionNoMeta, body)
	case wireTypeTransactionWithMeta:
		return leafFromBody(NodeTypeTransactionWithMeta, body)
	case wireTypeAccountState:
		return leafFromBody(NodeTypeAccountState, body)
	case wireTypeInner:
		if len(body) != BranchFactor*32 {
			return nil, fmt.Errorf("%w: full inner node length %d", ErrInvalidNodeData, len(body))
		}
		return innerFromHashes(body), nil
	case wireTypeCompressedInner:
		if len(body)%33 != 0 || len(body) > BranchFactor*33 {
			return nil, fmt.Errorf("%w: compressed inner node length %d", ErrInvalidNodeData, len(body))
		}
		n := &InnerNode{}
		for pos := 0; pos < len(body); pos += 33 {
			branch := int(body[pos+32])
			if branch >= BranchFactor {
				return nil, fmt.Errorf("%w: compressed inner branch %d", ErrInvalidNodeData, branch)
			}
			copy(n.hashes[branch][:], body[pos:pos+32])
		}
		n.rebuildBranches()
		return n, nil
	default:
		return nil, fmt.Errorf("%w: wire tag %d", ErrUnknownNodeType, tag)
	}
}

// DeserializeNodeFromPrefix parses a node in storage format.
func DeserializeNodeFromPrefix(data []byte) (TreeNode, error) {
	if len(data) < protocol.HashPrefixLength {
		return nil, fmt.Errorf("%w: prefixed node length %d", ErrInvalidNodeData, len(data))
	}
	var prefix [4]byte
	copy(prefix[:], data[:protocol.HashPrefixLength])
	body := data[protocol.HashPrefixLength:]

	switch prefix {
	case protocol.HashPrefixInnerNode:
		if len(body) != BranchFactor*32 {
			return nil, fmt.Errorf("%w: inner node length %d", ErrInvalidNodeData, len(body))
		}
		return innerFromHashes(body), nil
	case protocol.HashPrefixLeafNode:
		return leafFromBody(NodeTypeAccountState, body)
	case protocol.HashPrefixTxNode:
		return leafFromBody(NodeTypeTransactionWithMeta, body)
	case protocol.HashPrefixTransactionID:
		return leafFromBody(NodeTypeTransactionNoMeta, body)
	default:
		return nil, fmt.Errorf("%w: prefix %x", ErrUnknownNodeType, prefix)
	}
}

// leafFromBody parses data ‖ key.
func leafFromBody(nodeType NodeType, body []byte) (*LeafNode, error) {
	if len(body) < 32 {
		return nil, fmt.Errorf("%w: short %s leaf (%d bytes)", ErrInvalidNodeData, nodeType, len(body))
	}
	var key [32]byte
	copy(key[:], body[len(body)-32:])
	item := NewItem(key, body[:len(body)-32])

	l := &LeafNode{item: item, nodeType: nodeType}
	l.hash = leafHash(nodeType, item)
	return l, nil
}

func innerFromHashes(body []byte) *InnerNode {
	n := &InnerNode{}
	for b := 0; b < BranchFactor; b++ {
		copy(n.hashes[b][:], body[b*32:(b+1)*32])
	}
	n.rebuildBranches()
	return n
}

// rebuildBranches derives the branch mask from the child hashes and
// recomputes the node hash.
func (n *InnerNode) rebuildBranches() {
	n.isBranch = 0
	for b := range n.hashes {
		if n.hashes[b] != ([32]byte{}) {
			n.isBranch |= 1 << uint(b)
		}
	}
	n.updateHash()
}
