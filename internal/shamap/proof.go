package shamap

import (
	"errors"
	"fmt"
)

// ErrInvalidProof is returned when a proof path does not authenticate a key.
var ErrInvalidProof = errors.New("invalid proof path")

// ProofPath proves that a key is present in a map with a given root hash.
type ProofPath struct {
	Key  [32]byte // The key being proven
	Path [][]byte // Wire-format nodes, leaf first and root last
}

// GetProofPath returns the nodes from the leaf holding key up to the root.
// It returns nil if the key is absent.
func (sm *SHAMap) GetProofPath(key [32]byte) (*ProofPath, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	stack, err := sm.walkTowardsKey(key)
	if err != nil {
		return nil, err
	}
	leaf, ok := stack[len(stack)-1].node.(*LeafNode)
	if !ok || leaf.Key() != key {
		return nil, nil
	}

	path := make([][]byte, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		path = append(path, stack[i].node.SerializeForWire())
	}
	return &ProofPath{Key: key, Path: path}, nil
}

// VerifyProofPath checks that path, as returned by GetProofPath, leads
// from rootHash to a leaf holding key.
func VerifyProofPath(rootHash [32]byte, key [32]byte, path [][]byte) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidProof)
	}
	if len(path) > MaxDepth+1 {
		return fmt.Errorf("%w: %d nodes", ErrInvalidProof, len(path))
	}

	expected := rootHash
	id := RootNodeID()
	for i := len(path) - 1; i >= 0; i-- {
		node, err := DeserializeNodeFromWire(path[i])
		if err != nil {
			return fmt.Errorf("%w: node %d: %v", ErrInvalidProof, i, err)
		}
		if node.Hash() != expected {
			return fmt.Errorf("%w: hash mismatch at depth %d", ErrInvalidProof, id.Depth)
		}

		switch n := node.(type) {
		case *InnerNode:
			if i == 0 {
				return fmt.Errorf("%w: ends at an inner node", ErrInvalidProof)
			}
			branch := id.SelectBranch(key)
			if !n.HasBranch(branch) {
				return fmt.Errorf("%w: empty branch at depth %d", ErrInvalidProof, id.Depth)
			}
			expected = n.ChildHash(branch)
			id = id.ChildNodeID(branch)
		case *LeafNode:
			if i != 0 {
				return fmt.Errorf("%w: leaf above the end of the path", ErrInvalidProof)
			}
			if n.Key() != key {
				return fmt.Errorf("%w: leaf holds another key", ErrInvalidProof)
			}
		}
	}
	return nil
}
