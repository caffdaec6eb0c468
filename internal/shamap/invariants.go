package shamap

import "fmt"

// InvariantError represents an error found during invariant checking.
type InvariantError struct {
	NodeID      NodeID
	Description string
	Err         error
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invariant violation at %s: %s: %v", e.NodeID, e.Description, e.Err)
	}
	return fmt.Sprintf("invariant violation at %s: %s", e.NodeID, e.Description)
}

// Unwrap returns the underlying error.
func (e *InvariantError) Unwrap() error {
	return e.Err
}

// Invariants performs a full consistency check of the map, loading every
// node. It verifies:
//   - every node hash matches its content
//   - every child slot hash matches the child
//   - no non-root inner node is empty or holds a lone leaf
//   - every leaf lies under the prefix of its position
//   - no dirty node has a clean parent
func (sm *SHAMap) Invariants() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.checkInner(sm.root, RootNodeID())
}

func (sm *SHAMap) checkInner(n *InnerNode, id NodeID) error {
	if recomputed := innerFromHashes(n.SerializeWithPrefix()[4:]); recomputed.Hash() != n.Hash() || recomputed.isBranch != n.isBranch {
		return &InvariantError{NodeID: id, Description: fmt.Sprintf("inner hash %x does not match content", n.Hash())}
	}
	if !id.IsRoot() {
		if n.IsEmpty() {
			return &InvariantError{NodeID: id, Description: "empty non-root inner node"}
		}
		if id.Depth >= MaxDepth {
			return &InvariantError{NodeID: id, Description: "inner node at maximum depth"}
		}
	}

	for b := 0; b < BranchFactor; b++ {
		if !n.HasBranch(b) {
			if n.Child(b) != nil {
				return &InvariantError{NodeID: id, Description: fmt.Sprintf("branch %d is empty but has a child", b)}
			}
			continue
		}
		child, err := sm.descendThrow(n, id, b)
		if err != nil {
			return &InvariantError{NodeID: id, Description: fmt.Sprintf("cannot load branch %d", b), Err: err}
		}
		if child.Hash() != n.ChildHash(b) {
			return &InvariantError{NodeID: id, Description: fmt.Sprintf("branch %d hash does not match child", b)}
		}
		if child.header().IsDirty() && !n.IsDirty() {
			return &InvariantError{NodeID: id, Description: fmt.Sprintf("clean node has dirty child %d", b)}
		}

		childID := id.ChildNodeID(b)
		switch c := child.(type) {
		case *InnerNode:
			if err := sm.checkInner(c, childID); err != nil {
				return err
			}
		case *LeafNode:
			if !id.IsRoot() && n.BranchCount() == 1 {
				return &InvariantError{NodeID: id, Description: "inner node holds a lone leaf"}
			}
			if !childID.Contains(c.Key()) {
				return &InvariantError{NodeID: childID, Description: fmt.Sprintf("leaf %x outside its position", c.Key())}
			}
			if leafHash(c.Type(), c.Item()) != c.Hash() {
				return &InvariantError{NodeID: childID, Description: "leaf hash does not match content"}
			}
		}
	}
	return nil
}
