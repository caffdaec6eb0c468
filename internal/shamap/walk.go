package shamap

import (
	"github.com/LeJamon/goshamap/internal/crypto/common"
)

// pathEntry is one step of a root-to-leaf walk.
type pathEntry struct {
	node TreeNode
	id   NodeID
}

// fetchNode resolves a node that is not resident by consulting, in order,
// the tree node cache, the backing store and the sync filter. It returns
// nil, nil when none of them has it.
func (sm *SHAMap) fetchNode(id NodeID, hash [32]byte, filter SyncFilter) (TreeNode, error) {
	if sm.treeCache != nil {
		if node, ok := sm.treeCache.Get(hash); ok {
			return node, nil
		}
	}

	if sm.family != nil {
		data, err := sm.family.Fetch(id, hash)
		if err != nil {
			return nil, err
		}
		if data != nil {
			node, err := DeserializeNodeFromPrefix(data)
			if err != nil || node.Hash() != hash {
				corrupt := &CorruptNodeError{NodeID: id, Expected: hash}
				if node != nil {
					corrupt.Actual = node.Hash()
				}
				sm.state = StateInvalid
				sm.log.WithError(err).WithField("node", id.String()).Errorf("backing store returned corrupt node %x", hash[:8])
				return nil, corrupt
			}
			return sm.canonicalize(node), nil
		}
	}

	if filter != nil {
		if data, ok := filter.GetNode(hash); ok {
			node, err := DeserializeNodeFromPrefix(data)
			if err != nil || node.Hash() != hash {
				sm.log.WithField("node", id.String()).Warnf("sync filter returned bad node %x", hash[:8])
				return nil, nil
			}
			filter.GotNode(true, hash, sm.ledgerSeq, data, node.Type())
			if err := sm.storeSynced(id, node); err != nil {
				return nil, err
			}
			if sm.family != nil {
				return sm.canonicalize(node), nil
			}
			return node, nil
		}
	}
	return nil, nil
}

// canonicalize returns the shared instance of a clean node.
func (sm *SHAMap) canonicalize(node TreeNode) TreeNode {
	if sm.treeCache == nil {
		return node
	}
	return sm.treeCache.Canonicalize(node)
}

// storeSynced persists a node obtained through sync when the map is backed.
func (sm *SHAMap) storeSynced(id NodeID, node TreeNode) error {
	if sm.family == nil {
		return nil
	}
	entry := FlushEntry{
		NodeID:    id,
		Hash:      node.Hash(),
		Data:      node.SerializeWithPrefix(),
		NodeType:  node.Type(),
		MapType:   sm.mapType,
		LedgerSeq: sm.ledgerSeq,
	}
	return sm.family.StoreBatch([]FlushEntry{entry})
}

// descend returns the child at branch, loading it if needed. It returns
// nil, nil if the branch is empty or the child cannot be found.
func (sm *SHAMap) descend(parent *InnerNode, parentID NodeID, branch int, filter SyncFilter) (TreeNode, error) {
	if child := parent.Child(branch); child != nil {
		return child, nil
	}
	if !parent.HasBranch(branch) {
		return nil, nil
	}
	node, err := sm.fetchNode(parentID.ChildNodeID(branch), parent.ChildHash(branch), filter)
	if err != nil || node == nil {
		return nil, err
	}
	return parent.canonicalizeChild(branch, node), nil
}

// descendThrow is descend for paths that must be complete: a child that
// cannot be found is reported as a MissingNodeError.
func (sm *SHAMap) descendThrow(parent *InnerNode, parentID NodeID, branch int) (TreeNode, error) {
	child, err := sm.descend(parent, parentID, branch, nil)
	if err != nil {
		return nil, err
	}
	if child == nil && parent.HasBranch(branch) {
		return nil, &MissingNodeError{NodeID: parentID.ChildNodeID(branch), Hash: parent.ChildHash(branch)}
	}
	return child, nil
}

// walkTowardsKey returns the path from the root to the node where key
// lives or would be inserted: a leaf, or an inner node whose branch for
// key is empty.
func (sm *SHAMap) walkTowardsKey(key [32]byte) ([]pathEntry, error) {
	stack := make([]pathEntry, 0, 8)
	var node TreeNode = sm.root
	id := RootNodeID()
	for {
		stack = append(stack, pathEntry{node: node, id: id})
		inner, ok := node.(*InnerNode)
		if !ok {
			return stack, nil
		}
		branch := id.SelectBranch(key)
		if !inner.HasBranch(branch) {
			return stack, nil
		}
		child, err := sm.descendThrow(inner, id, branch)
		if err != nil {
			return nil, err
		}
		node, id = child, id.ChildNodeID(branch)
	}
}

// findLeaf returns the leaf holding key, or nil if the key is absent.
func (sm *SHAMap) findLeaf(key [32]byte) (*LeafNode, error) {
	var node TreeNode = sm.root
	id := RootNodeID()
	for {
		switch n := node.(type) {
		case *LeafNode:
			if n.Key() == key {
				return n, nil
			}
			return nil, nil
		case *InnerNode:
			branch := id.SelectBranch(key)
			if !n.HasBranch(branch) {
				return nil, nil
			}
			child, err := sm.descendThrow(n, id, branch)
			if err != nil {
				return nil, err
			}
			node, id = child, id.ChildNodeID(branch)
		}
	}
}

// verifyNodeHash reports whether data in prefix format hashes to hash.
func verifyNodeHash(hash [32]byte, data []byte) bool {
	return common.Sha512Half(data) == hash
}
