package shamap

// flushItem is a dirty node selected for writing, with the slot that
// references it so the slot can be pointed at the canonical instance.
type flushItem struct {
	node   TreeNode
	id     NodeID
	parent *InnerNode
	branch int
}

// FlushDirty writes up to max dirty nodes to the backing store in a single
// batch and returns how many were written. Nodes are taken children
// first, so every node still dirty afterwards only has dirty ancestors.
// A max of zero or less writes every dirty node.
func (sm *SHAMap) FlushDirty(max int) (int, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.family == nil {
		return 0, ErrNotBacked
	}
	if !sm.root.IsDirty() {
		return 0, nil
	}

	var items []flushItem
	sm.collectDirty(sm.root, RootNodeID(), nil, 0, max, &items)

	entries := make([]FlushEntry, 0, len(items))
	for _, it := range items {
		// The empty root has no content to store.
		if it.node.Hash() == ([32]byte{}) {
			continue
		}
		entries = append(entries, FlushEntry{
			NodeID:    it.id,
			Hash:      it.node.Hash(),
			Data:      it.node.SerializeWithPrefix(),
			NodeType:  it.node.Type(),
			MapType:   sm.mapType,
			LedgerSeq: sm.ledgerSeq,
		})
	}
	if len(entries) > 0 {
		if err := sm.family.StoreBatch(entries); err != nil {
			return 0, err
		}
	}

	for _, it := range items {
		it.node.header().markClean()
		if it.parent == nil {
			continue
		}
		if canon := sm.canonicalize(it.node); canon != it.node {
			it.parent.replaceChild(it.branch, canon)
		}
	}

	sm.log.WithField("nodes", len(entries)).Debug("flushed dirty nodes")
	return len(items), nil
}

// collectDirty appends dirty nodes below and including node in post-order.
// It returns true once max nodes have been collected.
func (sm *SHAMap) collectDirty(node *InnerNode, id NodeID, parent *InnerNode, branch, max int, out *[]flushItem) bool {
	for b := 0; b < BranchFactor; b++ {
		child := node.Child(b)
		if child == nil || !child.header().IsDirty() {
			continue
		}
		if inner, ok := child.(*InnerNode); ok {
			if sm.collectDirty(inner, id.ChildNodeID(b), node, b, max, out) {
				return true
			}
			continue
		}
		*out = append(*out, flushItem{node: child, id: id.ChildNodeID(b), parent: node, branch: b})
		if max > 0 && len(*out) >= max {
			return true
		}
	}
	*out = append(*out, flushItem{node: node, id: id, parent: parent, branch: branch})
	return max > 0 && len(*out) >= max
}

// DirtyCount returns the number of resident nodes not yet written.
func (sm *SHAMap) DirtyCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var count func(n *InnerNode) int
	count = func(n *InnerNode) int {
		if !n.IsDirty() {
			return 0
		}
		total := 1
		for b := 0; b < BranchFactor; b++ {
			switch c := n.Child(b).(type) {
			case *InnerNode:
				total += count(c)
			case *LeafNode:
				if c.IsDirty() {
					total++
				}
			}
		}
		return total
	}
	return count(sm.root)
}

// DropCache releases resident nodes that are already persisted. The map's
// content and hash are unaffected; released nodes are reloaded from the
// backing store on demand. Unbacked maps keep everything.
func (sm *SHAMap) DropCache() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.family == nil {
		return 0
	}
	return dropResident(sm.root)
}

func dropResident(n *InnerNode) int {
	dropped := 0
	for b := 0; b < BranchFactor; b++ {
		if inner, ok := n.Child(b).(*InnerNode); ok && inner.IsDirty() {
			dropped += dropResident(inner)
		}
	}
	return dropped + n.dropChildren()
}
