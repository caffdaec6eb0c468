package shamap

import (
	"fmt"
)

// SyncFilter lets the caller take part in synchronization: it can supply
// nodes it already has, and is told about every node the map accepts.
type SyncFilter interface {
	// GetNode returns the node with the given hash in prefix format.
	GetNode(hash [32]byte) ([]byte, bool)

	// GotNode is called for every verified node added to the map.
	// fromFilter is true when the node came from GetNode.
	GotNode(fromFilter bool, hash [32]byte, ledgerSeq uint32, data []byte, nodeType NodeType)
}

// MissingNode is a position whose node the map needs, and the hash its
// parent advertises for it.
type MissingNode struct {
	NodeID NodeID
	Hash   [32]byte
}

func (m MissingNode) String() string {
	return fmt.Sprintf("%s hash=%x", m.NodeID, m.Hash[:8])
}

// AddNodeStatus summarizes an AddNodeResult.
type AddNodeStatus int

const (
	AddNodeUseful AddNodeStatus = iota
	AddNodeDuplicate
	AddNodeInvalid
)

func (s AddNodeStatus) String() string {
	switch s {
	case AddNodeUseful:
		return "useful"
	case AddNodeDuplicate:
		return "duplicate"
	case AddNodeInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// AddNodeResult counts the outcome of offering nodes to a syncing map.
type AddNodeResult struct {
	Good      int
	Bad       int
	Duplicate int
}

func usefulNode() AddNodeResult    { return AddNodeResult{Good: 1} }
func duplicateNode() AddNodeResult { return AddNodeResult{Duplicate: 1} }
func invalidNode() AddNodeResult   { return AddNodeResult{Bad: 1} }

// Status returns invalid if any node was bad, useful if any was good, and
// duplicate otherwise.
func (r AddNodeResult) Status() AddNodeStatus {
	switch {
	case r.Bad > 0:
		return AddNodeInvalid
	case r.Good > 0:
		return AddNodeUseful
	default:
		return AddNodeDuplicate
	}
}

func (r AddNodeResult) IsInvalid() bool { return r.Bad > 0 }
func (r AddNodeResult) IsUseful() bool  { return r.Good > 0 }

// Combine adds the counts of other to r.
func (r *AddNodeResult) Combine(other AddNodeResult) {
	r.Good += other.Good
	r.Bad += other.Bad
	r.Duplicate += other.Duplicate
}

func (r AddNodeResult) String() string {
	return fmt.Sprintf("%s(good=%d, bad=%d, dup=%d)", r.Status(), r.Good, r.Bad, r.Duplicate)
}

// AddRootNode installs the root of a syncing map from its wire form,
// provided it hashes to hash.
func (sm *SHAMap) AddRootNode(hash [32]byte, data []byte, filter SyncFilter) (AddNodeResult, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateInvalid {
		return AddNodeResult{}, fmt.Errorf("%w: map is invalid", ErrInvalidState)
	}
	if sm.root.Hash() != ([32]byte{}) {
		sm.log.Trace("got root node, already have one")
		if sm.root.Hash() != hash {
			return invalidNode(), nil
		}
		return duplicateNode(), nil
	}

	node, err := DeserializeNodeFromWire(data)
	if err != nil {
		sm.log.WithError(err).Warn("unparsable root node")
		return invalidNode(), nil
	}
	root, ok := node.(*InnerNode)
	if !ok || root.Hash() != hash {
		sm.log.Warnf("root node does not match hash %x", hash[:8])
		return invalidNode(), nil
	}

	if err := sm.storeSynced(RootNodeID(), root); err != nil {
		return AddNodeResult{}, err
	}
	sm.root = root
	if filter != nil {
		filter.GotNode(false, hash, sm.ledgerSeq, root.SerializeWithPrefix(), NodeTypeInner)
	}
	return usefulNode(), nil
}

// FetchRoot installs the root with the given hash from the backing store
// or filter. It reports whether the root is now in place; a zero hash is
// the empty map and always succeeds.
func (sm *SHAMap) FetchRoot(hash [32]byte, filter SyncFilter) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if hash == sm.root.Hash() {
		return true, nil
	}
	if hash == ([32]byte{}) {
		sm.root = newInnerNode(sm.cowID)
		return true, nil
	}

	node, err := sm.fetchNode(RootNodeID(), hash, filter)
	if err != nil || node == nil {
		return false, err
	}
	root, ok := node.(*InnerNode)
	if !ok {
		return false, fmt.Errorf("%w: root %x is a leaf", ErrInvalidNodeData, hash[:8])
	}
	sm.root = root
	return true, nil
}

// missingWalk carries the state of one GetMissingNodes call.
type missingWalk struct {
	max        int
	filter     SyncFilter
	generation uint32
	useCache   bool
	missing    []MissingNode
}

func (w *missingWalk) done() bool {
	return w.max > 0 && len(w.missing) >= w.max
}

// GetMissingNodes returns up to max positions whose nodes are needed to
// complete the map, in depth-first order. Nodes available from the
// backing store or filter are linked in rather than reported. When
// nothing is missing the map leaves the synching state. A max of zero or
// less means no limit.
func (sm *SHAMap) GetMissingNodes(max int, filter SyncFilter) ([]MissingNode, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateInvalid {
		return nil, fmt.Errorf("%w: map is invalid", ErrInvalidState)
	}

	w := &missingWalk{max: max, filter: filter}
	if sm.fullBelow != nil {
		w.generation = sm.fullBelow.Generation()
		w.useCache = sm.family != nil
	}

	if w.generation != 0 && sm.root.isFullBelow(w.generation) {
		sm.clearSynchingLocked()
		return nil, nil
	}

	full, err := sm.gatherMissing(sm.root, RootNodeID(), w)
	if err != nil {
		return nil, err
	}
	if full {
		sm.clearSynchingLocked()
	}
	return w.missing, nil
}

// gatherMissing walks the subtree at n and reports whether it is complete.
func (sm *SHAMap) gatherMissing(n *InnerNode, id NodeID, w *missingWalk) (bool, error) {
	full := true
	for b := 0; b < BranchFactor; b++ {
		if !n.HasBranch(b) {
			continue
		}
		hash := n.ChildHash(b)
		if w.useCache && sm.fullBelow.TouchIfExists(hash) {
			continue
		}

		childID := id.ChildNodeID(b)
		child := n.Child(b)
		if child == nil {
			fetched, err := sm.fetchNode(childID, hash, w.filter)
			if err != nil {
				return false, err
			}
			if fetched == nil {
				w.missing = append(w.missing, MissingNode{NodeID: childID, Hash: hash})
				full = false
				if w.done() {
					return false, nil
				}
				continue
			}
			child = n.canonicalizeChild(b, fetched)
		}

		inner, ok := child.(*InnerNode)
		if !ok || (w.generation != 0 && inner.isFullBelow(w.generation)) {
			continue
		}
		childFull, err := sm.gatherMissing(inner, childID, w)
		if err != nil {
			return false, err
		}
		if !childFull {
			full = false
		}
		if w.done() {
			return false, nil
		}
	}

	if full && w.generation != 0 {
		n.setFullBelowGen(w.generation)
		if w.useCache {
			sm.fullBelow.Insert(n.Hash())
		}
	}
	return full, nil
}

// AddKnownNode offers the node at id, in wire format. It is accepted only
// if it hashes to the value its already-verified parent advertises.
func (sm *SHAMap) AddKnownNode(id NodeID, data []byte, filter SyncFilter) (AddNodeResult, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateInvalid {
		return AddNodeResult{}, fmt.Errorf("%w: map is invalid", ErrInvalidState)
	}
	if id.IsRoot() {
		sm.log.Trace("got root node, already have one")
		return duplicateNode(), nil
	}

	var generation uint32
	if sm.fullBelow != nil {
		generation = sm.fullBelow.Generation()
	}

	inner := sm.root
	innerID := RootNodeID()
	for innerID.Depth < id.Depth {
		if generation != 0 && inner.isFullBelow(generation) {
			return duplicateNode(), nil
		}
		branch := innerID.SelectBranch(id.ID)
		if !inner.HasBranch(branch) {
			sm.log.WithField("node", id.String()).Warn("add known node for empty branch")
			return invalidNode(), nil
		}
		childHash := inner.ChildHash(branch)
		if sm.family != nil && sm.fullBelow != nil && sm.fullBelow.TouchIfExists(childHash) {
			return duplicateNode(), nil
		}

		childID := innerID.ChildNodeID(branch)
		child, err := sm.descend(inner, innerID, branch, filter)
		if err != nil {
			return AddNodeResult{}, err
		}
		if child == nil {
			return sm.hookNode(inner, branch, childID, id, childHash, data, filter)
		}

		next, ok := child.(*InnerNode)
		if !ok {
			// A leaf already occupies this position or an ancestor of it.
			return duplicateNode(), nil
		}
		inner, innerID = next, childID
	}
	return duplicateNode(), nil
}

// hookNode verifies and links a node at the first non-resident position
// on the path to wanted.
func (sm *SHAMap) hookNode(parent *InnerNode, branch int, at, wanted NodeID, hash [32]byte, data []byte, filter SyncFilter) (AddNodeResult, error) {
	if !at.Equal(wanted) {
		// Either the node is broken or we did not ask for it yet.
		sm.log.WithField("node", wanted.String()).Warnf("unable to hook node, stuck at %s", at)
		return invalidNode(), nil
	}

	node, err := DeserializeNodeFromWire(data)
	if err != nil {
		sm.log.WithError(err).WithField("node", wanted.String()).Warn("unparsable node received")
		return invalidNode(), nil
	}
	if node.Hash() != hash {
		sm.log.WithField("node", wanted.String()).Warnf("corrupt node received: expected %x got %x", hash[:8], node.Hash())
		return invalidNode(), nil
	}
	if node.IsInner() && at.Depth >= MaxDepth {
		return invalidNode(), nil
	}
	if leaf, ok := node.(*LeafNode); ok && !at.Contains(leaf.Key()) {
		sm.log.WithField("node", wanted.String()).Warn("leaf key does not belong at its position")
		return invalidNode(), nil
	}

	if err := sm.storeSynced(at, node); err != nil {
		return AddNodeResult{}, err
	}
	if sm.family != nil {
		node = sm.canonicalize(node)
	}
	node = parent.canonicalizeChild(branch, node)
	if filter != nil {
		filter.GotNode(false, hash, sm.ledgerSeq, node.SerializeWithPrefix(), node.Type())
	}
	return usefulNode(), nil
}

// IsComplete reports whether every node the map references is available
// locally, without consulting any filter.
func (sm *SHAMap) IsComplete() (bool, error) {
	missing, err := sm.peekMissing(1)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// SyncProgress returns the number of resident nodes and the number of
// referenced nodes that are still missing.
func (sm *SHAMap) SyncProgress() (present, missing int, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var walk func(n *InnerNode, id NodeID) error
	walk = func(n *InnerNode, id NodeID) error {
		present++
		for b := 0; b < BranchFactor; b++ {
			if !n.HasBranch(b) {
				continue
			}
			child, err := sm.descend(n, id, b, nil)
			if err != nil {
				return err
			}
			switch c := child.(type) {
			case nil:
				missing++
			case *LeafNode:
				present++
			case *InnerNode:
				if err := walk(c, id.ChildNodeID(b)); err != nil {
					return err
				}
			}
		}
		return nil
	}
	err = walk(sm.root, RootNodeID())
	return present, missing, err
}

// peekMissing lists up to max missing nodes without touching the sync state.
func (sm *SHAMap) peekMissing(max int) ([]MissingNode, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	w := &missingWalk{max: max}
	if _, err := sm.gatherMissing(sm.root, RootNodeID(), w); err != nil {
		return nil, err
	}
	return w.missing, nil
}
