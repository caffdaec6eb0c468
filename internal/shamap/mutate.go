package shamap

import "fmt"

// Insert adds item as a leaf of the given type. It returns false if the
// key is already present.
func (sm *SHAMap) Insert(nodeType NodeType, item *Item) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.insertLocked(nodeType, item)
}

// Update replaces the item stored under item's key. It returns false if
// the key is absent or stored with a different node type.
func (sm *SHAMap) Update(nodeType NodeType, item *Item) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.updateLocked(nodeType, item)
}

// Remove deletes the item stored under key. It returns false if the key
// is absent.
func (sm *SHAMap) Remove(key [32]byte) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.removeLocked(key)
}

// Put inserts item, or updates it if the key is already present.
func (sm *SHAMap) Put(nodeType NodeType, item *Item) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.putLocked(nodeType, item)
}

// Batch gives access to the map while its lock is held by Apply.
type Batch struct {
	sm *SHAMap
}

// Apply runs fn with the map locked, so that a sequence of operations is
// atomic with respect to other users of the map. fn must not call methods
// of the map directly.
func (sm *SHAMap) Apply(fn func(b *Batch) error) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return fn(&Batch{sm: sm})
}

func (b *Batch) Insert(nodeType NodeType, item *Item) (bool, error) {
	return b.sm.insertLocked(nodeType, item)
}

func (b *Batch) Update(nodeType NodeType, item *Item) (bool, error) {
	return b.sm.updateLocked(nodeType, item)
}

func (b *Batch) Remove(key [32]byte) (bool, error) {
	return b.sm.removeLocked(key)
}

func (b *Batch) Put(nodeType NodeType, item *Item) error {
	return b.sm.putLocked(nodeType, item)
}

func (b *Batch) Peek(key [32]byte) (*Item, bool, error) {
	return b.sm.peekLocked(key)
}

// Hash returns the root hash as of the operations applied so far.
func (b *Batch) Hash() [32]byte {
	return b.sm.root.Hash()
}

func (sm *SHAMap) checkLeafType(nodeType NodeType, item *Item) error {
	if item == nil {
		return ErrNilItem
	}
	if !nodeType.allowedIn(sm.mapType) {
		return fmt.Errorf("%w: %s leaf in %s map", ErrTypeMismatch, nodeType, sm.mapType)
	}
	return nil
}

func (sm *SHAMap) insertLocked(nodeType NodeType, item *Item) (bool, error) {
	if err := sm.checkMutable(); err != nil {
		return false, err
	}
	if err := sm.checkLeafType(nodeType, item); err != nil {
		return false, err
	}

	key := item.Key()
	stack, err := sm.walkTowardsKey(key)
	if err != nil {
		return false, err
	}

	added := newLeafNode(nodeType, item, sm.cowID)
	var child TreeNode = added
	top := stack[len(stack)-1]
	if leaf, ok := top.node.(*LeafNode); ok {
		if leaf.Key() == key {
			return false, nil
		}
		stack = stack[:len(stack)-1]
		child = sm.splitLeaf(top.id, leaf, added)
	}
	sm.dirtyUp(stack, key, child)
	return true, nil
}

// splitLeaf builds the subtree that replaces existing at position id once
// added has to live beside it: a chain of inner nodes down to the first
// nibble where the two keys differ.
func (sm *SHAMap) splitLeaf(id NodeID, existing, added *LeafNode) TreeNode {
	ek, ak := existing.Key(), added.Key()
	depth := id.Depth
	for nibbleAt(ek, depth) == nibbleAt(ak, depth) {
		depth++
	}

	bottom := newInnerNode(sm.cowID)
	bottom.setChild(nibbleAt(ek, depth), existing)
	bottom.setChild(nibbleAt(ak, depth), added)
	for d := depth; d > id.Depth; d-- {
		n := newInnerNode(sm.cowID)
		n.setChild(nibbleAt(ak, d-1), bottom)
		bottom = n
	}
	return bottom
}

// dirtyUp relinks the path in stack from the bottom up after its last
// entry's branch towards key has been replaced by child, cloning shared
// nodes and recomputing hashes on the way. It installs the new root.
func (sm *SHAMap) dirtyUp(stack []pathEntry, key [32]byte, child TreeNode) {
	for i := len(stack) - 1; i >= 0; i-- {
		inner := sm.unshare(stack[i].node.(*InnerNode))
		inner.setChild(stack[i].id.SelectBranch(key), child)
		child = inner
	}
	sm.root = child.(*InnerNode)
}

func (sm *SHAMap) updateLocked(nodeType NodeType, item *Item) (bool, error) {
	if err := sm.checkMutable(); err != nil {
		return false, err
	}
	if err := sm.checkLeafType(nodeType, item); err != nil {
		return false, err
	}

	key := item.Key()
	stack, err := sm.walkTowardsKey(key)
	if err != nil {
		return false, err
	}
	leaf, ok := stack[len(stack)-1].node.(*LeafNode)
	if !ok || leaf.Key() != key {
		return false, nil
	}
	if leaf.Type() != nodeType {
		sm.log.Warnf("cross-type update of %x from %s to %s", key[:8], leaf.Type(), nodeType)
		return false, nil
	}

	replacement := newLeafNode(nodeType, item, sm.cowID)
	if replacement.Hash() == leaf.Hash() {
		return true, nil
	}
	sm.dirtyUp(stack[:len(stack)-1], key, replacement)
	return true, nil
}

func (sm *SHAMap) putLocked(nodeType NodeType, item *Item) error {
	if err := sm.checkMutable(); err != nil {
		return err
	}
	if err := sm.checkLeafType(nodeType, item); err != nil {
		return err
	}
	leaf, err := sm.findLeaf(item.Key())
	if err != nil {
		return err
	}
	if leaf != nil {
		_, err = sm.updateLocked(nodeType, item)
	} else {
		_, err = sm.insertLocked(nodeType, item)
	}
	return err
}

// collapse describes what happens to one inner node on the path of a
// removal.
type collapse struct {
	prune bool      // the node is left empty and disappears
	leaf  *LeafNode // the node is left with this single leaf, which moves up
}

func (sm *SHAMap) removeLocked(key [32]byte) (bool, error) {
	if err := sm.checkMutable(); err != nil {
		return false, err
	}

	stack, err := sm.walkTowardsKey(key)
	if err != nil {
		return false, err
	}
	leaf, ok := stack[len(stack)-1].node.(*LeafNode)
	if !ok || leaf.Key() != key {
		return false, nil
	}
	stack = stack[:len(stack)-1]

	// Decide every collapse before touching the tree, so that a node that
	// cannot be loaded leaves the map unchanged.
	plan, err := sm.planRemoval(stack, key)
	if err != nil {
		return false, err
	}

	var child TreeNode
	for i := len(stack) - 1; i >= 0; i-- {
		switch {
		case plan[i].prune:
			child = nil
		case plan[i].leaf != nil:
			child = plan[i].leaf
		default:
			inner := sm.unshare(stack[i].node.(*InnerNode))
			inner.setChild(stack[i].id.SelectBranch(key), child)
			child = inner
		}
	}
	sm.root = child.(*InnerNode)
	return true, nil
}

// planRemoval works out, bottom-up, which inner nodes on the path to a
// removed leaf become empty or hold a single leaf. The root never collapses.
func (sm *SHAMap) planRemoval(stack []pathEntry, key [32]byte) ([]collapse, error) {
	plan := make([]collapse, len(stack))

	// replacement is what the branch towards key will hold at the current
	// level: nil when emptied, a leaf when pulled up, or the inner node
	// itself when it survives.
	var replacement TreeNode
	for i := len(stack) - 1; i >= 1; i-- {
		inner := stack[i].node.(*InnerNode)
		id := stack[i].id
		branch := id.SelectBranch(key)

		count := inner.BranchCount()
		if replacement == nil {
			count--
		}

		switch {
		case count == 0:
			plan[i].prune = true
			replacement = nil
		case count == 1 && replacement != nil:
			if l, ok := replacement.(*LeafNode); ok {
				plan[i].leaf = l
			} else {
				replacement = inner
			}
		case count == 1:
			other := -1
			for b := 0; b < BranchFactor; b++ {
				if b != branch && inner.HasBranch(b) {
					other = b
					break
				}
			}
			sole, err := sm.descendThrow(inner, id, other)
			if err != nil {
				return nil, err
			}
			if l, ok := sole.(*LeafNode); ok {
				plan[i].leaf = l
				replacement = l
			} else {
				replacement = inner
			}
		default:
			replacement = inner
		}
	}
	return plan, nil
}

// Peek returns the item stored under key without copying it. The item
// must not be modified.
func (sm *SHAMap) Peek(key [32]byte) (*Item, bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.peekLocked(key)
}

func (sm *SHAMap) peekLocked(key [32]byte) (*Item, bool, error) {
	leaf, err := sm.findLeaf(key)
	if err != nil || leaf == nil {
		return nil, false, err
	}
	return leaf.Item(), true, nil
}

// Get returns a copy of the item stored under key.
func (sm *SHAMap) Get(key [32]byte) (*Item, bool, error) {
	item, found, err := sm.Peek(key)
	if !found {
		return nil, false, err
	}
	return item.Clone(), true, nil
}

// PeekWithType returns the item stored under key along with its leaf type.
func (sm *SHAMap) PeekWithType(key [32]byte) (*Item, NodeType, bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	leaf, err := sm.findLeaf(key)
	if err != nil || leaf == nil {
		return nil, 0, false, err
	}
	return leaf.Item(), leaf.Type(), true, nil
}

// Has reports whether key is present.
func (sm *SHAMap) Has(key [32]byte) (bool, error) {
	_, found, err := sm.Peek(key)
	return found, err
}
