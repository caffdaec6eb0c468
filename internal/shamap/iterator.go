package shamap

import "bytes"

// ForEach calls fn for every item in key order until fn returns false.
func (sm *SHAMap) ForEach(fn func(*Item) bool) error {
	it := sm.Begin()
	for it.Next() {
		if !fn(it.Item()) {
			return nil
		}
	}
	return it.Err()
}

// Iterator provides forward iteration over SHAMap items in key order.
// Each step locks the map, so an iterator over a mutable map sees the
// tree as it was when the iterator descended into each subtree.
//
//	it := sm.Begin()
//	for it.Next() {
//	    item := it.Item()
//	}
//	if err := it.Err(); err != nil {
//	    // handle error
//	}
type Iterator struct {
	sm      *SHAMap
	stack   []iterFrame
	current *Item
	err     error

	// lower bounds the first item returned; inclusive selects >= over >.
	lower     *[32]byte
	inclusive bool
	started   bool
}

type iterFrame struct {
	node   *InnerNode
	id     NodeID
	branch int // next branch to visit
}

// Begin returns an iterator positioned before the first item.
func (sm *SHAMap) Begin() *Iterator {
	return &Iterator{sm: sm}
}

// LowerBound returns an iterator over the items with keys >= key.
func (sm *SHAMap) LowerBound(key [32]byte) *Iterator {
	return &Iterator{sm: sm, lower: &key, inclusive: true}
}

// UpperBound returns an iterator over the items with keys > key.
func (sm *SHAMap) UpperBound(key [32]byte) *Iterator {
	return &Iterator{sm: sm, lower: &key}
}

// Next advances the iterator to the next item.
// Returns true if there is a next item, false if iteration is complete or an error occurred.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}

	it.sm.mu.Lock()
	defer it.sm.mu.Unlock()

	if !it.started {
		it.started = true
		it.stack = append(it.stack, iterFrame{node: it.sm.root, id: RootNodeID()})
		if it.lower != nil {
			it.seek(*it.lower)
			if it.err != nil {
				return false
			}
		}
	}

	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.branch >= BranchFactor {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		b := top.branch
		top.branch++
		if !top.node.HasBranch(b) {
			continue
		}
		child, err := it.sm.descendThrow(top.node, top.id, b)
		if err != nil {
			it.err = err
			return false
		}
		switch c := child.(type) {
		case *InnerNode:
			it.stack = append(it.stack, iterFrame{node: c, id: top.id.ChildNodeID(b)})
		case *LeafNode:
			if it.lower != nil && !it.accepts(c.Key()) {
				continue
			}
			it.current = c.Item()
			return true
		}
	}
	it.current = nil
	return false
}

// seek positions the stack so that the walk starts at the subtree where
// key would be found. Frames skip the branches entirely below key.
func (it *Iterator) seek(key [32]byte) {
	for {
		top := &it.stack[len(it.stack)-1]
		b := top.id.SelectBranch(key)
		top.branch = b
		if !top.node.HasBranch(b) {
			return
		}
		child, err := it.sm.descendThrow(top.node, top.id, b)
		if err != nil {
			it.err = err
			return
		}
		inner, ok := child.(*InnerNode)
		if !ok {
			return
		}
		top.branch = b + 1
		it.stack = append(it.stack, iterFrame{node: inner, id: top.id.ChildNodeID(b)})
	}
}

func (it *Iterator) accepts(key [32]byte) bool {
	cmp := bytes.Compare(key[:], it.lower[:])
	if it.inclusive {
		return cmp >= 0
	}
	return cmp > 0
}

// Item returns the current item. Only valid after Next() returns true.
func (it *Iterator) Item() *Item {
	return it.current
}

// Err returns any error that occurred during iteration.
func (it *Iterator) Err() error {
	return it.err
}
