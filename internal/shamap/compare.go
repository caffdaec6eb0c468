package shamap

import "fmt"

// DifferenceType represents the type of difference between two items
type DifferenceType int

const (
	DiffAdded DifferenceType = iota
	DiffRemoved
	DiffModified
)

// String returns a string representation of the difference type
func (dt DifferenceType) String() string {
	switch dt {
	case DiffAdded:
		return "added"
	case DiffRemoved:
		return "removed"
	case DiffModified:
		return "modified"
	default:
		return fmt.Sprintf("unknown(%d)", int(dt))
	}
}

// DeltaItem holds the two versions of a differing key. First is the item
// in the map Compare was called on, Second the item in the other map;
// either is nil when the key is absent from that map.
type DeltaItem struct {
	First  *Item
	Second *Item
}

// Type classifies the difference from the first map's point of view:
// DiffAdded means the key only exists in the other map.
func (d DeltaItem) Type() DifferenceType {
	switch {
	case d.First == nil:
		return DiffAdded
	case d.Second == nil:
		return DiffRemoved
	default:
		return DiffModified
	}
}

// Delta maps each differing key to its two versions.
type Delta map[[32]byte]DeltaItem

// Compare returns the item-level differences between sm and other. It
// only descends where subtree hashes differ. If more than maxCount keys
// differ it stops early and returns false, meaning the maps are too
// different to reconcile item by item.
func (sm *SHAMap) Compare(other *SHAMap, maxCount int) (Delta, bool, error) {
	unlock := lockPair(sm, other)
	defer unlock()

	c := &comparison{ours: sm, theirs: other, max: maxCount, delta: make(Delta)}
	ok, err := c.run()
	if err != nil {
		return nil, false, err
	}
	return c.delta, ok, nil
}

type comparison struct {
	ours, theirs *SHAMap
	max          int
	delta        Delta
}

type comparePair struct {
	ours, theirs     TreeNode
	oursID, theirsID NodeID
}

// add records a difference and reports whether the budget still allows
// the walk to continue.
func (c *comparison) add(key [32]byte, first, second *Item) bool {
	c.delta[key] = DeltaItem{First: first, Second: second}
	return len(c.delta) <= c.max
}

func (c *comparison) run() (bool, error) {
	if c.ours.root.Hash() == c.theirs.root.Hash() {
		return true, nil
	}

	stack := []comparePair{{ours: c.ours.root, theirs: c.theirs.root, oursID: RootNodeID(), theirsID: RootNodeID()}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ourLeaf, ourIsLeaf := top.ours.(*LeafNode)
		theirLeaf, theirIsLeaf := top.theirs.(*LeafNode)

		switch {
		case ourIsLeaf && theirIsLeaf:
			if ourLeaf.Key() == theirLeaf.Key() {
				if !ourLeaf.Item().Equal(theirLeaf.Item()) && !c.add(ourLeaf.Key(), ourLeaf.Item(), theirLeaf.Item()) {
					return false, nil
				}
				continue
			}
			if !c.add(ourLeaf.Key(), ourLeaf.Item(), nil) || !c.add(theirLeaf.Key(), nil, theirLeaf.Item()) {
				return false, nil
			}

		case ourIsLeaf:
			ok, err := c.walkBranch(c.theirs, top.theirs.(*InnerNode), top.theirsID, ourLeaf.Item(), false)
			if err != nil || !ok {
				return false, err
			}

		case theirIsLeaf:
			ok, err := c.walkBranch(c.ours, top.ours.(*InnerNode), top.oursID, theirLeaf.Item(), true)
			if err != nil || !ok {
				return false, err
			}

		default:
			ourInner := top.ours.(*InnerNode)
			theirInner := top.theirs.(*InnerNode)
			for b := 0; b < BranchFactor; b++ {
				if ourInner.ChildHash(b) == theirInner.ChildHash(b) {
					continue
				}
				switch {
				case !theirInner.HasBranch(b):
					ok, err := c.walkSubtree(c.ours, ourInner, top.oursID, b, true)
					if err != nil || !ok {
						return false, err
					}
				case !ourInner.HasBranch(b):
					ok, err := c.walkSubtree(c.theirs, theirInner, top.theirsID, b, false)
					if err != nil || !ok {
						return false, err
					}
				default:
					ourChild, err := c.ours.descendThrow(ourInner, top.oursID, b)
					if err != nil {
						return false, err
					}
					theirChild, err := c.theirs.descendThrow(theirInner, top.theirsID, b)
					if err != nil {
						return false, err
					}
					stack = append(stack, comparePair{
						ours:     ourChild,
						theirs:   theirChild,
						oursID:   top.oursID.ChildNodeID(b),
						theirsID: top.theirsID.ChildNodeID(b),
					})
				}
			}
		}
	}
	return true, nil
}

// walkSubtree records every item below branch of parent as present only
// in owner.
func (c *comparison) walkSubtree(owner *SHAMap, parent *InnerNode, parentID NodeID, branch int, isOurs bool) (bool, error) {
	child, err := owner.descendThrow(parent, parentID, branch)
	if err != nil {
		return false, err
	}
	if leaf, ok := child.(*LeafNode); ok {
		return c.addOneSided(leaf.Item(), isOurs), nil
	}
	return c.walkBranch(owner, child.(*InnerNode), parentID.ChildNodeID(branch), nil, isOurs)
}

func (c *comparison) addOneSided(item *Item, isOurs bool) bool {
	if isOurs {
		return c.add(item.Key(), item, nil)
	}
	return c.add(item.Key(), nil, item)
}

// walkBranch records every item below node, which belongs to owner,
// against otherItem: the single item the other map holds at the same
// position, if any.
func (c *comparison) walkBranch(owner *SHAMap, node *InnerNode, id NodeID, otherItem *Item, isOurs bool) (bool, error) {
	type frame struct {
		node *InnerNode
		id   NodeID
	}
	matched := otherItem == nil
	stack := []frame{{node: node, id: id}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for b := 0; b < BranchFactor; b++ {
			if !top.node.HasBranch(b) {
				continue
			}
			child, err := owner.descendThrow(top.node, top.id, b)
			if err != nil {
				return false, err
			}
			if inner, ok := child.(*InnerNode); ok {
				stack = append(stack, frame{node: inner, id: top.id.ChildNodeID(b)})
				continue
			}

			item := child.(*LeafNode).Item()
			if !matched && item.Key() == otherItem.Key() {
				matched = true
				if item.Equal(otherItem) {
					continue
				}
				var ok bool
				if isOurs {
					ok = c.add(item.Key(), item, otherItem)
				} else {
					ok = c.add(item.Key(), otherItem, item)
				}
				if !ok {
					return false, nil
				}
				continue
			}
			if !c.addOneSided(item, isOurs) {
				return false, nil
			}
		}
	}

	if !matched {
		return c.addOneSided(otherItem, !isOurs), nil
	}
	return true, nil
}
