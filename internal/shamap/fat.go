package shamap

import "fmt"

// ErrNodeNotInMap is returned when a peer asks for a position the map
// does not have.
var ErrNodeNotInMap = fmt.Errorf("%w: requested node not in map", ErrMissingNode)

// NodeData is a serialized node and its position.
type NodeData struct {
	NodeID NodeID
	Data   []byte
}

// GetNodeFat serializes the node at wanted together with its descendants
// down to depth further levels, to save the requester round trips. Inner
// nodes with a single child do not use up depth. Leaves below the first
// level are only included when fatLeaves is set.
func (sm *SHAMap) GetNodeFat(wanted NodeID, fatLeaves bool, depth int) ([]NodeData, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var node TreeNode = sm.root
	id := RootNodeID()
	for id.Depth < wanted.Depth {
		inner, ok := node.(*InnerNode)
		if !ok {
			break
		}
		branch := id.SelectBranch(wanted.ID)
		if !inner.HasBranch(branch) {
			return nil, ErrNodeNotInMap
		}
		child, err := sm.descendThrow(inner, id, branch)
		if err != nil {
			return nil, err
		}
		node, id = child, id.ChildNodeID(branch)
	}
	if !id.Equal(wanted) {
		sm.log.WithField("node", wanted.String()).Debug("peer requested node that is not in the map")
		return nil, ErrNodeNotInMap
	}
	if inner, ok := node.(*InnerNode); ok && inner.IsEmpty() {
		sm.log.Debug("peer requested empty node")
		return nil, ErrNodeNotInMap
	}

	type frame struct {
		node  TreeNode
		id    NodeID
		depth int
	}
	var out []NodeData
	stack := []frame{{node: node, id: id, depth: depth}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		out = append(out, NodeData{NodeID: top.id, Data: top.node.SerializeForWire()})

		inner, ok := top.node.(*InnerNode)
		if !ok {
			continue
		}
		bc := inner.BranchCount()
		if top.depth <= 0 && bc != 1 {
			continue
		}
		for b := 0; b < BranchFactor; b++ {
			if !inner.HasBranch(b) {
				continue
			}
			child, err := sm.descendThrow(inner, top.id, b)
			if err != nil {
				return nil, err
			}
			childID := top.id.ChildNodeID(b)
			switch {
			case child.IsInner() && (top.depth > 1 || bc == 1):
				next := top.depth
				if bc > 1 {
					next--
				}
				stack = append(stack, frame{node: child, id: childID, depth: next})
			case child.IsInner() || fatLeaves:
				out = append(out, NodeData{NodeID: childID, Data: child.SerializeForWire()})
			}
		}
	}
	return out, nil
}

// SerializeRoot returns the root node in wire format.
func (sm *SHAMap) SerializeRoot() []byte {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.root.SerializeForWire()
}
