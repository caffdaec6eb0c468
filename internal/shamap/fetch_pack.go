package shamap

import (
	"fmt"
	"io"
	"sync"

	"github.com/ugorji/go/codec"
)

// FetchPackEntry is one node of a fetch pack, in prefix format.
type FetchPackEntry struct {
	Hash [32]byte `codec:"h"`
	Data []byte   `codec:"d"`
}

// FetchPack is a bundle of nodes pushed to a peer in one transfer. It
// doubles as a SyncFilter so a syncing map can draw nodes from it.
type FetchPack struct {
	mu      sync.RWMutex
	entries []FetchPackEntry
	index   map[[32]byte]int
}

// NewFetchPack creates an empty pack.
func NewFetchPack() *FetchPack {
	return &FetchPack{index: make(map[[32]byte]int)}
}

// Add appends a node unless the pack already holds its hash.
func (p *FetchPack) Add(hash [32]byte, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.index[hash]; ok {
		return
	}
	p.index[hash] = len(p.entries)
	p.entries = append(p.entries, FetchPackEntry{Hash: hash, Data: data})
}

// Len returns the number of nodes in the pack.
func (p *FetchPack) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Entries returns the nodes in the order they were added.
func (p *FetchPack) Entries() []FetchPackEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]FetchPackEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// GetNode implements SyncFilter.
func (p *FetchPack) GetNode(hash [32]byte) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, ok := p.index[hash]
	if !ok {
		return nil, false
	}
	return p.entries[i].Data, true
}

// GotNode implements SyncFilter.
func (p *FetchPack) GotNode(bool, [32]byte, uint32, []byte, NodeType) {}

var msgpackHandle = &codec.MsgpackHandle{}

// Encode writes the pack as msgpack.
func (p *FetchPack) Encode(w io.Writer) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return codec.NewEncoder(w, msgpackHandle).Encode(p.entries)
}

// DecodeFetchPack reads a pack written by Encode. Entries whose data does
// not hash to their declared hash are rejected.
func DecodeFetchPack(r io.Reader) (*FetchPack, error) {
	var entries []FetchPackEntry
	if err := codec.NewDecoder(r, msgpackHandle).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode fetch pack: %w", err)
	}
	p := NewFetchPack()
	for i, e := range entries {
		if !verifyNodeHash(e.Hash, e.Data) {
			return nil, fmt.Errorf("%w: fetch pack entry %d does not match hash %x", ErrInvalidNodeData, i, e.Hash[:8])
		}
		p.Add(e.Hash, e.Data)
	}
	return p, nil
}

// GetFetchPack collects up to max nodes that this map has and have lacks.
// With a nil have every node qualifies. Leaves are only included when
// includeLeaves is set. A max of zero or less means no limit.
func (sm *SHAMap) GetFetchPack(have *SHAMap, includeLeaves bool, max int) (*FetchPack, error) {
	var unlock func()
	if have != nil {
		unlock = lockPair(sm, have)
	} else {
		sm.mu.Lock()
		unlock = sm.mu.Unlock
	}
	defer unlock()

	pack := NewFetchPack()
	err := sm.visitDifferences(have, func(node TreeNode) bool {
		if includeLeaves || node.IsInner() {
			pack.Add(node.Hash(), node.SerializeWithPrefix())
		}
		return max <= 0 || pack.Len() < max
	})
	if err != nil {
		return nil, err
	}
	return pack, nil
}

// visitDifferences calls fn for each node of sm that have does not
// contain, parents before children, until fn returns false.
func (sm *SHAMap) visitDifferences(have *SHAMap, fn func(TreeNode) bool) error {
	root := sm.root
	if root.Hash() == ([32]byte{}) {
		return nil
	}
	if have != nil && have.root.Hash() == root.Hash() {
		return nil
	}

	if have == nil {
		if !fn(root) {
			return nil
		}
	} else if ok, err := have.hasInnerNode(RootNodeID(), root.Hash()); err != nil {
		return err
	} else if !ok && !fn(root) {
		return nil
	}

	type frame struct {
		node *InnerNode
		id   NodeID
	}
	stack := []frame{{node: root, id: RootNodeID()}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for b := 0; b < BranchFactor; b++ {
			if !top.node.HasBranch(b) {
				continue
			}
			childID := top.id.ChildNodeID(b)
			childHash := top.node.ChildHash(b)
			child, err := sm.descendThrow(top.node, top.id, b)
			if err != nil {
				return err
			}

			var known bool
			if have != nil {
				if leaf, ok := child.(*LeafNode); ok {
					known, err = have.hasLeafNode(leaf.Key(), childHash)
				} else {
					known, err = have.hasInnerNode(childID, childHash)
				}
				if err != nil {
					return err
				}
			}
			if known {
				continue
			}
			if !fn(child) {
				return nil
			}
			if inner, ok := child.(*InnerNode); ok {
				stack = append(stack, frame{node: inner, id: childID})
			}
		}
	}
	return nil
}

// hasInnerNode reports whether the map has an inner node with hash at id.
func (sm *SHAMap) hasInnerNode(id NodeID, hash [32]byte) (bool, error) {
	node := sm.root
	nodeID := RootNodeID()
	for nodeID.Depth < id.Depth {
		branch := nodeID.SelectBranch(id.ID)
		if !node.HasBranch(branch) {
			return false, nil
		}
		child, err := sm.descendThrow(node, nodeID, branch)
		if err != nil {
			return false, err
		}
		inner, ok := child.(*InnerNode)
		if !ok {
			return false, nil
		}
		node, nodeID = inner, nodeID.ChildNodeID(branch)
	}
	return node.Hash() == hash, nil
}

// hasLeafNode reports whether the map has a leaf for key with hash.
func (sm *SHAMap) hasLeafNode(key [32]byte, hash [32]byte) (bool, error) {
	leaf, err := sm.findLeaf(key)
	if err != nil || leaf == nil {
		return false, err
	}
	return leaf.Hash() == hash, nil
}
