package shamap

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTreeCacheSize is the number of nodes kept by a TreeNodeCache.
const DefaultTreeCacheSize = 65536

// TreeNodeCache interns clean nodes by hash so that maps over the same
// Family share one in-memory instance of each persisted node.
type TreeNodeCache struct {
	nodes *lru.Cache[[32]byte, TreeNode]
}

// NewTreeNodeCache creates a cache holding at most size nodes.
func NewTreeNodeCache(size int) (*TreeNodeCache, error) {
	if size <= 0 {
		size = DefaultTreeCacheSize
	}
	nodes, err := lru.New[[32]byte, TreeNode](size)
	if err != nil {
		return nil, err
	}
	return &TreeNodeCache{nodes: nodes}, nil
}

// Get returns the cached node for hash.
func (c *TreeNodeCache) Get(hash [32]byte) (TreeNode, bool) {
	return c.nodes.Get(hash)
}

// Canonicalize returns the cached instance for node's hash, inserting node
// if there is none. Only clean nodes may be canonicalized.
func (c *TreeNodeCache) Canonicalize(node TreeNode) TreeNode {
	existing, found, _ := c.nodes.PeekOrAdd(node.Hash(), node)
	if found {
		return existing
	}
	return node
}

// Len returns the number of cached nodes.
func (c *TreeNodeCache) Len() int {
	return c.nodes.Len()
}

// Purge empties the cache.
func (c *TreeNodeCache) Purge() {
	c.nodes.Purge()
}
