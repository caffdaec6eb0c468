package shamap

import (
	"fmt"

	"github.com/LeJamon/goshamap/internal/crypto/common"
	"github.com/LeJamon/goshamap/internal/protocol"
)

// LeafNode holds a single item. Leaves never change after construction;
// updating an item replaces its leaf.
type LeafNode struct {
	nodeHeader

	hash     [32]byte
	item     *Item
	nodeType NodeType
}

func newLeafNode(nodeType NodeType, item *Item, cowID uint32) *LeafNode {
	l := &LeafNode{item: item, nodeType: nodeType}
	l.cowID.Store(cowID)
	l.dirty.Store(true)
	l.hash = leafHash(nodeType, item)
	return l
}

func leafPrefix(nodeType NodeType) [4]byte {
	switch nodeType {
	case NodeTypeTransactionNoMeta:
		return protocol.HashPrefixTransactionID
	case NodeTypeTransactionWithMeta:
		return protocol.HashPrefixTxNode
	default:
		return protocol.HashPrefixLeafNode
	}
}

func leafWireType(nodeType NodeType) byte {
	switch nodeType {
	case NodeTypeTransactionNoMeta:
		return wireTypeTransaction
	case NodeTypeTransactionWithMeta:
		return wireTypeTransactionWithMeta
	default:
		return wireTypeAccountState
	}
}

// leafHash binds the kind, the payload and the key.
func leafHash(nodeType NodeType, item *Item) [32]byte {
	prefix := leafPrefix(nodeType)
	return common.Sha512Half(prefix[:], item.data, item.key[:])
}

func (l *LeafNode) Hash() [32]byte { return l.hash }
func (l *LeafNode) IsLeaf() bool { return true }
func (l *LeafNode) IsInner() bool { return false }
func (l *LeafNode) Type() NodeType { return l.nodeType }
func (l *LeafNode) Item() *Item { return l.item }
func (l *LeafNode) Key() [32]byte { return l.item.key }

// SerializeForWire returns data ‖ key ‖ type tag.
func (l *LeafNode) SerializeForWire() []byte {
	out := make([]byte, 0, len(l.item.data)+33)
	out = append(out, l.item.data...)
	out = append(out, l.item.key[:]...)
	return append(out, leafWireType(l.nodeType))
}

// SerializeWithPrefix returns prefix ‖ data ‖ key.
func (l *LeafNode) SerializeWithPrefix() []byte {
	prefix := leafPrefix(l.nodeType)
	out := make([]byte, 0, protocol.HashPrefixLength+len(l.item.data)+32)
	out = append(out, prefix[:]...)
	out = append(out, l.item.data...)
	return append(out, l.item.key[:]...)
}

func (l *LeafNode) String() string {
	return fmt.Sprintf("LeafNode(%s, key=%x, hash=%x)", l.nodeType, l.item.key[:8], l.hash[:8])
}
