package shamap

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Item is a keyed payload stored in a leaf. Items are immutable once
// created; replacing an item's data means installing a new Item.
type Item struct {
	key  [32]byte
	data []byte
}

// NewItem creates an item, copying data.
func NewItem(key [32]byte, data []byte) *Item {
	d := make([]byte, len(data))
	copy(d, data)
	return &Item{key: key, data: d}
}

// Key returns the item's 256-bit key.
func (i *Item) Key() [32]byte {
	return i.key
}

// Data returns the item's payload. The slice is shared and must not be modified.
func (i *Item) Data() []byte {
	return i.data
}

// Size returns the payload length in bytes.
func (i *Item) Size() int {
	return len(i.data)
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	return NewItem(i.key, i.data)
}

// Equal reports whether both items carry the same key and data.
func (i *Item) Equal(other *Item) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.key == other.key && bytes.Equal(i.data, other.data)
}

func (i *Item) String() string {
	return fmt.Sprintf("Item(key=%s, size=%d)", hex.EncodeToString(i.key[:]), len(i.data))
}
