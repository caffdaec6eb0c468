package shamap

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNilItem         = errors.New("cannot add nil item")
	ErrInvalidState    = errors.New("invalid state for operation")
	ErrMissingNode     = errors.New("node not present in map or backing store")
	ErrCorruptNode     = errors.New("stored node does not match its hash")
	ErrInvalidNodeData = errors.New("invalid node data")
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrNotBacked       = errors.New("map has no backing store")
	ErrTypeMismatch    = errors.New("node type does not match map type")
)

// MissingNodeError reports a node that the map references but could not
// resolve from memory, the backing store, or a sync filter.
type MissingNodeError struct {
	NodeID NodeID
	Hash   [32]byte
}

func (e *MissingNodeError) Error() string {
	return fmt.Sprintf("missing node %s hash=%x", e.NodeID, e.Hash[:8])
}

// Is makes errors.Is(err, ErrMissingNode) hold for every MissingNodeError.
func (e *MissingNodeError) Is(target error) bool {
	return target == ErrMissingNode
}

// CorruptNodeError reports a backing store entry whose content does not hash
// to the key it was stored under.
type CorruptNodeError struct {
	NodeID   NodeID
	Expected [32]byte
	Actual   [32]byte
}

func (e *CorruptNodeError) Error() string {
	return fmt.Sprintf("corrupt node %s: expected hash %x, got %x", e.NodeID, e.Expected[:8], e.Actual[:8])
}

func (e *CorruptNodeError) Is(target error) bool {
	return target == ErrCorruptNode
}
