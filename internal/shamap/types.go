package shamap

import "fmt"

// State defines the state of the SHAMap
type State int

const (
	// StateModifying is the default state: items may be added, updated and removed.
	StateModifying State = iota
	// StateImmutable maps never change. Mutating one is a programming error.
	StateImmutable
	// StateSynching maps are being reconstructed from peers and may be incomplete.
	StateSynching
	// StateFloating maps may change freely, including their root hash.
	StateFloating
	// StateInvalid maps detected corruption in their backing store and must be discarded.
	StateInvalid
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateModifying:
		return "modifying"
	case StateImmutable:
		return "immutable"
	case StateSynching:
		return "synching"
	case StateFloating:
		return "floating"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Type defines the SHAMap type
type Type int

const (
	TypeTransaction Type = iota
	TypeState
	TypeFree
)

// String returns a string representation of the type
func (t Type) String() string {
	switch t {
	case TypeTransaction:
		return "transaction"
	case TypeState:
		return "state"
	case TypeFree:
		return "free"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// NodeType identifies the kind of a tree node.
type NodeType uint8

const (
	NodeTypeInner NodeType = iota
	NodeTypeTransactionNoMeta
	NodeTypeTransactionWithMeta
	NodeTypeAccountState
)

// String returns a string representation of the node type
func (nt NodeType) String() string {
	switch nt {
	case NodeTypeInner:
		return "inner"
	case NodeTypeTransactionNoMeta:
		return "transaction"
	case NodeTypeTransactionWithMeta:
		return "transaction+meta"
	case NodeTypeAccountState:
		return "account_state"
	default:
		return fmt.Sprintf("unknown(%d)", int(nt))
	}
}

// IsLeaf reports whether the node type denotes a leaf.
func (nt NodeType) IsLeaf() bool {
	return nt == NodeTypeTransactionNoMeta || nt == NodeTypeTransactionWithMeta || nt == NodeTypeAccountState
}

// allowedIn reports whether leaves of this type may be stored in a map of type t.
func (nt NodeType) allowedIn(t Type) bool {
	switch t {
	case TypeState:
		return nt == NodeTypeAccountState
	case TypeTransaction:
		return nt == NodeTypeTransactionNoMeta || nt == NodeTypeTransactionWithMeta
	default:
		return nt.IsLeaf()
	}
}
