// Package shamap implements the SHAMap: a copy-on-write, content-addressed
// radix-16 Merkle tree keyed by 256-bit keys, together with the protocol
// used to reconstruct a map from untrusted peers given only its root hash.
package shamap

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/LeJamon/goshamap/internal/log"
)

var (
	cowCounter atomic.Uint32
	mapCounter atomic.Uint64
)

// nextCowID returns a copy-on-write stamp no live map is using.
func nextCowID() uint32 {
	for {
		if id := cowCounter.Add(1); id != 0 {
			return id
		}
	}
}

// SHAMap is the main structure representing the tree.
//
// All methods are safe for concurrent use. A single mutex serializes
// access to one map; maps sharing nodes need no coordination with each
// other.
type SHAMap struct {
	mu sync.Mutex

	id        uint64
	root      *InnerNode
	mapType   Type
	state     State
	cowID     uint32
	ledgerSeq uint32

	family    Family
	fullBelow *FullBelowCache
	treeCache *TreeNodeCache
	log       *logrus.Entry
}

// Option configures a SHAMap at construction.
type Option func(*SHAMap)

// WithFamily backs the map with a persistent store.
func WithFamily(f Family) Option {
	return func(sm *SHAMap) {
		sm.family = f
	}
}

// WithFullBelowCache shares a FullBelowCache with the map. The cache must
// belong to the same Family as the map.
func WithFullBelowCache(c *FullBelowCache) Option {
	return func(sm *SHAMap) {
		sm.fullBelow = c
	}
}

// WithTreeNodeCache shares a TreeNodeCache with the map.
func WithTreeNodeCache(c *TreeNodeCache) Option {
	return func(sm *SHAMap) {
		sm.treeCache = c
	}
}

// WithLogger sets the entry the map logs through.
func WithLogger(l *logrus.Entry) Option {
	return func(sm *SHAMap) {
		sm.log = l
	}
}

// WithLedgerSeq sets the ledger sequence reported to sync filters.
func WithLedgerSeq(seq uint32) Option {
	return func(sm *SHAMap) {
		sm.ledgerSeq = seq
	}
}

func newMap(mapType Type, state State, opts []Option) *SHAMap {
	sm := &SHAMap{
		id:      mapCounter.Add(1),
		mapType: mapType,
		state:   state,
		cowID:   nextCowID(),
	}
	for _, opt := range opts {
		opt(sm)
	}
	if sm.log == nil {
		sm.log = log.Module("shamap")
	}
	sm.root = newInnerNode(sm.cowID)
	return sm
}

// New creates a new empty SHAMap with the specified type.
func New(mapType Type, opts ...Option) *SHAMap {
	return newMap(mapType, StateModifying, opts)
}

// NewSyncing creates an empty map that is to be filled in from peers,
// starting with AddRootNode or FetchRoot.
func NewSyncing(mapType Type, opts ...Option) *SHAMap {
	return newMap(mapType, StateSynching, opts)
}

// Type returns the map type
func (sm *SHAMap) Type() Type {
	return sm.mapType
}

// State returns the current state
func (sm *SHAMap) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// IsBacked reports whether the map has a backing store.
func (sm *SHAMap) IsBacked() bool {
	return sm.family != nil
}

// LedgerSeq returns the ledger sequence number
func (sm *SHAMap) LedgerSeq() uint32 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.ledgerSeq
}

// SetLedgerSeq sets the ledger sequence number
func (sm *SHAMap) SetLedgerSeq(seq uint32) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.ledgerSeq = seq
}

// SetImmutable freezes the map. It is a one-way transition.
func (sm *SHAMap) SetImmutable() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateInvalid {
		return fmt.Errorf("%w: cannot freeze an invalid map", ErrInvalidState)
	}
	sm.state = StateImmutable
	sm.cowID = 0
	return nil
}

// SetFloating allows a mutable map to change its root hash freely.
func (sm *SHAMap) SetFloating() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateModifying && sm.state != StateFloating {
		return fmt.Errorf("%w: cannot float a %s map", ErrInvalidState, sm.state)
	}
	sm.state = StateFloating
	return nil
}

// ClearSynching ends synchronization and makes the map modifiable.
func (sm *SHAMap) ClearSynching() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.clearSynchingLocked()
}

func (sm *SHAMap) clearSynchingLocked() {
	if sm.state == StateSynching {
		sm.state = StateModifying
		sm.cowID = nextCowID()
	}
}

// SetSynching marks the map as being reconstructed from peers.
func (sm *SHAMap) SetSynching() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state == StateImmutable || sm.state == StateInvalid {
		return fmt.Errorf("%w: cannot sync a %s map", ErrInvalidState, sm.state)
	}
	sm.state = StateSynching
	return nil
}

// Hash returns the root hash of the SHAMap. An empty map hashes to zero.
func (sm *SHAMap) Hash() [32]byte {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.root.Hash()
}

// Snapshot returns a new map sharing every node with this one. No node is
// copied until one of the maps modifies it. If mutable is false the
// snapshot is immutable.
func (sm *SHAMap) Snapshot(mutable bool) (*SHAMap, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateInvalid || sm.state == StateSynching {
		return nil, fmt.Errorf("%w: cannot snapshot a %s map", ErrInvalidState, sm.state)
	}

	snap := &SHAMap{
		id:        mapCounter.Add(1),
		root:      sm.root,
		mapType:   sm.mapType,
		ledgerSeq: sm.ledgerSeq,
		family:    sm.family,
		fullBelow: sm.fullBelow,
		treeCache: sm.treeCache,
		log:       sm.log,
	}
	if mutable {
		snap.state = StateModifying
		snap.cowID = nextCowID()
	} else {
		snap.state = StateImmutable
	}

	// Nodes owned by this map are now reachable from the snapshot too, so
	// neither map may change them in place any more.
	if sm.state != StateImmutable {
		sm.cowID = nextCowID()
	}
	return snap, nil
}

// checkMutable panics on attempts to modify an immutable map; that is a
// programming error, never the result of remote input.
func (sm *SHAMap) checkMutable() error {
	switch sm.state {
	case StateModifying, StateFloating:
		return nil
	case StateImmutable:
		panic("shamap: modification of immutable map")
	default:
		return fmt.Errorf("%w: cannot modify a %s map", ErrInvalidState, sm.state)
	}
}

// unshare returns a version of node this map may modify in place.
func (sm *SHAMap) unshare(node *InnerNode) *InnerNode {
	if node.ownedBy(sm.cowID) {
		return node
	}
	return node.clone(sm.cowID)
}

// lockPair locks two maps in a stable order so that concurrent
// comparisons in opposite directions cannot deadlock.
func lockPair(a, b *SHAMap) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

func (sm *SHAMap) String() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return fmt.Sprintf("SHAMap(%s, %s, hash=%x)", sm.mapType, sm.state, sm.root.Hash())
}
