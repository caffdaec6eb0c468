package cli

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/LeJamon/goshamap/internal/config"
	"github.com/LeJamon/goshamap/internal/log"
	"github.com/LeJamon/goshamap/internal/shamap"
	"github.com/LeJamon/goshamap/internal/storage/nodestore"
)

// storeEnv is one opened node store together with the caches shared by
// every map read from or written to it.
type storeEnv struct {
	db        *nodestore.DatabaseImpl
	family    *shamap.NodeStoreFamily
	treeCache *shamap.TreeNodeCache
	fullBelow *shamap.FullBelowCache
	log       *logrus.Entry
}

// openStore opens the node store configured in c. A non-empty path
// overrides the configured location, which is how a second store (the
// sync source) is opened with the same settings.
func openStore(c *config.Config, path string) (*storeEnv, error) {
	dbConfig := c.NodeDB
	if path != "" {
		dbConfig.Path = path
	}

	db, err := nodestore.Open(&dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open node store %s: %w", dbConfig.Path, err)
	}

	treeCache, err := shamap.NewTreeNodeCache(c.SHAMap.TreeCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &storeEnv{
		db:        db,
		family:    shamap.NewNodeStoreFamily(db),
		treeCache: treeCache,
		fullBelow: shamap.NewFullBelowCache(c.SHAMap.FullBelowExpire),
		log:       log.Module("cli").WithField("store", dbConfig.Path),
	}, nil
}

func (e *storeEnv) options(extra ...shamap.Option) []shamap.Option {
	opts := []shamap.Option{
		shamap.WithFamily(e.family),
		shamap.WithTreeNodeCache(e.treeCache),
		shamap.WithFullBelowCache(e.fullBelow),
		shamap.WithLogger(e.log.WithField("module", "shamap")),
	}
	return append(opts, extra...)
}

// loadMap resolves root from the store and returns it as an immutable map.
// Nodes below the root are loaded on demand.
func (e *storeEnv) loadMap(root [32]byte, mapType shamap.Type) (*shamap.SHAMap, error) {
	sm := shamap.NewSyncing(mapType, e.options()...)
	found, err := sm.FetchRoot(root, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("root %X not found in node store", root)
	}
	if err := sm.SetImmutable(); err != nil {
		return nil, err
	}
	return sm, nil
}

func (e *storeEnv) Close() error {
	stats := e.db.Stats()
	e.log.WithFields(log.Fields(
		"reads", stats.Reads,
		"cache_hits", stats.CacheHits,
		"writes", stats.Writes,
	)).Debug("closing node store")
	return e.family.Close()
}

// flushAll writes every dirty node of sm to its store, batch nodes at a
// time, and returns the number written.
func flushAll(sm *shamap.SHAMap, batch int) (int, error) {
	total := 0
	for {
		n, err := sm.FlushDirty(batch)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 || batch <= 0 {
			return total, nil
		}
	}
}

func parseHash(s string) ([32]byte, error) {
	var h [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid hash %q: expected 32 bytes, got %d", s, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// parseMapType maps the --type flag to a map type and the leaf type used
// for imported items.
func parseMapType(s string) (shamap.Type, shamap.NodeType, error) {
	switch strings.ToLower(s) {
	case "state", "account_state", "":
		return shamap.TypeState, shamap.NodeTypeAccountState, nil
	case "tx", "transaction":
		return shamap.TypeTransaction, shamap.NodeTypeTransactionWithMeta, nil
	default:
		return 0, 0, fmt.Errorf("unknown map type %q (expected state or tx)", s)
	}
}
