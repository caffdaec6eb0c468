package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LeJamon/goshamap/internal/config"
	"github.com/LeJamon/goshamap/internal/log"
	"github.com/LeJamon/goshamap/internal/shamap"
)

var (
	syncType   string
	syncSource string
	syncPack   string
	syncSeq    uint32
)

// errSyncStalled is returned when a round of replies adds no new node.
var errSyncStalled = errors.New("sync stalled: source returned no useful nodes")

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync <root>",
	Short: "Reconstruct a map from another node store",
	Long: `Reconstruct the map with the given root hash in the configured node
store. Missing nodes are requested round by round from a source node store
that plays the part of a peer: every reply is verified against the hashes
already held before it is accepted and stored.

A fetch pack written by the fetchpack command can supply nodes as well,
with or without a source store.

Examples:
    shamapd sync <root> --source /var/lib/other/nodestore
    shamapd sync <root> --pack ledger.pack
    shamapd sync <root> --source /backup/nodestore --pack delta.pack`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := parseHash(args[0])
		if err != nil {
			return err
		}
		stats, err := runSync(cmd.Context(), cfg, root, syncOptions{
			mapType: syncType,
			source:  syncSource,
			pack:    syncPack,
			seq:     syncSeq,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Synced %X in %d rounds\n", root, stats.Rounds)
		fmt.Fprintf(out, "Nodes: %s\n", stats.Result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&syncType, "type", "t", "state", "Map type: state or tx")
	syncCmd.Flags().StringVar(&syncSource, "source", "", "Path of the node store to fetch missing nodes from")
	syncCmd.Flags().StringVar(&syncPack, "pack", "", "Fetch pack file to take nodes from")
	syncCmd.Flags().Uint32Var(&syncSeq, "seq", 0, "Ledger sequence recorded with the stored nodes")
}

type syncOptions struct {
	mapType string
	source  string
	pack    string
	seq     uint32
}

type syncStats struct {
	Rounds int
	Result shamap.AddNodeResult
}

func loadFetchPack(path string) (*shamap.FetchPack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return shamap.DecodeFetchPack(f)
}

// peer serves node requests from a map in another store. Each worker
// borrows its own immutable view so requests do not serialize on one map.
type peer struct {
	env   *storeEnv
	views chan *shamap.SHAMap
}

func openPeer(c *config.Config, path string, root [32]byte, mapType shamap.Type) (*peer, error) {
	env, err := openStore(c, path)
	if err != nil {
		return nil, err
	}
	sm, err := env.loadMap(root, mapType)
	if err != nil {
		env.Close()
		return nil, err
	}

	workers := max(c.Sync.Workers, 1)
	p := &peer{env: env, views: make(chan *shamap.SHAMap, workers)}
	for range workers {
		view, err := sm.Snapshot(false)
		if err != nil {
			env.Close()
			return nil, err
		}
		p.views <- view
	}
	return p, nil
}

func (p *peer) getNodeFat(id shamap.NodeID, fatLeaves bool, depth int) ([]shamap.NodeData, error) {
	view := <-p.views
	defer func() { p.views <- view }()
	return view.GetNodeFat(id, fatLeaves, depth)
}

func (p *peer) rootNode() []byte {
	view := <-p.views
	defer func() { p.views <- view }()
	return view.SerializeRoot()
}

func (p *peer) Close() error {
	return p.env.Close()
}

func runSync(ctx context.Context, c *config.Config, root [32]byte, opts syncOptions) (*syncStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	mapType, _, err := parseMapType(opts.mapType)
	if err != nil {
		return nil, err
	}

	var filter shamap.SyncFilter
	if opts.pack != "" {
		pack, err := loadFetchPack(opts.pack)
		if err != nil {
			return nil, fmt.Errorf("failed to load fetch pack %s: %w", opts.pack, err)
		}
		filter = pack
	}

	env, err := openStore(c, "")
	if err != nil {
		return nil, err
	}
	defer env.Close()

	var src *peer
	if opts.source != "" {
		src, err = openPeer(c, opts.source, root, mapType)
		if err != nil {
			return nil, fmt.Errorf("failed to open source: %w", err)
		}
		defer src.Close()
	}

	dst := shamap.NewSyncing(mapType, env.options(shamap.WithLedgerSeq(opts.seq))...)
	stats := &syncStats{}

	found, err := dst.FetchRoot(root, filter)
	if err != nil {
		return nil, err
	}
	if !found {
		if src == nil {
			return nil, fmt.Errorf("root %X not found locally and no source given", root)
		}
		res, err := dst.AddRootNode(root, src.rootNode(), filter)
		if err != nil {
			return nil, err
		}
		if res.IsInvalid() {
			return nil, fmt.Errorf("source returned an invalid root for %X", root)
		}
		stats.Result.Combine(res)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		missing, err := dst.GetMissingNodes(c.Sync.MaxMissing, filter)
		if err != nil {
			return nil, err
		}
		if len(missing) == 0 {
			break
		}
		if src == nil {
			return nil, fmt.Errorf("%d nodes missing and no source given", len(missing))
		}

		replies, err := fetchMissing(ctx, src, missing, c.Sync)
		if err != nil {
			return nil, err
		}

		var round shamap.AddNodeResult
		for _, nodes := range replies {
			for _, nd := range nodes {
				res, err := dst.AddKnownNode(nd.NodeID, nd.Data, filter)
				if err != nil {
					return nil, err
				}
				round.Combine(res)
			}
		}
		stats.Rounds++
		stats.Result.Combine(round)

		env.log.WithFields(log.Fields(
			"round", stats.Rounds,
			"requested", len(missing),
			"good", round.Good,
			"bad", round.Bad,
			"duplicate", round.Duplicate,
		)).Debug("sync round")

		if !round.IsUseful() {
			return nil, errSyncStalled
		}
	}

	if err := env.db.Sync(); err != nil {
		return nil, err
	}
	if got := dst.Hash(); got != root {
		return nil, fmt.Errorf("synced map hashes to %X, expected %X", got, root)
	}

	env.log.WithFields(log.Fields(
		"root", fmt.Sprintf("%X", root),
		"rounds", stats.Rounds,
		"nodes", stats.Result.Good,
	)).Info("map synced")
	return stats, nil
}

// fetchMissing asks src for every missing position, up to cfg.Workers
// requests at a time. Replies are returned in request order.
func fetchMissing(ctx context.Context, src *peer, missing []shamap.MissingNode, cfg config.SyncConfig) ([][]shamap.NodeData, error) {
	replies := make([][]shamap.NodeData, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, m := range missing {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			nodes, err := src.getNodeFat(m.NodeID, cfg.FatLeaves, cfg.FatDepth)
			if err != nil {
				return fmt.Errorf("source request for %s: %w", m.NodeID, err)
			}
			replies[i] = nodes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return replies, nil
}
