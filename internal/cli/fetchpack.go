package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goshamap/internal/config"
	"github.com/LeJamon/goshamap/internal/shamap"
)

var (
	packType   string
	packHave   string
	packOut    string
	packLeaves bool
	packMax    int
)

// fetchpackCmd represents the fetchpack command
var fetchpackCmd = &cobra.Command{
	Use:   "fetchpack <root>",
	Short: "Write the nodes of a stored map to a fetch pack",
	Long: `Collect the nodes of the map with the given root hash into a fetch
pack file. With --have only the nodes missing from that second map are
collected, which is what a peer holding the older map needs to catch up.
The pack is consumed by sync --pack.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := parseHash(args[0])
		if err != nil {
			return err
		}
		var have *[32]byte
		if packHave != "" {
			h, err := parseHash(packHave)
			if err != nil {
				return err
			}
			have = &h
		}

		n, err := runFetchPack(cfg, root, have, packOptions{
			mapType: packType,
			out:     packOut,
			leaves:  packLeaves,
			max:     packMax,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d nodes written to: %s\n", n, packOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchpackCmd)

	fetchpackCmd.Flags().StringVarP(&packType, "type", "t", "state", "Map type: state or tx")
	fetchpackCmd.Flags().StringVar(&packHave, "have", "", "Root hash of a map the receiver already holds")
	fetchpackCmd.Flags().StringVarP(&packOut, "out", "o", "", "Output file")
	fetchpackCmd.Flags().BoolVar(&packLeaves, "leaves", true, "Include leaf nodes")
	fetchpackCmd.Flags().IntVar(&packMax, "max", 0, "Maximum number of nodes, 0 for no limit")
	fetchpackCmd.MarkFlagRequired("out")
}

type packOptions struct {
	mapType string
	out     string
	leaves  bool
	max     int
}

func runFetchPack(c *config.Config, root [32]byte, have *[32]byte, opts packOptions) (int, error) {
	mapType, _, err := parseMapType(opts.mapType)
	if err != nil {
		return 0, err
	}
	env, err := openStore(c, "")
	if err != nil {
		return 0, err
	}
	defer env.Close()

	sm, err := env.loadMap(root, mapType)
	if err != nil {
		return 0, err
	}
	var haveMap *shamap.SHAMap
	if have != nil {
		if haveMap, err = env.loadMap(*have, mapType); err != nil {
			return 0, err
		}
	}

	pack, err := sm.GetFetchPack(haveMap, opts.leaves, opts.max)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return 0, err
	}
	if err := pack.Encode(f); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to encode fetch pack: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return pack.Len(), nil
}
