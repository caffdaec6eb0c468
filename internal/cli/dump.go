package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goshamap/internal/config"
	"github.com/LeJamon/goshamap/internal/shamap"
)

var (
	dumpType   string
	dumpOutput string
)

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <root>",
	Short: "List the items of a stored map",
	Long: `Load the map with the given root hash from the node store and list
its items in key order, one "<key> <data>" pair per line. With --output the
items are written as a JSON state file instead, which import accepts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := parseHash(args[0])
		if err != nil {
			return err
		}
		n, err := runDump(cfg, cmd.OutOrStdout(), root, dumpType, dumpOutput)
		if err != nil {
			return err
		}
		if dumpOutput != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries written to: %s\n", n, dumpOutput)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&dumpType, "type", "t", "state", "Map type: state or tx")
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "", "Write a JSON state file instead of listing")
}

func runDump(c *config.Config, w io.Writer, root [32]byte, typ, output string) (int, error) {
	mapType, _, err := parseMapType(typ)
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

	sf := &StateFile{
		Root:    fmt.Sprintf("%X", root),
		Type:    typ,
		Entries: []StateFileEntry{},
	}
	err = sm.ForEach(func(item *shamap.Item) bool {
		key := item.Key()
		if output == "" {
			fmt.Fprintf(w, "%X %X\n", key, item.Data())
		}
		sf.Entries = append(sf.Entries, StateFileEntry{
			Index: fmt.Sprintf("%X", key),
			Data:  fmt.Sprintf("%X", item.Data()),
		})
		return true
	})
	if err != nil {
		return 0, err
	}

	if output != "" {
		if err := writeStateFile(output, sf); err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", output, err)
		}
	}
	return len(sf.Entries), nil
}
