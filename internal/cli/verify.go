package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goshamap/internal/config"
	"github.com/LeJamon/goshamap/internal/storage/nodestore"
)

var (
	verifyType string
	verifyRoot string
	verifyStop bool
)

var errVerifyFailed = errors.New("verification failed")

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the integrity of the node store",
	Long: `Walk every node in the configured node store and check that its
stored bytes hash to its key. With --root the map with that root hash is
also loaded in full and its tree structure checked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cfg, cmd.OutOrStdout(), verifyOptions{
			mapType: verifyType,
			root:    verifyRoot,
			stop:    verifyStop,
		})
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVarP(&verifyType, "type", "t", "state", "Map type: state or tx")
	verifyCmd.Flags().StringVar(&verifyRoot, "root", "", "Also check the structure of the map with this root hash")
	verifyCmd.Flags().BoolVar(&verifyStop, "stop", false, "Stop at the first corrupt node")
}

type verifyOptions struct {
	mapType string
	root    string
	stop    bool
}

func runVerify(c *config.Config, w io.Writer, opts verifyOptions) error {
	env, err := openStore(c, "")
	if err != nil {
		return err
	}
	defer env.Close()

	vopts := nodestore.DefaultVerifyOptions()
	vopts.StopOnFirstError = opts.stop
	vopts.ProgressCallback = func(n int64) {
		env.log.WithField("nodes", n).Info("verifying node store")
	}

	result, err := nodestore.Verify(env.db.Backend(), vopts)
	if err != nil && result == nil {
		return err
	}
	fmt.Fprintln(w, result.String())
	for _, h := range result.CorruptHashes {
		fmt.Fprintf(w, "  corrupt: %X\n", h)
	}
	if err != nil {
		return err
	}
	if !result.IsValid() {
		return errVerifyFailed
	}

	if opts.root == "" {
		return nil
	}
	root, err := parseHash(opts.root)
	if err != nil {
		return err
	}
	mapType, _, err := parseMapType(opts.mapType)
	if err != nil {
		return err
	}
	sm, err := env.loadMap(root, mapType)
	if err != nil {
		return err
	}
	if err := sm.Invariants(); err != nil {
		fmt.Fprintf(w, "Map %X: %v\n", root, err)
		return errVerifyFailed
	}
	fmt.Fprintf(w, "Map %X: structure OK\n", root)
	return nil
}
