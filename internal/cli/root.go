package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goshamap/internal/config"
	"github.com/LeJamon/goshamap/internal/log"
)

var (
	// Global flags
	configFile string
	debug      bool
	verbose    bool
	quiet      bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shamapd",
	Short: "shamapd - authenticated SHAMap store and sync tool",
	Long: `shamapd builds, stores, compares and synchronizes SHAMaps: 16-ary
Merkle radix trees keyed by 256-bit hashes, persisted in a content-addressed
node store (pebble, leveldb or memory).`,
	Version:           "0.1.0-dev",
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return initConfig() },
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path (default ./shamapd.toml if present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable normally suppressed debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
}

// initConfig reads in config file and ENV variables and sets up logging.
func initConfig() error {
	var err error
	if configFile != "" {
		cfg, err = config.LoadConfig(configFile)
	} else {
		cfg, err = config.LoadDefaultConfig()
	}
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	switch {
	case verbose:
		level = "trace"
	case debug:
		level = "debug"
	case quiet:
		level = "warn"
	}
	return log.Setup(level, cfg.Log.JSONLogs(), cfg.Log.Color)
}
