// Command tabular serves, loads and checks sparse tabular datasets.
package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-tabular/tabular/annotations"
	"github.com/wbrown/janus-tabular/tabular/logger"
)

var (
	config     = NewConfig()
	configPath string
	verbose    bool

	// flag values, applied over the config file only when set
	flagBackend      string
	flagDataDir      string
	flagIndexWorkers int
	flagLogJSON      bool
)

var rootCmd = &cobra.Command{
	Use:   "tabular",
	Short: "Sparse tabular fact store with transposed views",
	Long: `tabular stores sparse (row, column, value, timestamp) facts and serves
direct and transposed views of them.

Examples:
  tabular serve --config tabular.toml     # Start the control API
  tabular load reddit.csv.gz --transpose  # Load a file and query its transpose
  tabular verify reddit.csv.gz            # Check T(T(D)) answers like D`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if err := config.DecodeFile(configPath); err != nil {
				return errors.Wrapf(err, "failed to read config %s", configPath)
			}
		}
		flags := cmd.Flags()
		if flags.Changed("backend") {
			config.Backend = flagBackend
		}
		if flags.Changed("data-dir") {
			config.DataDir = flagDataDir
		}
		if flags.Changed("index-workers") {
			config.IndexWorkers = flagIndexWorkers
		}
		if flags.Changed("log-json") {
			config.LogJSON = flagLogJSON
		}
		if err := config.Validate(); err != nil {
			return err
		}
		if err := logger.Initialize(config.LogJSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	pf.StringVar(&flagBackend, "backend", DefaultBackend, "storage backend for new datasets (memory, badger)")
	pf.StringVar(&flagDataDir, "data-dir", "", "badger data directory (empty keeps badger in memory)")
	pf.IntVar(&flagIndexWorkers, "index-workers", DefaultIndexWorkers, "workers building transposed indexes (0 = NumCPU)")
	pf.BoolVar(&flagLogJSON, "log-json", false, "log JSON lines instead of console output")
	pf.BoolVarP(&verbose, "verbose", "v", false, "print store, view and query annotations")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(verifyCmd)
}

// annotationHandler prints annotations when verbose and logs them otherwise
func annotationHandler() annotations.Handler {
	if verbose {
		return annotations.NewOutputFormatter(os.Stderr).Handle
	}
	return logger.EventHandler()
}

func errorf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
