// Package cmd contains the CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/ska-telescope/ska-pst-send/internal/config"
	"github.com/ska-telescope/ska-pst-send/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	cfg           *config.Config
	dashboardFlag string
	scanTimeout   float64
	debugFlag     bool
	verboseFlag   bool
	quietFlag     bool
	noColorFlag   bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "ska-pst-send <local_path> <remote_path> <ska_subsystem>",
	Short: "ska-pst-send - PST voltage recorder data product egress",
	Long: `ska-pst-send watches a local staging filesystem for recorded PST scans,
post-processes each data and weights file pair into a statistics file,
transfers all data products to remote storage, notifies the SDP Data
Product Dashboard, and reclaims local storage once the scan is indexed.

The three positional arguments are the local data product path, the
remote data product path, and the PST instance (pst-low or pst-mid).`,
	Example: `  # Send pst-low scans, no dashboard
  ska-pst-send /mnt/lfs/product /mnt/sdp/product pst-low

  # Send with dashboard confirmation before local deletion
  ska-pst-send /mnt/lfs/product /mnt/sdp/product pst-low \
    --data_product_dashboard http://127.0.0.1:8888`,
	Args:          cobra.ExactArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if cmd.Flags().Changed("data_product_dashboard") {
			cfg.DataProductDashboard = dashboardFlag
		}
		if cmd.Flags().Changed("scan-timeout") {
			cfg.ScanTimeout = scanTimeout
		}
		if cmd.Flags().Changed("debug") {
			cfg.Debug = debugFlag
		}
		if cmd.Flags().Changed("verbose") {
			cfg.Verbose = verboseFlag
		}
		if cmd.Flags().Changed("quiet") {
			cfg.Quiet = quietFlag
		}
		if cmd.Flags().Changed("no-color") {
			cfg.NoColor = noColorFlag
		}

		configureLogging(cfg)

		return nil
	},
	RunE: func(_ *cobra.Command, args []string) error {
		return runSend(args[0], args[1], args[2])
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.config/ska-pst-send/ska-pst-send.ini)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")

	rootCmd.Flags().StringVar(&dashboardFlag, "data_product_dashboard", config.DashboardDisabled,
		"endpoint for the SDP Data Product Dashboard REST API, or disabled")
	rootCmd.Flags().Float64Var(&scanTimeout, "scan-timeout", 300,
		"seconds without filesystem activity before a scan is considered inactive")
}

func configureLogging(cfg *config.Config) {
	var level logging.Level
	switch {
	case cfg.Quiet:
		level = logging.LevelError
	case cfg.Debug:
		level = logging.LevelDebug
	case cfg.Verbose:
		level = logging.LevelVerbose
	default:
		level = logging.LevelInfo
	}
	logging.SetDefaultLevel(level)
	logging.SetDefaultColored(!cfg.NoColor)
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}
