package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HMasataka/dashsync/internal/config"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dashsync",
	Short: "Keeps simulated vehicle dashboards in sync",
	Long: `dashsync relays shared dashboard state between browser tabs.

  serve: runs the broadcast hub
  tab:   runs an interactive dashboard tab in the terminal

Settings come from defaults, then the --config file, then DASHSYNC_* variables.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main().
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file, yaml or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig reads the configuration and applies the persistent flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: cfgFile})
	if err != nil {
		return nil, err
	}
	applyRootFlags(cfg)
	return cfg, nil
}

func applyRootFlags(cfg *config.Config) {
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
