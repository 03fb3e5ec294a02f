// Package cmd provides the command-line interface for treescope with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. TREESCOPE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (TREESCOPE_SERVER_PORT, etc.)
//	4. Configuration files (.treescope.yml) - lowest priority
//
// Environment Variables:
//
//	TREESCOPE_CONFIG_FILE: Path to custom configuration file
//	TREESCOPE_SERVER_PORT: Override server port
//	TREESCOPE_SERVER_HOST: Override server host
//	TREESCOPE_INGEST_SESSION_FILE: Session log to follow
//	And so on following the TREESCOPE_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/treescope/internal/config"
	"github.com/conneroisu/treescope/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "treescope",
	Short: "A live component-tree inspector",
	Long: `Treescope mirrors a dynamically changing component hierarchy by integer id
and lets you watch it change: per-node subscriptions, whole-tree change
notification, and debounced subtree membership deltas over a websocket.

Key Features:
  • Live tree mirror driven by JSON-line mutation events
  • Inspector server with websocket delta streaming
  • Session log recording, replay and tailing
  • HTML document import for seeding demo trees
  • Document-order traversal and wraparound search

Quick Start:
  treescope serve                   Start the inspector server
  treescope replay session.jsonl    Replay a recorded session
  treescope dump session.jsonl      Print the resulting tree
  treescope config                  Show the effective configuration

Documentation: https://github.com/conneroisu/treescope`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().SetNormalizeFunc(normalizeFlags)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .treescope.yml, can also use TREESCOPE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// normalizeFlags accepts underscore spellings like --log_level for --log-level.
func normalizeFlags(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// initConfig initializes the configuration system.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. TREESCOPE_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .treescope.yml in current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TREESCOPE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".treescope")
	}

	// Enable automatic environment variable binding with TREESCOPE_ prefix
	// Examples: TREESCOPE_SERVER_PORT, TREESCOPE_MIRROR_DEBOUNCE
	viper.SetEnvPrefix("TREESCOPE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or malformed config file degrades to defaults without failing.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from loaded configuration.
func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
