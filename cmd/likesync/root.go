package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"likesync/pkg/config"
	"likesync/pkg/logger"
	"likesync/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "likesync",
	Short: "Resumable sync of a user's liked posts",
	Long: `likesync walks a user's liked posts page by page, downloads every native
image and records the URL of posts without one.

Progress is committed after every page, so an interrupted or rate limited
run picks up where it stopped and never fetches a committed post twice.

State lives under <output>/<user id>/:
  persistent_data.json   pagination cursor and counters
  known_posts/           processed post ids
  external_urls.txt      posts without native media`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.Output = io.Discard
		}
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./likesync.yaml or ~/.config/likesync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`likesync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig layers the config sources, adds the global flags and sets up
// the global logger
func loadConfig(flags map[string]interface{}) (*config.Config, logger.Logger, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.GetLogger(), nil
}
