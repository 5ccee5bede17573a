package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"likesync/pkg/auth"
	"likesync/pkg/config"
	"likesync/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage likesync configuration files.

Configuration is layered, highest priority first:
  - Command line flags
  - Environment variables (LIKESYNC_*, also read from .env)
  - Configuration file
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	Long: `Write every option with its default value to 'likesync.yaml', or to
the path given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from all sources and check it.

Besides value checks this warns when the output directory is not writable
or no bearer token can be found.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const configHeader = `# likesync configuration
#
# Every key can be overridden by a LIKESYNC_* environment variable, for
# example LIKESYNC_OUTPUT_DIR or LIKESYNC_MAX_REQUESTS. The bearer token is
# not stored here; use 'likesync auth login' or LIKESYNC_BEARER_TOKEN.

`

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "likesync.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := writeDefaultConfig(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(ui.Output, "\nNext steps:")
	fmt.Fprintln(ui.Output, "1. Store a bearer token with 'likesync auth login'")
	fmt.Fprintln(ui.Output, "2. Run 'likesync config validate'")
	fmt.Fprintln(ui.Output, "3. Sync with 'likesync sync -u <user>'")
	return nil
}

// writeDefaultConfig writes the default configuration with a header
func writeDefaultConfig(path string) error {
	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, append([]byte(configHeader), data...), 0644)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprintln(ui.Output)
	fmt.Fprint(ui.Output, string(data))

	source := config.FindConfigFile()
	if configFile != "" {
		source = configFile
	}
	if source == "" {
		source = "(none found)"
	}
	fmt.Fprintln(ui.Output)
	ui.PrintInfo("Configuration file", source)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(nil)
	if err != nil {
		return err
	}

	warnings := configWarnings(cfg)
	if _, err := resolveToken(""); err != nil {
		warnings = append(warnings, fmt.Sprintf("no bearer token (set %s or run 'likesync auth login')", auth.TokenEnvVars[0]))
	}

	for _, w := range warnings {
		ui.PrintWarning("Warning", w)
	}
	ui.PrintSuccess("Configuration is valid")
	return nil
}

// configWarnings reports settings that load fine but will likely fail a run
func configWarnings(cfg *config.Config) []string {
	var warnings []string

	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		warnings = append(warnings, fmt.Sprintf("output directory cannot be created: %v", err))
	} else if f, err := os.CreateTemp(cfg.Output.BaseDirectory, ".likesync-write-test-*"); err != nil {
		warnings = append(warnings, fmt.Sprintf("output directory is not writable: %v", err))
	} else {
		f.Close()
		os.Remove(f.Name())
	}

	if cfg.RateLimit.MaxRequestsPerRun == 0 {
		warnings = append(warnings, "max_requests_per_run is 0; a run continues until the likes are exhausted")
	}
	if cfg.RateLimit.RequestsPerWindow > 75 && cfg.RateLimit.Window <= 15*time.Minute {
		warnings = append(warnings, "more than 75 requests per 15 minutes exceeds the liked posts endpoint limit")
	}
	return warnings
}
