package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openabap/adtflow/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or initialize adtflow configuration",
	Long: `View or initialize adtflow configuration.

Without arguments, displays the resolved configuration.
Use subcommands to create a config file or show its location.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/adtflow/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Validate before dumping so broken values are reported, not printed.
	if _, err := config.Load(); err != nil {
		return err
	}

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("# config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("# config file: (none - using defaults)\n")
	}

	out, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

const defaultConfigTemplate = `# adtflow configuration

connection:
  # Base URL of the ADT backend, e.g. https://vhcalnplci.dummy.nodomain:44300
  base_url: ""
  client: "001"
  language: "EN"
  user: ""
  # Name of the environment variable holding the logon password
  password_env: "ADTFLOW_PASSWORD"
  timeout_seconds: 45

state:
  # Directory for session files, the lock registry and logs
  dir: ".adtflow"
  # sessions_dir and lock_file default to paths under dir
  # sessions_dir: ""
  # lock_file: ""

session:
  # "auto" derives <label>_<millis>; any other value is used verbatim
  id_format: "auto"
  label: "run"

lifecycle:
  # Per-operation delays after each step, in milliseconds
  delays_ms:
    default: 2000
    create: 3000
    activate: 3000
  check_max_attempts: 5
  check_interval_ms: 1000
  retry_budget_seconds: 60

cleanup:
  # Delete the object at the end of a successful run
  after_run: true
  # Disable cleanup entirely, including compensating deletes
  skip: false
  # Keep the session file after a successful run
  keep_session: false

logging:
  # DEBUG, INFO, WARN or ERROR
  level: "INFO"
  max_size_mb: 10
  max_backups: 3
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	dir := config.ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if viper.ConfigFileUsed() != "" {
		fmt.Println(viper.ConfigFileUsed())
		return nil
	}
	fmt.Println("No config file in use. Searched:")
	fmt.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Printf("  2. $HOME/.config/adtflow/config.yaml\n")
	fmt.Printf("  3. ./config.yaml (current directory)\n")
	return nil
}
