package cmd

import (
	"strings"

	"github.com/openabap/adtflow/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "adtflow",
	Short: "Lifecycle driver for remote ABAP repository objects",
	Long: `Adtflow drives ABAP repository artifacts through the full edit
lifecycle over ADT -- validate, create, lock, update, unlock, activate,
check, delete -- with compensating cleanup on failure. Session credentials
and lock ownership are persisted to disk, so a second process can recover
and release locks left behind by a crashed run.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/adtflow/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/adtflow")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ADTFLOW")
	// Replace dots with underscores for nested keys in env vars
	// e.g., ADTFLOW_CONNECTION_BASE_URL for connection.base_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
