package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/crypto-trade-gate/internal/config"
)

const defaultConfigPath = "configs/gate.yaml"

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "trade-gate",
	Short: "Risk and safety gate between trading signals and an exchange",
	Long: `trade-gate admits or rejects trading signals before they reach the venue.

Every signal passes the circuit breaker, a venue health probe, the risk
evaluator and the capital ledger before a market order is placed. A tripped
breaker halts trading until it is reset by hand.

Examples:
  trade-gate config init
  trade-gate run --config configs/gate.yaml
  trade-gate status
  trade-gate breaker reset`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "gate configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "environment file holding API keys")
}

// loadConfig reads the config file. A missing default file falls back to the
// built-in defaults; a missing explicit file is an error.
func loadConfig(cmd *cobra.Command) (*config.GateConfig, error) {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		fmt.Fprintf(cmd.ErrOrStderr(), "config %s not found, using defaults\n", configPath)
		return config.Parse(nil)
	}
	return config.Load(configPath)
}
