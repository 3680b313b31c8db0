package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Inspect or reset the safety breaker",
}

var breakerResetYes bool

var breakerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Re-arm a tripped breaker",
	Long: `Reset clears the kill switch, the recorded trip reasons, the loss streak and
the recorded initial capital, and restarts the runtime clock.

Stop the gate before resetting; a running gate keeps its own in-memory state.`,
	Args: cobra.NoArgs,
	RunE: runBreakerReset,
}

func init() {
	rootCmd.AddCommand(breakerCmd)
	breakerCmd.AddCommand(breakerResetCmd)
	breakerResetCmd.Flags().BoolVarP(&breakerResetYes, "yes", "y", false, "confirm the reset")
}

func runBreakerReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	breaker, err := openBreaker(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	before := breaker.Status()
	renderBreaker(out, before)
	if !breakerResetYes {
		return fmt.Errorf("refusing to reset without --yes")
	}

	breaker.Reset()
	fmt.Fprintf(out, "Breaker re-armed (was %s)\n", before.State)
	return nil
}
