package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
)

var ledgerURL string

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manual capital overrides",
	Long: `Deposit adds capital, for example after a transfer into the account.
Release frees a reservation left behind by an order that never settled.

Without --url the persisted ledger file is edited; stop the gate first.
With --url the override is sent to a running gate's monitoring server.`,
}

var ledgerDepositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Add capital to the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLedgerOverride(cmd, args[0], "deposit", (*ledger.CapitalLedger).Deposit)
	},
}

var ledgerReleaseCmd = &cobra.Command{
	Use:   "release <amount>",
	Short: "Release reserved capital",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLedgerOverride(cmd, args[0], "release", (*ledger.CapitalLedger).Release)
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerDepositCmd)
	ledgerCmd.AddCommand(ledgerReleaseCmd)
	ledgerCmd.PersistentFlags().StringVar(&ledgerURL, "url", "", "monitoring server of a running gate, e.g. http://localhost:8080")
}

func runLedgerOverride(cmd *cobra.Command, arg, op string, apply func(*ledger.CapitalLedger, float64)) error {
	amount, err := strconv.ParseFloat(arg, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fmt.Errorf("amount must be a positive number, got %q", arg)
	}

	var status ledger.Status
	if ledgerURL != "" {
		status, err = postLedgerOverride(ledgerURL, op, amount)
		if err != nil {
			return err
		}
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		capital, err := openLedger(cfg)
		if err != nil {
			return err
		}
		apply(capital, amount)
		status = capital.Status()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s $%.2f applied\n", op, amount)
	renderLedger(cmd.OutOrStdout(), status)
	return nil
}

func postLedgerOverride(baseURL, op string, amount float64) (ledger.Status, error) {
	var status ledger.Status

	body, err := json.Marshal(map[string]float64{"amount": amount})
	if err != nil {
		return status, err
	}
	url := strings.TrimRight(baseURL, "/") + "/ledger/" + op

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return status, fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return status, fmt.Errorf("%s rejected (%d): %s", op, resp.StatusCode, apiErr.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode ledger status: %w", err)
	}
	return status, nil
}
