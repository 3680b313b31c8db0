package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/crypto-trade-gate/internal/config"
	"github.com/ducminhle1904/crypto-trade-gate/internal/journal"
	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
	"github.com/ducminhle1904/crypto-trade-gate/internal/state"
)

var statusRecent int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted ledger, breaker and recent decisions",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVarP(&statusRecent, "recent", "n", 10, "number of journal decisions to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	capital, err := openLedger(cfg)
	if err != nil {
		return err
	}
	breaker, err := openBreaker(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	renderLedger(out, capital.Status())
	renderBreaker(out, breaker.Status())

	if !cfg.Journal.Enabled || statusRecent <= 0 {
		return nil
	}
	if _, err := os.Stat(cfg.Journal.Path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	j, err := journal.NewSQLite(cfg.Journal.Path, nil)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	decisions, err := j.ListDecisions(context.Background(), statusRecent)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}
	renderDecisions(out, decisions)
	return nil
}

// openLedger loads the persisted ledger without a logger, so reading state
// leaves no trace in the trading log
func openLedger(cfg *config.GateConfig) (*ledger.CapitalLedger, error) {
	store, err := state.NewFileStore(cfg.LedgerStatePath())
	if err != nil {
		return nil, fmt.Errorf("ledger state: %w", err)
	}
	return ledger.NewCapitalLedger(cfg.Ledger, store, nil), nil
}

func openBreaker(cfg *config.GateConfig) (*safety.SafetyBreaker, error) {
	store, err := state.NewFileStore(cfg.BreakerStatePath())
	if err != nil {
		return nil, fmt.Errorf("breaker state: %w", err)
	}
	return safety.NewSafetyBreaker(cfg.Breaker, store, nil), nil
}

func renderLedger(out io.Writer, s ledger.Status) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("CAPITAL LEDGER")
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"💰 Total", fmt.Sprintf("$%.2f", s.Total)},
		{"🔒 Reserved", fmt.Sprintf("$%.2f", s.Reserved)},
		{"✅ Available", fmt.Sprintf("$%.2f", s.Available)},
		{"📏 Max per order", fmt.Sprintf("%.1f%%", s.MaxFraction*100)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()
}

func renderBreaker(out io.Writer, s safety.BreakerStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("SAFETY BREAKER")
	t.SetStyle(table.StyleRounded)

	stateLabel := "🟢 " + s.State
	if s.KillSwitchActive {
		stateLabel = "🔴 " + s.State
	}
	t.AppendRows([]table.Row{
		{"State", stateLabel},
		{"Consecutive losses", s.ConsecutiveLosses},
		{"Initial capital", fmt.Sprintf("$%.2f", s.InitialCapital)},
		{"Started", s.StartTime.Format("2006-01-02 15:04:05")},
	})
	for i, r := range s.EmergencyReasons {
		t.AppendRow(table.Row{fmt.Sprintf("Reason %d", i+1), r.String()})
	}
	t.Render()
}

func renderDecisions(out io.Writer, decisions []journal.Decision) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("RECENT DECISIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Kind", "Status", "Action", "Price", "Notional", "Reason"})
	for _, d := range decisions {
		t.AppendRow(table.Row{
			d.Time.Format("01-02 15:04:05"),
			d.Kind,
			d.Status,
			d.Action,
			fmt.Sprintf("%.4f", d.Price),
			fmt.Sprintf("$%.2f", d.Notional),
			d.Reason,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, WidthMax: 60},
	})
	t.Render()
}
