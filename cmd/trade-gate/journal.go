package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/crypto-trade-gate/internal/journal"
)

var (
	journalLimit int
	exportPath   string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query and export the decision journal",
	Long: `The journal records every decision the gate made and every realized trade
in a SQLite database.

Examples:
  trade-gate journal list -n 20
  trade-gate journal export -o reports/journal.xlsx`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent decisions",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export decisions and trades to an Excel workbook",
	Args:  cobra.NoArgs,
	RunE:  runJournalExport,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalExportCmd)

	journalListCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of decisions to list")
	journalExportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "workbook path (default reports/journal_<timestamp>.xlsx)")
}

func openJournal(cmd *cobra.Command) (*journal.SQLiteJournal, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	j, err := journal.NewSQLite(cfg.Journal.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	j, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	decisions, err := j.ListDecisions(context.Background(), journalLimit)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	if len(decisions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No decisions recorded")
		return nil
	}
	renderDecisions(cmd.OutOrStdout(), decisions)
	return nil
}

func runJournalExport(cmd *cobra.Command, args []string) error {
	j, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	path := exportPath
	if path == "" {
		path = filepath.Join("reports", fmt.Sprintf("journal_%s.xlsx", time.Now().Format("20060102_150405")))
	}
	if err := j.ExportXLSX(context.Background(), path); err != nil {
		return fmt.Errorf("export journal: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "📊 Journal exported to %s\n", path)
	return nil
}
