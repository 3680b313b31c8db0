package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const (
	decisionsSheet = "Decisions"
	tradesSheet    = "Trades"
	summarySheet   = "Summary"
)

type excelStyles struct {
	header   int
	currency int
	percent  int
	loss     int
}

// ExportXLSX writes every decision and trade to an Excel workbook at path
func (j *SQLiteJournal) ExportXLSX(ctx context.Context, path string) error {
	decisions, err := j.ListDecisions(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to load decisions: %w", err)
	}
	trades, err := j.ListTrades(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trades: %w", err)
	}
	return WriteXLSX(path, decisions, trades)
}

// WriteXLSX writes the given rows to a workbook with Summary, Trades and
// Decisions sheets
func WriteXLSX(path string, decisions []Decision, trades []TradeRecord) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	if _, err := fx.NewSheet(tradesSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(decisionsSheet); err != nil {
		return err
	}

	styles, err := createStyles(fx)
	if err != nil {
		return err
	}

	if err := writeSummary(fx, decisions, trades, styles); err != nil {
		return err
	}
	if err := writeTrades(fx, trades, styles); err != nil {
		return err
	}
	if err := writeDecisions(fx, decisions, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func createStyles(fx *excelize.File) (excelStyles, error) {
	var s excelStyles
	var err error

	s.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return s, err
	}

	s.currency, err = fx.NewStyle(&excelize.Style{NumFmt: 7})
	if err != nil {
		return s, err
	}

	// return_pct is stored in percent units
	customPct := `0.00"%"`
	s.percent, err = fx.NewStyle(&excelize.Style{CustomNumFmt: &customPct})
	if err != nil {
		return s, err
	}

	s.loss, err = fx.NewStyle(&excelize.Style{NumFmt: 7, Font: &excelize.Font{Color: "FF0000"}})
	return s, err
}

func writeHeader(fx *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, style)
	}
}

func writeRow(fx *excelize.File, sheet string, row int, values []interface{}) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		fx.SetCellValue(sheet, cell, v)
	}
}

func writeTrades(fx *excelize.File, trades []TradeRecord, s excelStyles) error {
	writeHeader(fx, tradesSheet, []string{
		"Position", "Symbol", "Side", "Size", "Entry Price", "Exit Price",
		"Cost", "Entry Time", "Exit Time", "PnL", "Return %", "Exit Type",
	}, s.header)

	for i, t := range trades {
		row := i + 2
		writeRow(fx, tradesSheet, row, []interface{}{
			t.PositionID, t.Symbol, t.Side, t.Size, t.EntryPrice, t.ExitPrice,
			t.Cost, t.EntryTime.Format("2006-01-02 15:04:05"), t.ExitTime.Format("2006-01-02 15:04:05"),
			t.RealizedPnL, t.ReturnPct, t.ExitType,
		})

		pnlCell, _ := excelize.CoordinatesToCellName(10, row)
		pnlStyle := s.currency
		if t.RealizedPnL < 0 {
			pnlStyle = s.loss
		}
		fx.SetCellStyle(tradesSheet, pnlCell, pnlCell, pnlStyle)
		pctCell, _ := excelize.CoordinatesToCellName(11, row)
		fx.SetCellStyle(tradesSheet, pctCell, pctCell, s.percent)
	}

	fx.SetColWidth(tradesSheet, "A", "A", 30)
	fx.SetColWidth(tradesSheet, "H", "I", 20)
	return nil
}

func writeDecisions(fx *excelize.File, decisions []Decision, s excelStyles) error {
	writeHeader(fx, decisionsSheet, []string{
		"Time", "Kind", "Status", "Symbol", "Action", "Price",
		"Confidence", "Notional", "Category", "Reason", "Order",
	}, s.header)

	for i, d := range decisions {
		writeRow(fx, decisionsSheet, i+2, []interface{}{
			d.Time.Format("2006-01-02 15:04:05"), d.Kind, d.Status, d.Symbol, d.Action, d.Price,
			d.Confidence, d.Notional, d.Category, d.Reason, d.OrderID,
		})
	}

	fx.SetColWidth(decisionsSheet, "A", "A", 20)
	fx.SetColWidth(decisionsSheet, "J", "J", 60)
	return nil
}

func writeSummary(fx *excelize.File, decisions []Decision, trades []TradeRecord, s excelStyles) error {
	counts := map[string]int{}
	for _, d := range decisions {
		counts[d.Status]++
	}

	var pnl float64
	wins := 0
	for _, t := range trades {
		pnl += t.RealizedPnL
		if t.RealizedPnL > 0 {
			wins++
		}
	}
	winRate := 0.0
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades)) * 100
	}

	writeHeader(fx, summarySheet, []string{"Metric", "Value"}, s.header)
	rows := [][]interface{}{
		{"Decisions", len(decisions)},
		{"Executed", counts["executed"]},
		{"Rejected", counts["rejected"]},
		{"Failed", counts["failed"]},
		{"Closed Trades", len(trades)},
		{"Win Rate %", winRate},
		{"Realized PnL", pnl},
	}
	for i, r := range rows {
		writeRow(fx, summarySheet, i+2, r)
	}
	pnlCell, _ := excelize.CoordinatesToCellName(2, len(rows)+1)
	fx.SetCellStyle(summarySheet, pnlCell, pnlCell, s.currency)

	fx.SetColWidth(summarySheet, "A", "A", 18)
	fx.SetColWidth(summarySheet, "B", "B", 14)
	return nil
}
