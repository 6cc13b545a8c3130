package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/tradequorum/quorum-bot/internal/portfolio"
	"github.com/tradequorum/quorum-bot/internal/session"
)

// ExcelReporter writes a session workbook with a summary sheet and a
// positions sheet.
type ExcelReporter struct{}

// NewExcelReporter creates an Excel reporter.
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

type excelStyles struct {
	header   int
	currency int
	percent  int
}

// WriteSessionXLSX writes the session summary workbook to path.
func (r *ExcelReporter) WriteSessionXLSX(s *session.Session, snap portfolio.Snapshot, path string) error {
	if s == nil {
		return fmt.Errorf("no session to report")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const positionsSheet = "Positions"

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	fx.NewSheet(positionsSheet)

	styles, err := r.createStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeSummarySheet(fx, summarySheet, s, snap, styles); err != nil {
		return err
	}
	if err := r.writePositionsSheet(fx, positionsSheet, snap, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.currency, err = fx.NewStyle(&excelize.Style{
		NumFmt: 7,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.percent, err = fx.NewStyle(&excelize.Style{
		NumFmt: 9,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	return styles, err
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, s *session.Session, snap portfolio.Snapshot, styles excelStyles) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Session ID", s.ID},
		{"Started", s.StartTime.Format("2006-01-02 15:04:05")},
		{"Ended", s.EndTime.Format("2006-01-02 15:04:05")},
		{"Trades", s.TradesCount},
		{"Final Balance", snap.Balance},
		{"Final Equity", snap.Equity},
		{"Daily Realized PnL", snap.DailyRealizedPnL},
		{"Unrealized PnL", snap.UnrealizedPnL},
		{"Peak Equity", snap.PeakEquity},
		{"Drawdown %", snap.DrawdownPct / 100},
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	if err := fx.SetCellStyle(sheet, "A1", "B1", styles.header); err != nil {
		return err
	}
	fx.SetCellStyle(sheet, "B6", "B10", styles.currency)
	fx.SetCellStyle(sheet, "B11", "B11", styles.percent)
	fx.SetColWidth(sheet, "A", "A", 22)
	fx.SetColWidth(sheet, "B", "B", 24)
	return nil
}

func (r *ExcelReporter) writePositionsSheet(fx *excelize.File, sheet string, snap portfolio.Snapshot, styles excelStyles) error {
	header := []interface{}{"Symbol", "Quantity", "Entry Price", "Current Price", "Stop Loss", "Take Profit", "Unrealized PnL", "Opened At"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "A1", "H1", styles.header); err != nil {
		return err
	}

	for i, pos := range snap.Positions {
		row := []interface{}{
			pos.Symbol,
			pos.Quantity,
			pos.EntryPrice,
			pos.CurrentPrice,
			pos.StopLoss,
			pos.TakeProfit,
			pos.UnrealizedPnL,
			pos.OpenedAt.Format("2006-01-02 15:04:05"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	if len(snap.Positions) > 0 {
		last := len(snap.Positions) + 1
		fx.SetCellStyle(sheet, "C2", fmt.Sprintf("G%d", last), styles.currency)
	}
	fx.SetColWidth(sheet, "A", "H", 16)
	return nil
}
