// Package export renders a user's ledger as an Excel workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"financeflow/internal/core"
	"financeflow/internal/ledger"
)

const (
	EntriesSheet = "Entries"
	SummarySheet = "Summary"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var entryHeader = []any{"ID", "Date", "Title", "Category", "Amount", "Status"}

// WriteXLSX writes an Entries sheet with one row per entry in the given order
// and a Summary sheet with the reconciled totals.
func WriteXLSX(w io.Writer, owner core.User, entries []core.Entry, totals ledger.Totals) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", EntriesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := f.SetSheetRow(EntriesSheet, "A1", &entryHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(EntriesSheet, "A1", "F1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			e.ID,
			e.OccurredAt.Format("2006-01-02"),
			e.Title,
			e.Category,
			e.Amount.InexactFloat64(),
			string(e.Status()),
		}
		if err := f.SetSheetRow(EntriesSheet, cell, &row); err != nil {
			return fmt.Errorf("write entry %d: %w", e.ID, err)
		}
	}
	if len(entries) > 0 {
		last := fmt.Sprintf("E%d", len(entries)+1)
		if err := f.SetCellStyle(EntriesSheet, "E2", last, money); err != nil {
			return fmt.Errorf("style amounts: %w", err)
		}
	}
	_ = f.SetColWidth(EntriesSheet, "C", "C", 32)
	_ = f.SetColWidth(EntriesSheet, "D", "D", 18)

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summary := [][]any{
		{"Owner", owner.Email},
		{"Currency", owner.Currency()},
		{"Declared balance", totals.Balance.InexactFloat64()},
		{"Spent", totals.Spent.InexactFloat64()},
		{"Saved", totals.Saved.InexactFloat64()},
		{"Remaining", totals.Remaining.InexactFloat64()},
		{"Pending entries", totals.PendingCount},
		{"Covered entries", totals.CoveredCount},
	}
	for i, row := range summary {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}
	if err := f.SetCellStyle(SummarySheet, "B3", "B6", money); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}
	_ = f.SetColWidth(SummarySheet, "A", "B", 24)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
