// Package export renders transaction listings as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/boddenberg/vantage-api/internal/domain"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Transactions"

// ContentTypeXLSX is the MIME type for the workbook written by TransactionsXLSX.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []any{"Date", "Type", "Category", "Description", "Amount", "Payment Method"}

// TransactionsXLSX writes txns into a single-sheet workbook.
// Amounts are written as numbers, signed negative for expenses, with a
// totals row at the bottom.
func TransactionsXLSX(w io.Writer, txns []domain.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "F1", bold); err != nil {
		return err
	}

	for i, t := range txns {
		amount, _ := t.Amount.Float64()
		if t.Kind == domain.KindExpense {
			amount = -amount
		}
		row := []any{t.OccurredOn.String(), string(t.Kind), t.Category, t.Description, amount, t.PaymentMethod}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	last := len(txns) + 1
	totalRow := last + 1
	totalLabel, _ := excelize.CoordinatesToCellName(4, totalRow)
	totalCell, _ := excelize.CoordinatesToCellName(5, totalRow)
	if err := f.SetCellValue(sheetName, totalLabel, "Net"); err != nil {
		return err
	}
	if len(txns) > 0 {
		if err := f.SetCellFormula(sheetName, totalCell, fmt.Sprintf("SUM(E2:E%d)", last)); err != nil {
			return err
		}
	} else if err := f.SetCellValue(sheetName, totalCell, 0); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "E2", totalCell, money); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, totalLabel, totalCell, bold); err != nil {
		return err
	}
	_ = f.SetColWidth(sheetName, "A", "A", 12)
	_ = f.SetColWidth(sheetName, "C", "D", 24)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
