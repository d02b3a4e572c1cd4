package export

import (
	"bytes"
	"testing"

	"github.com/boddenberg/vantage-api/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestTransactionsXLSX(t *testing.T) {
	txns := []domain.Transaction{
		{Kind: domain.KindIncome, Amount: decimal.RequireFromString("1500.00"), Category: "salary", OccurredOn: domain.NewDate(2026, 3, 1)},
		{Kind: domain.KindExpense, Amount: decimal.RequireFromString("42.50"), Category: "food", Description: "groceries", OccurredOn: domain.NewDate(2026, 3, 2)},
	}

	var buf bytes.Buffer
	if err := TransactionsXLSX(&buf, txns); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("failed to read workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("failed to read rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows (header, 2 txns, total), got %d", len(rows))
	}
	if rows[0][0] != "Date" {
		t.Errorf("expected header Date, got %q", rows[0][0])
	}
	if rows[2][2] != "food" || rows[2][1] != "expense" {
		t.Errorf("unexpected expense row: %v", rows[2])
	}
	v, _ := f.GetCellValue(sheetName, "E3", excelize.Options{RawCellValue: true})
	if v != "-42.5" {
		t.Errorf("expected expense written as -42.5, got %q", v)
	}
	formula, _ := f.GetCellFormula(sheetName, "E4")
	if formula != "SUM(E2:E3)" {
		t.Errorf("expected SUM formula, got %q", formula)
	}
}

func TestTransactionsXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := TransactionsXLSX(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected a non-empty workbook")
	}
}
