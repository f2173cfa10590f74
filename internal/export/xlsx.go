package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"taxfolio/internal/core"
)

// WriteXLSX builds a workbook with one sheet per record type plus an
// SA103S summary sheet, and saves it at path.
func WriteXLSX(path string, d Data) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummarySheet(f, d); err != nil {
		return err
	}
	if err := writeTransactionsSheet(f, d); err != nil {
		return err
	}
	if err := writeRecordsSheet(f, d); err != nil {
		return err
	}
	// The default sheet excelize creates is replaced by Summary.
	f.DeleteSheet("Sheet1")

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, d Data) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	rows := [][]any{
		{"Tax year", d.Year.Label()},
		{"Total income", pounds(d.Summary.TotalIncome.Pence)},
		{"Allowable expenses", pounds(d.Summary.TotalExpenses.Pence)},
		{"Disallowable expenses", pounds(d.Summary.DisallowedTotal.Pence)},
		{"Business miles", d.Summary.MileageMiles},
		{"Mileage allowance", pounds(d.Summary.MileageAllowance.Pence)},
		{"Gift Aid donations (gross)", pounds(d.Summary.DonationGross.Pence)},
		{"Net profit", pounds(d.Summary.NetProfit.Pence)},
		{},
		{"SA103S box", "Category", "Total"},
	}
	for _, ct := range d.Summary.ExpenseTotals {
		rows = append(rows, []any{ct.Box, ct.Label, pounds(ct.Total.Pence)})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("summary cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	return nil
}

func writeTransactionsSheet(f *excelize.File, d Data) error {
	const sheet = "Transactions"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create transactions sheet: %w", err)
	}

	rows := [][]any{{"Date", "Description", "Amount", "Category", "Business", "Status", "Notes"}}
	for _, t := range d.Transactions {
		rows = append(rows, []any{
			t.Date.ISO(), t.Description, pounds(t.Amount.Pence),
			t.Category.Label(), t.Business, string(t.Status), t.Notes,
		})
	}
	return writeRows(f, sheet, rows)
}

func writeRecordsSheet(f *excelize.File, d Data) error {
	const sheet = "Manual records"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create records sheet: %w", err)
	}

	rows := [][]any{{"Kind", "Date", "Description", "Amount", "Category", "Detail"}}
	for _, in := range d.Incomes {
		rows = append(rows, []any{"Income", in.Date.ISO(), in.Source, pounds(in.Amount.Pence), "", in.Reference})
	}
	for _, e := range d.Expenses {
		rows = append(rows, []any{"Expense", e.Date.ISO(), e.Description, pounds(e.Amount.Pence), e.Category.Label(), ""})
	}
	for _, mt := range d.Mileage {
		rows = append(rows, []any{
			"Mileage", mt.Date.ISO(), mt.Purpose, "",
			core.CategoryTravel.Label(),
			fmt.Sprintf("%.1f miles by %s", mt.Miles, mt.Vehicle),
		})
	}
	for _, dn := range d.Donations {
		detail := ""
		if dn.GiftAid {
			detail = "Gift Aid"
		}
		rows = append(rows, []any{"Donation", dn.Date.ISO(), dn.Charity, pounds(dn.GrossAmount().Pence), "", detail})
	}
	return writeRows(f, sheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row in %s: %w", sheet, err)
		}
	}
	return nil
}
