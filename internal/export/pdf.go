package export

import (
	"fmt"

	"github.com/go-pdf/fpdf"
)

// WritePDF renders a printable year-end report: the SA103S totals page
// followed by the full transaction listing.
func WritePDF(path string, d Data) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Self-assessment records %s", d.Year.Label()), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Self-assessment records %s", d.Year.Label()))
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 11)
	summaryLine(pdf, "Total income", d.Summary.TotalIncome.Pence)
	summaryLine(pdf, "Allowable expenses", d.Summary.TotalExpenses.Pence)
	summaryLine(pdf, "Disallowable expenses", d.Summary.DisallowedTotal.Pence)
	summaryLine(pdf, "Mileage allowance", d.Summary.MileageAllowance.Pence)
	pdf.CellFormat(90, 7, "Business miles", "", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, fmt.Sprintf("%.1f", d.Summary.MileageMiles), "", 1, "R", false, 0, "")
	summaryLine(pdf, "Gift Aid donations (gross)", d.Summary.DonationGross.Pence)
	summaryLine(pdf, "Net profit", d.Summary.NetProfit.Pence)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "SA103S expense boxes")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 10)
	for _, ct := range d.Summary.ExpenseTotals {
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", ct.Box), "", 0, "L", false, 0, "")
		pdf.CellFormat(115, 6, ct.Label, "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, money(ct.Total.Pence), "", 1, "R", false, 0, "")
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Transactions")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 9)
	for _, t := range d.Transactions {
		desc := t.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		pdf.CellFormat(22, 5, t.Date.ISO(), "", 0, "L", false, 0, "")
		pdf.CellFormat(100, 5, desc, "", 0, "L", false, 0, "")
		pdf.CellFormat(35, 5, string(t.Category), "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 5, money(t.Amount.Pence), "", 1, "R", false, 0, "")
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf report: %w", err)
	}
	return nil
}

func summaryLine(pdf *fpdf.Fpdf, label string, pence int64) {
	pdf.CellFormat(90, 7, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, money(pence), "", 1, "R", false, 0, "")
}

func money(pence int64) string {
	return fmt.Sprintf("GBP %.2f", pounds(pence))
}
