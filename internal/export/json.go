package export

import (
	"encoding/json"
	"fmt"
	"io"

	"taxfolio/internal/core"
)

// jsonDocument is the machine-readable export shape. Amounts are emitted
// both in pence (exact) and pounds (convenient).
type jsonDocument struct {
	TaxYear   string            `json:"tax_year"`
	Summary   jsonSummary       `json:"summary"`
	Records   []jsonRecord      `json:"records"`
	Boxes     []jsonBoxTotal    `json:"sa103s_boxes"`
	Generated map[string]string `json:"generated,omitempty"`
}

type jsonSummary struct {
	TotalIncomePence      int64   `json:"total_income_pence"`
	TotalIncome           float64 `json:"total_income_gbp"`
	TotalExpensesPence    int64   `json:"total_expenses_pence"`
	TotalExpenses         float64 `json:"total_expenses_gbp"`
	MileageMiles          float64 `json:"mileage_miles"`
	MileageAllowancePence int64   `json:"mileage_allowance_pence"`
	DonationGrossPence    int64   `json:"donation_gross_pence"`
	NetProfitPence        int64   `json:"net_profit_pence"`
	NetProfit             float64 `json:"net_profit_gbp"`
	UnreviewedCount       int     `json:"unreviewed_count"`
}

type jsonBoxTotal struct {
	Box        int     `json:"box"`
	Category   string  `json:"category"`
	Label      string  `json:"label"`
	TotalPence int64   `json:"total_pence"`
	Total      float64 `json:"total_gbp"`
	Allowable  bool    `json:"allowable"`
}

type jsonRecord struct {
	Kind        string  `json:"kind"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
	AmountPence int64   `json:"amount_pence"`
	Amount      float64 `json:"amount_gbp"`
	Business    bool    `json:"business"`
	Miles       float64 `json:"miles,omitempty"`
	GiftAid     bool    `json:"gift_aid,omitempty"`
}

// WriteJSON emits the complete year as one JSON document.
func WriteJSON(w io.Writer, d Data) error {
	doc := jsonDocument{
		TaxYear: d.Year.Label(),
		Summary: jsonSummary{
			TotalIncomePence:      d.Summary.TotalIncome.Pence,
			TotalIncome:           pounds(d.Summary.TotalIncome.Pence),
			TotalExpensesPence:    d.Summary.TotalExpenses.Pence,
			TotalExpenses:         pounds(d.Summary.TotalExpenses.Pence),
			MileageMiles:          d.Summary.MileageMiles,
			MileageAllowancePence: d.Summary.MileageAllowance.Pence,
			DonationGrossPence:    d.Summary.DonationGross.Pence,
			NetProfitPence:        d.Summary.NetProfit.Pence,
			NetProfit:             pounds(d.Summary.NetProfit.Pence),
			UnreviewedCount:       d.Summary.Unreviewed,
		},
	}
	for _, ct := range d.Summary.ExpenseTotals {
		doc.Boxes = append(doc.Boxes, jsonBoxTotal{
			Box:        ct.Box,
			Category:   string(ct.Category),
			Label:      ct.Label,
			TotalPence: ct.Total.Pence,
			Total:      pounds(ct.Total.Pence),
			Allowable:  ct.Category.Info().Allowable,
		})
	}

	for _, t := range d.Transactions {
		doc.Records = append(doc.Records, jsonRecord{
			Kind: "transaction", Date: t.Date.ISO(), Description: t.Description,
			Category: string(t.Category), AmountPence: t.Amount.Pence,
			Amount: pounds(t.Amount.Pence), Business: t.Business,
		})
	}
	for _, in := range d.Incomes {
		doc.Records = append(doc.Records, jsonRecord{
			Kind: "income", Date: in.Date.ISO(), Description: in.Source,
			AmountPence: in.Amount.Pence, Amount: pounds(in.Amount.Pence), Business: true,
		})
	}
	for _, e := range d.Expenses {
		doc.Records = append(doc.Records, jsonRecord{
			Kind: "expense", Date: e.Date.ISO(), Description: e.Description,
			Category: string(e.Category), AmountPence: -e.Amount.Pence,
			Amount: pounds(-e.Amount.Pence), Business: true,
		})
	}
	for _, mt := range d.Mileage {
		doc.Records = append(doc.Records, jsonRecord{
			Kind: "mileage", Date: mt.Date.ISO(), Description: mt.Purpose,
			Category: string(core.CategoryTravel), Business: true, Miles: mt.Miles,
		})
	}
	for _, dn := range d.Donations {
		doc.Records = append(doc.Records, jsonRecord{
			Kind: "donation", Date: dn.Date.ISO(), Description: dn.Charity,
			AmountPence: dn.GrossAmount().Pence, Amount: pounds(dn.GrossAmount().Pence),
			GiftAid: dn.GiftAid,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export json: %w", err)
	}
	return nil
}
