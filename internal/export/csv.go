package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"taxfolio/internal/core"
)

// WriteCSV streams the year's business records in a flat, accountant
// friendly layout: one row per record with a kind column.
func WriteCSV(w io.Writer, d Data) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"kind", "date", "description", "category", "sa103s_box", "amount_gbp", "business", "notes"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, t := range d.Transactions {
		info := t.Category.Info()
		box := ""
		if info.Box > 0 {
			box = strconv.Itoa(info.Box)
		}
		if err := cw.Write([]string{
			"transaction", t.Date.ISO(), t.Description, string(t.Category), box,
			formatPounds(t.Amount.Pence), strconv.FormatBool(t.Business), t.Notes,
		}); err != nil {
			return fmt.Errorf("write transaction row: %w", err)
		}
	}
	for _, in := range d.Incomes {
		if err := cw.Write([]string{
			"income", in.Date.ISO(), in.Source, "", "",
			formatPounds(in.Amount.Pence), "true", in.Notes,
		}); err != nil {
			return fmt.Errorf("write income row: %w", err)
		}
	}
	for _, e := range d.Expenses {
		if err := cw.Write([]string{
			"expense", e.Date.ISO(), e.Description, string(e.Category),
			strconv.Itoa(e.Category.Info().Box),
			formatPounds(-e.Amount.Pence), "true", "",
		}); err != nil {
			return fmt.Errorf("write expense row: %w", err)
		}
	}
	for _, mt := range d.Mileage {
		if err := cw.Write([]string{
			"mileage", mt.Date.ISO(),
			fmt.Sprintf("%s -> %s (%s, %.1f miles)", mt.From, mt.To, mt.Vehicle, mt.Miles),
			string(core.CategoryTravel), "18", "", "true", mt.Purpose,
		}); err != nil {
			return fmt.Errorf("write mileage row: %w", err)
		}
	}
	for _, dn := range d.Donations {
		if err := cw.Write([]string{
			"donation", dn.Date.ISO(), dn.Charity, "", "",
			formatPounds(-dn.GrossAmount().Pence), "false",
			fmt.Sprintf("gift_aid=%t", dn.GiftAid),
		}); err != nil {
			return fmt.Errorf("write donation row: %w", err)
		}
	}

	return nil
}

func formatPounds(pence int64) string {
	return strconv.FormatFloat(pounds(pence), 'f', 2, 64)
}
