// Package export renders a tax year's records as CSV, JSON, XLSX or PDF.
// CSV and JSON are cheap and served inline; XLSX and PDF are built by the
// worker and written to the export directory.
package export

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"taxfolio/internal/core"
	"taxfolio/internal/storage"
)

// Formats accepted by the export endpoints.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ValidFormat reports whether f names a supported export format.
func ValidFormat(f string) bool {
	switch f {
	case FormatCSV, FormatJSON, FormatXLSX, FormatPDF:
		return true
	}
	return false
}

// Store is the slice of the repository exports read from.
type Store interface {
	ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error)
	ListIncomes(ctx context.Context, year core.TaxYear) ([]core.Income, error)
	ListExpenses(ctx context.Context, year core.TaxYear) ([]core.ExpenseEntry, error)
	ListMileageTrips(ctx context.Context, year core.TaxYear) ([]core.MileageTrip, error)
	ListDonations(ctx context.Context, year core.TaxYear) ([]core.Donation, error)
}

// Data is everything an export needs for one tax year.
type Data struct {
	Year         core.TaxYear
	Summary      core.TaxYearSummary
	Transactions []core.Transaction
	Incomes      []core.Income
	Expenses     []core.ExpenseEntry
	Mileage      []core.MileageTrip
	Donations    []core.Donation
}

// Collect loads a tax year's records concurrently and derives the summary.
func Collect(ctx context.Context, store Store, year core.TaxYear) (Data, error) {
	d := Data{Year: year}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Transactions, err = store.ListTransactions(gctx, storage.TransactionFilter{Year: year})
		return err
	})
	g.Go(func() error {
		var err error
		d.Incomes, err = store.ListIncomes(gctx, year)
		return err
	})
	g.Go(func() error {
		var err error
		d.Expenses, err = store.ListExpenses(gctx, year)
		return err
	})
	g.Go(func() error {
		var err error
		d.Mileage, err = store.ListMileageTrips(gctx, year)
		return err
	})
	g.Go(func() error {
		var err error
		d.Donations, err = store.ListDonations(gctx, year)
		return err
	})
	if err := g.Wait(); err != nil {
		return Data{}, fmt.Errorf("collect export data: %w", err)
	}

	d.Summary = core.BuildSummary(year, d.Transactions, d.Incomes, d.Expenses, d.Mileage, d.Donations)
	return d, nil
}

func pounds(pence int64) float64 {
	return float64(pence) / 100
}
