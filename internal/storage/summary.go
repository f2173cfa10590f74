package storage

import (
	"context"
	"fmt"
	"sort"

	"taxfolio/internal/core"
)

// Summarize loads everything recorded against a tax year and folds it into
// a TaxYearSummary. The SA103S arithmetic itself lives in core so it can be
// tested without a database.
func (r *SQLiteRepository) Summarize(ctx context.Context, year core.TaxYear) (core.TaxYearSummary, error) {
	txns, err := r.ListTransactions(ctx, TransactionFilter{Year: year})
	if err != nil {
		return core.TaxYearSummary{}, fmt.Errorf("summarize transactions: %w", err)
	}
	incomes, err := r.ListIncomes(ctx, year)
	if err != nil {
		return core.TaxYearSummary{}, fmt.Errorf("summarize incomes: %w", err)
	}
	expenses, err := r.ListExpenses(ctx, year)
	if err != nil {
		return core.TaxYearSummary{}, fmt.Errorf("summarize expenses: %w", err)
	}
	trips, err := r.ListMileageTrips(ctx, year)
	if err != nil {
		return core.TaxYearSummary{}, fmt.Errorf("summarize mileage: %w", err)
	}
	donations, err := r.ListDonations(ctx, year)
	if err != nil {
		return core.TaxYearSummary{}, fmt.Errorf("summarize donations: %w", err)
	}
	return core.BuildSummary(year, txns, incomes, expenses, trips, donations), nil
}

// TaxYears returns every tax year with at least one record, newest first.
func (r *SQLiteRepository) TaxYears(ctx context.Context) ([]core.TaxYear, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT DISTINCT date FROM (
		SELECT date FROM transactions WHERE deleted_at IS NULL
		UNION SELECT date FROM incomes WHERE deleted_at IS NULL
		UNION SELECT date FROM expenses WHERE deleted_at IS NULL
		UNION SELECT date FROM mileage_trips WHERE deleted_at IS NULL
		UNION SELECT date FROM donations WHERE deleted_at IS NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("list tax years: %w", err)
	}
	defer rows.Close()

	seen := make(map[core.TaxYear]bool)
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		d, err := core.ParseDate(date)
		if err != nil {
			continue
		}
		seen[core.TaxYearOf(d)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var years []core.TaxYear
	for y := range seen {
		years = append(years, y)
	}
	sort.Slice(years, func(i, j int) bool { return years[i] > years[j] })
	return years, nil
}
