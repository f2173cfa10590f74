package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"taxfolio/internal/core"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	// The migrate driver and the repository share one connection; pooling
	// would silently create fresh empty databases.
	db.SetMaxOpenConns(1)
	repo, err := NewSQLiteRepositoryWithDB(db)
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTransaction(hash string) core.Transaction {
	return core.Transaction{
		Date:        core.NewDate(2024, 6, 1),
		Description: "CARD PAYMENT TESCO STORES 3297",
		Amount:      core.Money{Pence: -4550},
		Merchant:    "TESCO STORES 3297",
		SourceFile:  "statement.csv",
		SourceHash:  hash,
	}
}

func TestInsertTransactionsDeduplicates(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	res, err := repo.InsertTransactions(ctx, []core.Transaction{
		sampleTransaction("h1"),
		sampleTransaction("h2"),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.Inserted != 2 || res.Duplicates != 0 {
		t.Fatalf("expected 2 inserted, got %+v", res)
	}

	// Re-importing the same statement skips every row.
	res, err = repo.InsertTransactions(ctx, []core.Transaction{
		sampleTransaction("h1"),
		sampleTransaction("h3"),
	})
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if res.Inserted != 1 || res.Duplicates != 1 {
		t.Fatalf("expected 1 inserted 1 duplicate, got %+v", res)
	}

	txns, err := repo.ListTransactions(ctx, TransactionFilter{Year: 2024})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txns))
	}
}

func TestCategorizeTransactionTracksMerchantStreak(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	res, err := repo.InsertTransactions(ctx, []core.Transaction{
		sampleTransaction("h1"), sampleTransaction("h2"), sampleTransaction("h3"),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	for i, id := range res.IDs[:2] {
		hits, err := repo.CategorizeTransaction(ctx, id, core.CategoryGoodsForResale, true, 1.0)
		if err != nil {
			t.Fatalf("categorize %d: %v", id, err)
		}
		if hits != int64(i+1) {
			t.Fatalf("expected streak %d, got %d", i+1, hits)
		}
	}

	// A different category resets the streak.
	hits, err := repo.CategorizeTransaction(ctx, res.IDs[2], core.CategoryOffice, true, 1.0)
	if err != nil {
		t.Fatalf("categorize: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected streak reset to 1, got %d", hits)
	}

	got, err := repo.GetTransaction(ctx, res.IDs[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != core.StatusReviewed || got.Category != core.CategoryGoodsForResale {
		t.Fatalf("unexpected transaction after categorize: %+v", got)
	}
}

func TestCategorizeWritesAudit(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	res, err := repo.InsertTransactions(ctx, []core.Transaction{sampleTransaction("h1")})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.CategorizeTransaction(ctx, res.IDs[0], core.CategoryTravel, true, 0.95); err != nil {
		t.Fatalf("categorize: %v", err)
	}

	entries, err := repo.ListAudit(ctx, "transaction", 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 transaction audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != "categorize" || e.BeforeJSON == "" || e.AfterJSON == "" {
		t.Fatalf("unexpected audit entry: %+v", e)
	}
}

func TestSoftDeleteHidesRow(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	in, err := repo.CreateIncome(ctx, core.Income{
		Date: core.NewDate(2024, 7, 1), Amount: core.Money{Pence: 150000}, Source: "Client A",
	})
	if err != nil {
		t.Fatalf("create income: %v", err)
	}
	if err := repo.DeleteIncome(ctx, in.ID); err != nil {
		t.Fatalf("delete income: %v", err)
	}
	if _, err := repo.GetIncome(ctx, in.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Deleting twice reports not found.
	if err := repo.DeleteIncome(ctx, in.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRulesOrderedForEvaluation(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	mk := func(pattern string, priority int) core.Rule {
		r, err := repo.CreateRule(ctx, core.Rule{
			Pattern: pattern, Mode: core.MatchContains,
			Category: core.CategoryOffice, Business: true,
			Priority: priority, Confidence: 1, Enabled: true,
		})
		if err != nil {
			t.Fatalf("create rule %s: %v", pattern, err)
		}
		return r
	}
	mk("low", 0)
	mk("high", 10)
	mk("also-low", 0)

	rules, err := repo.ListRules(ctx, true)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}
	if rules[0].Pattern != "high" {
		t.Fatalf("expected priority order, got %q first", rules[0].Pattern)
	}
	if rules[1].Pattern != "low" || rules[2].Pattern != "also-low" {
		t.Fatalf("expected oldest-first within priority, got %q then %q", rules[1].Pattern, rules[2].Pattern)
	}
}

func TestSummarizeEndToEnd(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	res, err := repo.InsertTransactions(ctx, []core.Transaction{sampleTransaction("h1")})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.CategorizeTransaction(ctx, res.IDs[0], core.CategoryGoodsForResale, true, 1.0); err != nil {
		t.Fatalf("categorize: %v", err)
	}
	if _, err := repo.CreateIncome(ctx, core.Income{Date: core.NewDate(2024, 7, 1), Amount: core.Money{Pence: 100000}, Source: "Client"}); err != nil {
		t.Fatalf("create income: %v", err)
	}
	if _, err := repo.CreateMileageTrip(ctx, core.MileageTrip{Date: core.NewDate(2024, 8, 1), Miles: 100, Purpose: "Client visit", Vehicle: core.VehicleCar}); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	s, err := repo.Summarize(ctx, core.TaxYear(2024))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.TotalIncome.Pence != 100000 {
		t.Fatalf("expected income 100000, got %d", s.TotalIncome.Pence)
	}
	if s.TotalExpenses.Pence != 4550 {
		t.Fatalf("expected expenses 4550, got %d", s.TotalExpenses.Pence)
	}
	if s.MileageAllowance.Pence != 4500 {
		t.Fatalf("expected mileage 4500, got %d", s.MileageAllowance.Pence)
	}

	years, err := repo.TaxYears(ctx)
	if err != nil {
		t.Fatalf("tax years: %v", err)
	}
	if len(years) != 1 || years[0] != 2024 {
		t.Fatalf("expected [2024], got %v", years)
	}
}

func TestExportJobLifecycle(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	job := ExportJob{ID: "job-1", Format: "xlsx", TaxYear: 2024}
	if err := repo.CreateExportJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := repo.UpdateExportJob(ctx, "job-1", JobCompleted, "/tmp/out.xlsx", ""); err != nil {
		t.Fatalf("update job: %v", err)
	}
	got, err := repo.GetExportJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobCompleted || got.FilePath != "/tmp/out.xlsx" {
		t.Fatalf("unexpected job: %+v", got)
	}
	if err := repo.UpdateExportJob(ctx, "missing", JobFailed, "", "boom"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if v, err := repo.GetSetting(ctx, "active_tax_year"); err != nil || v != "" {
		t.Fatalf("expected empty setting, got %q (err=%v)", v, err)
	}
	if err := repo.SetSetting(ctx, "active_tax_year", "2024"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.SetSetting(ctx, "active_tax_year", "2025"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _ := repo.GetSetting(ctx, "active_tax_year"); v != "2025" {
		t.Fatalf("expected 2025, got %q", v)
	}
	all, err := repo.AllSettings(ctx)
	if err != nil || all["active_tax_year"] != "2025" {
		t.Fatalf("unexpected settings %v (err=%v)", all, err)
	}
}
