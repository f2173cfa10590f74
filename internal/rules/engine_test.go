package rules

import (
	"context"
	"database/sql"
	"testing"

	"taxfolio/internal/core"
	"taxfolio/internal/log"
	"taxfolio/internal/storage"

	_ "modernc.org/sqlite"
)

func testEngine(t *testing.T) (*Engine, *storage.SQLiteRepository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	repo, err := storage.NewSQLiteRepositoryWithDB(db)
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewEngine(repo, log.New(log.DefaultConfig())), repo
}

func seedTransactions(t *testing.T, repo *storage.SQLiteRepository, txns ...core.Transaction) []int64 {
	t.Helper()
	res, err := repo.InsertTransactions(context.Background(), txns)
	if err != nil {
		t.Fatalf("seed transactions: %v", err)
	}
	return res.IDs
}

func txn(hash, desc string, pence int64) core.Transaction {
	return core.Transaction{
		Date:        core.NewDate(2024, 6, 1),
		Description: desc,
		Amount:      core.Money{Pence: pence},
		Merchant:    core.NormalizeMerchant(desc),
		SourceHash:  hash,
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	engine, repo := testEngine(t)
	ctx := context.Background()

	mustRule := func(r core.Rule) core.Rule {
		created, err := repo.CreateRule(ctx, r)
		if err != nil {
			t.Fatalf("create rule: %v", err)
		}
		return created
	}
	low := mustRule(core.Rule{Pattern: "TESCO", Mode: core.MatchContains, Category: core.CategoryPersonal, Priority: 0, Confidence: 1, Enabled: true})
	high := mustRule(core.Rule{Pattern: "TESCO PETROL", Mode: core.MatchContains, Category: core.CategoryTravel, Business: true, Priority: 10, Confidence: 1, Enabled: true})
	mustRule(core.Rule{Pattern: "NEVER", Mode: core.MatchExact, Category: core.CategoryOther, Priority: 20, Confidence: 1, Enabled: false})

	rule, ok, err := engine.Evaluate(ctx, txn("h1", "TESCO PETROL 0443", -5000))
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	if rule.ID != high.ID {
		t.Fatalf("expected high-priority rule %d, got %d", high.ID, rule.ID)
	}

	rule, ok, err = engine.Evaluate(ctx, txn("h2", "TESCO STORES 3297", -1000))
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	if rule.ID != low.ID {
		t.Fatalf("expected fallback rule %d, got %d", low.ID, rule.ID)
	}

	_, ok, err = engine.Evaluate(ctx, txn("h3", "SOMETHING ELSE", -1000))
	if err != nil || ok {
		t.Fatalf("expected no match, got ok=%v err=%v", ok, err)
	}
}

func TestDryRunDoesNotWrite(t *testing.T) {
	engine, repo := testEngine(t)
	ctx := context.Background()

	if _, err := repo.CreateRule(ctx, core.Rule{
		Pattern: "ADOBE", Mode: core.MatchContains,
		Category: core.CategoryOffice, Business: true, Confidence: 1, Enabled: true,
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	ids := seedTransactions(t, repo,
		txn("h1", "ADOBE SYSTEMS", -1999),
		txn("h2", "GREGGS", -350),
	)

	outcomes, summary, err := engine.DryRun(ctx, 2024)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if summary.Scoped != 2 || summary.Matched != 1 || summary.Applied != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(outcomes) != 1 || outcomes[0].Matched != 1 || len(outcomes[0].Samples) != 1 {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}

	got, err := repo.GetTransaction(ctx, ids[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Category != "" {
		t.Fatalf("dry run must not categorize, got %q", got.Category)
	}
}

func TestApplyCategorizesButKeepsUnreviewed(t *testing.T) {
	engine, repo := testEngine(t)
	ctx := context.Background()

	rule, err := repo.CreateRule(ctx, core.Rule{
		Pattern: "ADOBE", Mode: core.MatchContains,
		Category: core.CategoryOffice, Business: true, Confidence: 0.95, Enabled: true,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	ids := seedTransactions(t, repo, txn("h1", "ADOBE SYSTEMS", -1999))

	_, summary, err := engine.Apply(ctx, 2024)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if summary.Applied != 1 {
		t.Fatalf("expected 1 applied, got %+v", summary)
	}

	got, err := repo.GetTransaction(ctx, ids[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Category != core.CategoryOffice || !got.Business || got.Confidence != 0.95 {
		t.Fatalf("unexpected transaction %+v", got)
	}
	if got.Status != core.StatusUnreviewed {
		t.Fatalf("rule hits must stay unreviewed, got %q", got.Status)
	}

	updated, err := repo.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if updated.HitCount != 1 {
		t.Fatalf("expected hit count 1, got %d", updated.HitCount)
	}
}

func TestSuggestFuzzyMerchant(t *testing.T) {
	engine, repo := testEngine(t)
	ctx := context.Background()

	// Teach the store about a merchant by categorizing one of its rows.
	ids := seedTransactions(t, repo, txn("h1", "TESCO STORES 3297", -1000))
	if _, err := repo.CategorizeTransaction(ctx, ids[0], core.CategoryGoodsForResale, true, 1.0); err != nil {
		t.Fatalf("categorize: %v", err)
	}

	s, err := engine.Suggest(ctx, txn("h2", "TESCO STORES 3301", -2000))
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if s == nil {
		t.Fatal("expected a suggestion")
	}
	if s.Category != core.CategoryGoodsForResale || s.Similarity < SuggestThreshold {
		t.Fatalf("unexpected suggestion %+v", s)
	}

	// A completely different merchant gets nothing.
	s, err = engine.Suggest(ctx, txn("h3", "BRITISH GAS", -9000))
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if s != nil {
		t.Fatalf("expected no suggestion, got %+v", s)
	}
}

func TestMaybeLearnRule(t *testing.T) {
	engine, _ := testEngine(t)
	ctx := context.Background()

	// Below the streak nothing is learned.
	r, err := engine.MaybeLearnRule(ctx, "TESCO STORES 3297", core.CategoryGoodsForResale, true, 2)
	if err != nil || r != nil {
		t.Fatalf("expected no rule below streak, got %v (err=%v)", r, err)
	}

	r, err = engine.MaybeLearnRule(ctx, "TESCO STORES 3297", core.CategoryGoodsForResale, true, 3)
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if r == nil {
		t.Fatal("expected learned rule")
	}
	if !r.Learned || r.Confidence != LearnedConfidence || r.Mode != core.MatchContains {
		t.Fatalf("unexpected learned rule %+v", r)
	}

	// Learning is idempotent.
	again, err := engine.MaybeLearnRule(ctx, "TESCO STORES 3297", core.CategoryGoodsForResale, true, 4)
	if err != nil || again != nil {
		t.Fatalf("expected no duplicate rule, got %v (err=%v)", again, err)
	}

	// Personal categorizations never become rules.
	r, err = engine.MaybeLearnRule(ctx, "GREGGS", core.CategoryPersonal, false, 5)
	if err != nil || r != nil {
		t.Fatalf("expected no rule for personal, got %v (err=%v)", r, err)
	}
}
