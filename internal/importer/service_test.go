package importer

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"taxfolio/internal/core"
	"taxfolio/internal/log"
	"taxfolio/internal/rules"
	"taxfolio/internal/storage"

	_ "modernc.org/sqlite"
)

func testService(t *testing.T) (*Service, *storage.SQLiteRepository) {
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

	logger := log.New(log.DefaultConfig())
	engine := rules.NewEngine(repo, logger)
	return NewService(repo, engine, logger), repo
}

const statement = `Date,Description,Amount
02/05/2024,CARD PAYMENT TESCO STORES 3297,-45.50
03/05/2024,ADOBE SYSTEMS,-19.99
04/05/2024,CLIENT PAYMENT INV-042,1250.00
`

func TestImportCSVEndToEnd(t *testing.T) {
	svc, repo := testService(t)
	ctx := context.Background()

	if _, err := repo.CreateRule(ctx, core.Rule{
		Pattern: "ADOBE", Mode: core.MatchContains,
		Category: core.CategoryOffice, Business: true, Confidence: 0.95, Enabled: true,
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	res, err := svc.ImportCSV(ctx, strings.NewReader(statement), "may.csv")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Parsed != 3 || res.Inserted != 3 || res.Duplicates != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Categorized != 1 {
		t.Fatalf("expected 1 pre-categorized row, got %d", res.Categorized)
	}

	txns, err := repo.ListTransactions(ctx, storage.TransactionFilter{Search: "ADOBE"})
	if err != nil || len(txns) != 1 {
		t.Fatalf("expected adobe row, got %v (err=%v)", txns, err)
	}
	if txns[0].Category != core.CategoryOffice || txns[0].Status != core.StatusUnreviewed {
		t.Fatalf("unexpected categorized row %+v", txns[0])
	}
}

func TestImportCSVReimportSkipsEverything(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.ImportCSV(ctx, strings.NewReader(statement), "may.csv"); err != nil {
		t.Fatalf("first import: %v", err)
	}
	res, err := svc.ImportCSV(ctx, strings.NewReader(statement), "may-copy.csv")
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if res.Inserted != 0 || res.Duplicates != 3 {
		t.Fatalf("expected all duplicates, got %+v", res)
	}
}

func TestImportFlagsNearDuplicates(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.ImportCSV(ctx, strings.NewReader(statement), "may.csv"); err != nil {
		t.Fatalf("first import: %v", err)
	}

	// Same payment with a slightly different description, as a second
	// account export might render it.
	similar := `Date,Description,Amount
03/05/2024,CARD PAYMENT TESCO STORE 3297,-45.50
`
	res, err := svc.ImportCSV(ctx, strings.NewReader(similar), "other.csv")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("near-duplicates must still be imported, got %+v", res)
	}
	if len(res.NearDuplicates) != 1 {
		t.Fatalf("expected 1 near-duplicate flag, got %d", len(res.NearDuplicates))
	}
}

func TestImportFileRejectsUnknownExtension(t *testing.T) {
	svc, _ := testService(t)
	if _, err := svc.ImportFile(context.Background(), "statement.xlsx", strings.NewReader("")); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}
