package http

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"taxfolio/internal/core"
	"taxfolio/internal/importer"
	"taxfolio/internal/log"
	"taxfolio/internal/rules"
	"taxfolio/internal/storage"
	"taxfolio/internal/worker"

	_ "modernc.org/sqlite"
)

func testServer(t *testing.T) (*Server, *storage.SQLiteRepository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	repo, err := storage.NewSQLiteRepositoryWithDB(db)
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := log.New(log.Config{Level: slog.LevelError})
	engine := rules.NewEngine(repo, logger)

	srv, err := NewServer(Options{
		Addr:        ":0",
		Repo:        repo,
		Engine:      engine,
		Importer:    importer.NewService(repo, engine, logger),
		Renderer:    worker.NewExportWorker(repo, t.TempDir(), logger),
		ReceiptsDir: t.TempDir(),
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, repo
}

func postForm(t *testing.T, srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndPages(t *testing.T) {
	srv, _ := testServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/", "/import", "/review", "/income", "/expenses", "/mileage", "/donations", "/rules", "/summary", "/reports", "/export", "/settings", "/audit"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rr.Code)
		}
	}
}

func TestCreateIncomeValidationAndSuccess(t *testing.T) {
	srv, repo := testServer(t)

	// Invalid amount
	rr := postForm(t, srv, "/income", url.Values{
		"date": {"2024-06-01"}, "amount": {"abc"}, "source": {"Client A"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	// Missing source
	rr = postForm(t, srv, "/income", url.Values{
		"date": {"2024-06-01"}, "amount": {"150.00"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	// Success
	rr = postForm(t, srv, "/income", url.Values{
		"date": {"2024-06-01"}, "amount": {"150.00"}, "source": {"Client A"}, "reference": {"INV-1"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, part := range []string{`"records:changed"`, `"form:reset"`, `"show-notification"`, `"tax_year":"2024-25"`} {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %q: %s", part, trigger)
		}
	}

	incomes, err := repo.ListIncomes(context.Background(), core.TaxYear(2024))
	if err != nil {
		t.Fatalf("list incomes: %v", err)
	}
	if len(incomes) != 1 || incomes[0].Amount.Pence != 15000 {
		t.Fatalf("incomes = %+v", incomes)
	}
}

func TestCategorizeTransaction(t *testing.T) {
	srv, repo := testServer(t)
	ctx := context.Background()

	res, err := repo.InsertTransactions(ctx, []core.Transaction{{
		Date: core.NewDate(2024, 5, 2), Description: "ADOBE SYSTEMS",
		Amount: core.Money{Pence: -1999}, Merchant: "ADOBE SYSTEMS", SourceHash: "h1",
	}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	rr := postForm(t, srv, "/review/categorize", url.Values{
		"id":       {"1"},
		"category": {string(core.CategoryOffice)},
		"business": {"true"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	txn, err := repo.GetTransaction(ctx, res.IDs[0])
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.Category != core.CategoryOffice || !txn.Business || txn.Status != core.StatusReviewed {
		t.Fatalf("transaction = %+v", txn)
	}

	// Unknown category rejected
	rr = postForm(t, srv, "/review/categorize", url.Values{
		"id": {"1"}, "category": {"nonsense"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestCreateAndRunRules(t *testing.T) {
	srv, repo := testServer(t)
	ctx := context.Background()

	if _, err := repo.InsertTransactions(ctx, []core.Transaction{{
		Date: core.NewDate(2024, 5, 2), Description: "ADOBE SYSTEMS SUBSCRIPTION",
		Amount: core.Money{Pence: -1999}, Merchant: "ADOBE SYSTEMS", SourceHash: "h1",
	}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rr := postForm(t, srv, "/rules", url.Values{
		"pattern":  {"ADOBE"},
		"mode":     {"contains"},
		"category": {string(core.CategoryOffice)},
		"business": {"true"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create rule: %d %s", rr.Code, rr.Body.String())
	}

	rr = postForm(t, srv, "/rules/dry-run", url.Values{"tax_year": {"2024-25"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("dry run: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "1 matched") {
		t.Errorf("dry run body = %s", rr.Body.String())
	}

	rr = postForm(t, srv, "/rules/apply", url.Values{"tax_year": {"2024-25"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("apply: %d", rr.Code)
	}

	// Applied rows keep unreviewed status but gain the category.
	txn, err := repo.GetTransaction(ctx, 1)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.Category != core.CategoryOffice || txn.Status != core.StatusUnreviewed {
		t.Fatalf("transaction = %+v", txn)
	}
}

func TestDeleteEntryNotFound(t *testing.T) {
	srv, _ := testServer(t)

	rr := postForm(t, srv, "/income/delete", url.Values{"id": {"999"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/summary", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestReceiptUploadAndView(t *testing.T) {
	srv, repo := testServer(t)
	ctx := context.Background()

	res, err := repo.InsertTransactions(ctx, []core.Transaction{{
		Date: core.NewDate(2024, 5, 2), Description: "STAPLES",
		Amount: core.Money{Pence: -500}, SourceHash: "h1",
	}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("id", "1")
	part, _ := mw.CreateFormFile("receipt", "receipt.png")
	part.Write([]byte("not a real png"))
	mw.Close()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/review/receipt", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}

	txn, err := repo.GetTransaction(ctx, res.IDs[0])
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.ReceiptPath == "" {
		t.Fatal("receipt path not stored")
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/receipts?id=1", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("view: %d", rr.Code)
	}
	if rr.Body.String() != "not a real png" {
		t.Fatalf("view body = %q", rr.Body.String())
	}
}

func TestUpdateIncome(t *testing.T) {
	srv, repo := testServer(t)
	ctx := context.Background()

	created, err := repo.CreateIncome(ctx, core.Income{
		Date: core.NewDate(2024, 6, 1), Amount: core.Money{Pence: 15000}, Source: "Client A",
	})
	if err != nil {
		t.Fatalf("create income: %v", err)
	}

	rr := postForm(t, srv, "/income/update", url.Values{
		"id": {"1"}, "date": {"2024-06-03"}, "amount": {"175.50"},
		"source": {"Client A"}, "reference": {"INV-2"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}

	got, err := repo.GetIncome(ctx, created.ID)
	if err != nil {
		t.Fatalf("get income: %v", err)
	}
	if got.Amount.Pence != 17550 || got.Date.ISO() != "2024-06-03" || got.Reference != "INV-2" {
		t.Fatalf("income = %+v", got)
	}

	rr = postForm(t, srv, "/income/update", url.Values{
		"id": {"999"}, "date": {"2024-06-03"}, "amount": {"10.00"}, "source": {"X"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing record, got %d", rr.Code)
	}
}

func TestUpdateExpense(t *testing.T) {
	srv, repo := testServer(t)
	ctx := context.Background()

	created, err := repo.CreateExpense(ctx, core.ExpenseEntry{
		Date: core.NewDate(2024, 7, 1), Amount: core.Money{Pence: 2500},
		Description: "Printer paper", Category: core.CategoryOffice,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}

	rr := postForm(t, srv, "/expenses/update", url.Values{
		"id": {"1"}, "date": {"2024-07-02"}, "amount": {"32.00"},
		"description": {"Printer paper and ink"}, "category": {string(core.CategoryOffice)},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}

	got, err := repo.GetExpense(ctx, created.ID)
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if got.Amount.Pence != 3200 || got.Description != "Printer paper and ink" {
		t.Fatalf("expense = %+v", got)
	}
}

func TestToggleRule(t *testing.T) {
	srv, repo := testServer(t)
	ctx := context.Background()

	created, err := repo.CreateRule(ctx, core.Rule{
		Pattern: "ADOBE", Mode: core.MatchContains, Category: core.CategoryOffice,
		Business: true, Confidence: 1.0, Enabled: true,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	rr := postForm(t, srv, "/rules/toggle", url.Values{"id": {"1"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle: %d %s", rr.Code, rr.Body.String())
	}
	got, err := repo.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if got.Enabled {
		t.Fatal("rule should be disabled after toggle")
	}

	rr = postForm(t, srv, "/rules/toggle", url.Values{"id": {"1"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle back: %d", rr.Code)
	}
	got, _ = repo.GetRule(ctx, created.ID)
	if !got.Enabled {
		t.Fatal("rule should be enabled after second toggle")
	}

	rr = postForm(t, srv, "/rules/toggle", url.Values{"id": {"999"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing rule, got %d", rr.Code)
	}
}

func TestDeleteTransaction(t *testing.T) {
	srv, repo := testServer(t)
	ctx := context.Background()

	res, err := repo.InsertTransactions(ctx, []core.Transaction{{
		Date: core.NewDate(2024, 5, 2), Description: "NOT MINE",
		Amount: core.Money{Pence: -4200}, SourceHash: "h1",
	}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	rr := postForm(t, srv, "/review/delete", url.Values{"id": {"1"}, "tax_year": {"2024-25"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rr.Code, rr.Body.String())
	}
	if _, err := repo.GetTransaction(ctx, res.IDs[0]); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestExportPageAndQueueFragment(t *testing.T) {
	srv, _ := testServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/export", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("page: %d", rr.Code)
	}
	// The report form swaps the job list in place rather than navigating
	// to the bare fragment.
	body := rr.Body.String()
	if !strings.Contains(body, `hx-post="/export/run"`) || !strings.Contains(body, `hx-target="#export-jobs"`) {
		t.Fatalf("export page missing queue form wiring: %s", body)
	}

	rr = postForm(t, srv, "/export/run", url.Values{"tax_year": {"2024-25"}, "format": {"xlsx"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("queue: %d %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"export:queued"`) {
		t.Fatalf("HX-Trigger = %s", rr.Header().Get("HX-Trigger"))
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < rateLimitPerMinute; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d unexpectedly limited", i)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Fatal("request over the limit allowed")
	}
	if !rl.allow("10.0.0.2") {
		t.Fatal("other client should not be limited")
	}
}
