package http

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"taxfolio/internal/core"
	"taxfolio/internal/log"
	"taxfolio/internal/rules"
	"taxfolio/internal/storage"
)

type reviewData struct {
	Year       core.TaxYear
	Years      []core.TaxYear
	Unreviewed int
	Reviewed   int
	List       template.HTML
}

func (s *Server) handleReviewPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	year := parseTaxYearParam(r)

	unreviewed, reviewed, err := s.repo.CountByStatus(ctx, year)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "count by status failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	years, _ := s.repo.TaxYears(ctx)

	list, err := s.reviewListFragment(r, year)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "review list failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.render(w, r, "review.html", reviewData{
		Year:       year,
		Years:      years,
		Unreviewed: unreviewed,
		Reviewed:   reviewed,
		List:       list,
	})
}

// handleReviewList serves the transaction table partial for HTMX refreshes.
func (s *Server) handleReviewList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	list, err := s.reviewListFragment(r, parseTaxYearParam(r))
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "review list failed", "error", err)
		respondServerError(w, "Error loading transactions")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(list))
}

func (s *Server) reviewListFragment(r *http.Request, year core.TaxYear) (template.HTML, error) {
	q := r.URL.Query()
	filter := storage.TransactionFilter{
		Year:   year,
		Search: sanitizeInput(q.Get("q")),
		Limit:  200,
	}
	if st := q.Get("status"); st == string(core.StatusUnreviewed) || st == string(core.StatusReviewed) {
		filter.Status = core.ReviewStatus(st)
	}
	if cat := core.Category(q.Get("category")); core.ValidCategory(cat) {
		filter.Category = cat
	}

	txns, err := s.repo.ListTransactions(r.Context(), filter)
	if err != nil {
		return "", err
	}
	return s.renderFragment("_transactions.html", struct {
		Year         core.TaxYear
		Transactions []core.Transaction
	}{Year: year, Transactions: txns})
}

// handleCategorize records a manual categorization decision. The row is
// marked reviewed, the merchant's streak is fed, and three consecutive
// same-category decisions for a merchant produce a learned rule.
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		respondFormError(w, "Invalid request format")
		return
	}

	ctx := r.Context()
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondFieldError(w, "Invalid transaction")
		return
	}

	category := core.Category(strings.TrimSpace(r.Form.Get("category")))
	if !core.ValidCategory(category) {
		respondFieldError(w, "Unknown category")
		return
	}
	business := r.Form.Get("business") == "true" || r.Form.Get("business") == "on"
	if category == core.CategoryPersonal {
		business = false
	}

	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		respondFieldError(w, "Transaction not found")
		return
	}

	streak, err := s.repo.CategorizeTransaction(ctx, id, category, business, 1.0)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "categorize failed",
			log.FieldTxnID, id, "error", err)
		respondServerError(w, "Error saving categorization")
		return
	}
	s.invalidatePages()

	log.FromContext(ctx).InfoContext(ctx, "transaction categorized",
		log.FieldTxnID, id,
		log.FieldCategory, string(category),
		log.FieldMerchant, txn.Merchant)

	builder := NewHTMXResponse().
		TriggerRecordsChanged(core.TaxYearOf(txn.Date).Label()).
		TriggerSuccessNotification(fmt.Sprintf("Categorized as %s", category.Label()))

	if txn.Merchant != "" {
		learned, err := s.engine.MaybeLearnRule(ctx, txn.Merchant, category, business, streak)
		if err != nil {
			log.FromContext(ctx).WarnContext(ctx, "rule learning failed",
				log.FieldMerchant, txn.Merchant, "error", err)
		} else if learned != nil {
			builder.TriggerNotification(NotificationSuccess,
				fmt.Sprintf("Learned a rule: %s → %s", txn.Merchant, category.Label()))
		}
	}

	if s.syncSheets && business {
		s.enqueueSheetsSync(r, "transaction", id)
	}

	_ = builder.Write(w)
}

// handleSuggest returns a fuzzy merchant suggestion fragment for one
// transaction, or an empty body when nothing scores above threshold.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondFieldError(w, "Invalid transaction")
		return
	}
	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		respondFieldError(w, "Transaction not found")
		return
	}

	suggestion, err := s.engine.Suggest(ctx, txn)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "suggestion failed",
			log.FieldTxnID, id, "error", err)
		respondServerError(w, "Error computing suggestion")
		return
	}
	if suggestion == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	frag, err := s.renderFragment("_suggestion.html", struct {
		ID         int64
		Suggestion *rules.Suggestion
	}{ID: id, Suggestion: suggestion})
	if err != nil {
		respondServerError(w, "Error rendering suggestion")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(frag))
}

// handleDeleteTransaction soft-deletes an imported row, for statement
// lines that are not the user's (shared accounts, bank errors). The
// audit trail keeps the snapshot.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	s.deleteEntry(w, r, "transaction", func(ctx context.Context, id int64) error {
		return s.repo.DeleteTransaction(ctx, id)
	})
}

// enqueueSheetsSync queues a mirror write and nudges the worker. Both
// steps are best-effort; the pending-queue sweep recovers lost messages.
func (s *Server) enqueueSheetsSync(r *http.Request, entityType string, id int64) {
	ctx := r.Context()
	queueIDs, err := s.repo.EnqueueSync(ctx, entityType, []int64{id})
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "enqueue sheets sync failed",
			"entity_type", entityType, "entity_id", id, "error", err)
		return
	}
	if s.broker == nil {
		return
	}
	for _, queueID := range queueIDs {
		if err := s.broker.PublishSheetsSync(ctx, queueID); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "publish sheets sync failed",
				"queue_id", queueID, "error", err)
		}
	}
}
