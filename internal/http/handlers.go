package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"taxfolio/internal/core"
	"taxfolio/internal/log"
	"taxfolio/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.repo.DB().PingContext(r.Context()); err != nil {
		checks["database"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

// dashboardData is what the dashboard template renders.
type dashboardData struct {
	Year     core.TaxYear
	Years    []core.TaxYear
	Summary  core.TaxYearSummary
	Recent   []core.Transaction
	Rules    int
	JobCount int
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	year := parseTaxYearParam(r)

	summary, err := s.repo.Summarize(ctx, year)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "dashboard summary failed",
			log.FieldTaxYear, year.Label(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	years, err := s.repo.TaxYears(ctx)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "list tax years failed", "error", err)
	}
	recent, err := s.repo.ListTransactions(ctx, storage.TransactionFilter{Year: year, Limit: 10})
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "recent transactions failed", "error", err)
	}
	ruleList, err := s.repo.ListRules(ctx, false)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "list rules failed", "error", err)
	}
	jobs, err := s.repo.ListExportJobs(ctx, 50)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "list export jobs failed", "error", err)
	}

	s.render(w, r, "dashboard.html", dashboardData{
		Year:     year,
		Years:    years,
		Summary:  summary,
		Recent:   recent,
		Rules:    len(ruleList),
		JobCount: len(jobs),
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	entityType := sanitizeInput(r.URL.Query().Get("entity_type"))
	entries, err := s.repo.ListAudit(r.Context(), entityType, 200)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "list audit failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.render(w, r, "audit.html", struct {
		EntityType string
		Entries    []core.AuditEntry
	}{EntityType: entityType, Entries: entries})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		settings, err := s.repo.AllSettings(ctx)
		if err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "load settings failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.render(w, r, "settings.html", struct {
			Settings    map[string]string
			SheetsSync  bool
			BrokerWired bool
		}{Settings: settings, SheetsSync: s.syncSheets, BrokerWired: s.broker != nil})

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			respondFormError(w, "Invalid request format")
			return
		}
		key := sanitizeInput(r.Form.Get("key"))
		value := sanitizeInput(r.Form.Get("value"))
		if key == "" {
			respondFieldError(w, "Setting key is required")
			return
		}
		if err := s.repo.SetSetting(ctx, key, value); err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "save setting failed", "key", key, "error", err)
			respondServerError(w, "Error saving setting")
			return
		}
		s.invalidatePages()
		_ = NewHTMXResponse().
			TriggerFormReset().
			TriggerSuccessNotification("Setting saved: " + key).
			Write(w)

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Error fragment helpers shared by the form handlers.

func respondFormError(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`<div class="error">` + msg + `</div>`))
}

func respondFieldError(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusUnprocessableEntity)
	_, _ = w.Write([]byte(`<div class="error">` + msg + `</div>`))
}

func respondServerError(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`<div class="error">` + msg + `</div>`))
}
