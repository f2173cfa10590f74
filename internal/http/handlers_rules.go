package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"taxfolio/internal/core"
	"taxfolio/internal/log"
	"taxfolio/internal/rules"
)

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ruleList, err := s.repo.ListRules(r.Context(), false)
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "list rules failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.render(w, r, "rules.html", struct {
			Year  core.TaxYear
			Rules []core.Rule
		}{Year: parseTaxYearParam(r), Rules: ruleList})

	case http.MethodPost:
		s.createRule(w, r)

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondFormError(w, "Invalid request format")
		return
	}
	ctx := r.Context()

	priority := 0
	if v := strings.TrimSpace(r.Form.Get("priority")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			respondFieldError(w, "Invalid priority")
			return
		}
		priority = p
	}

	category := core.Category(strings.TrimSpace(r.Form.Get("category")))
	business := r.Form.Get("business") == "true" || r.Form.Get("business") == "on"
	if category == core.CategoryPersonal {
		business = false
	}

	rule := core.Rule{
		Pattern:    sanitizeInput(r.Form.Get("pattern")),
		Mode:       core.MatchMode(strings.TrimSpace(r.Form.Get("mode"))),
		Category:   category,
		Business:   business,
		Priority:   priority,
		Confidence: 1.0,
		Enabled:    true,
	}
	if err := rule.Validate(); err != nil {
		respondFieldError(w, "Invalid rule: "+template.HTMLEscapeString(err.Error()))
		return
	}

	created, err := s.repo.CreateRule(ctx, rule)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "create rule failed", "error", err)
		respondServerError(w, "Error saving rule")
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "rule created",
		log.FieldRuleID, created.ID,
		log.FieldCategory, string(created.Category))

	_ = NewHTMXResponse().
		TriggerFormReset().
		TriggerSuccessNotification(fmt.Sprintf("Rule created: %s (%s)", created.Pattern, created.Mode)).
		Write(w)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	s.deleteEntry(w, r, "rule", func(ctx context.Context, id int64) error {
		return s.repo.DeleteRule(ctx, id)
	})
}

// handleToggleRule flips a rule between enabled and disabled. Disabled
// rules are kept so their hit history survives.
func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		respondFormError(w, "Invalid request format")
		return
	}
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondFieldError(w, "Invalid id")
		return
	}

	ctx := r.Context()
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondFieldError(w, "Rule not found")
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "get rule failed", log.FieldRuleID, id, "error", err)
		respondServerError(w, "Error loading rule")
		return
	}

	rule.Enabled = !rule.Enabled
	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "toggle rule failed", log.FieldRuleID, id, "error", err)
		respondServerError(w, "Error updating rule")
		return
	}

	state := "disabled"
	if rule.Enabled {
		state = "enabled"
	}
	_ = NewHTMXResponse().
		TriggerRecordsChanged(parseTaxYearParam(r).Label()).
		TriggerSuccessNotification(fmt.Sprintf("Rule %s: %s", state, rule.Pattern)).
		Write(w)
}

// handleRuleDryRun previews what the enabled rules would do to the
// year's unreviewed transactions without writing anything.
func (s *Server) handleRuleDryRun(w http.ResponseWriter, r *http.Request) {
	s.runRules(w, r, true)
}

// handleRuleApply categorizes the year's unreviewed transactions by
// first-match-wins. Rows stay unreviewed so the user still confirms them.
func (s *Server) handleRuleApply(w http.ResponseWriter, r *http.Request) {
	s.runRules(w, r, false)
}

func (s *Server) runRules(w http.ResponseWriter, r *http.Request, dryRun bool) {
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
	year := parseTaxYearParam(r)

	var (
		outcomes []rules.RunOutcome
		summary  rules.RunSummary
		err      error
	)
	if dryRun {
		outcomes, summary, err = s.engine.DryRun(ctx, year)
	} else {
		outcomes, summary, err = s.engine.Apply(ctx, year)
	}
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "rule run failed",
			log.FieldTaxYear, year.Label(), "dry_run", dryRun, "error", err)
		respondServerError(w, "Error running rules")
		return
	}
	if !dryRun && summary.Applied > 0 {
		s.invalidatePages()
	}

	frag, err := s.renderFragment("_run_result.html", struct {
		Year     core.TaxYear
		DryRun   bool
		Summary  rules.RunSummary
		Outcomes []rules.RunOutcome
	}{Year: year, DryRun: dryRun, Summary: summary, Outcomes: outcomes})
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "run result template failed", "error", err)
		respondServerError(w, "Error rendering result")
		return
	}

	builder := NewHTMXResponse().Body(string(frag))
	if !dryRun {
		builder.TriggerRecordsChanged(year.Label()).
			TriggerSuccessNotification(fmt.Sprintf("Applied rules to %d of %d transactions", summary.Applied, summary.Scoped))
	}
	_ = builder.Write(w)
}
