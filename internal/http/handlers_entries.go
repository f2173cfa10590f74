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
)

// The four manual-entry pages share one GET+POST shape: GET renders the
// page with the year's records, POST creates a record and answers with
// HTMX triggers.

// deleteEntry handles the shared soft-delete flow for manual records.
func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request, label string, del func(context.Context, int64) error) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		w.Header().Set("Allow", "POST, DELETE")
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
	if err := del(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondFieldError(w, "Record not found")
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "delete failed", "entity", label, "id", id, "error", err)
		respondServerError(w, "Error deleting record")
		return
	}
	s.invalidatePages()

	_ = NewHTMXResponse().
		TriggerRecordsChanged(parseTaxYearParam(r).Label()).
		TriggerSuccessNotification("Deleted " + label).
		Write(w)
}

func (s *Server) handleIncome(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		year := parseTaxYearParam(r)
		incomes, err := s.repo.ListIncomes(r.Context(), year)
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "list incomes failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.render(w, r, "income.html", struct {
			Year    core.TaxYear
			Incomes []core.Income
		}{Year: year, Incomes: incomes})

	case http.MethodPost:
		s.createIncome(w, r)

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createIncome(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondFormError(w, "Invalid request format")
		return
	}
	ctx := r.Context()

	date, err := parseDateField(r, "date")
	if err != nil {
		respondFieldError(w, "Invalid date")
		return
	}
	pence, err := core.ParseDecimalToPence(strings.TrimSpace(r.Form.Get("amount")))
	if err != nil {
		respondFieldError(w, "Invalid amount")
		return
	}

	inc := core.Income{
		Date:      date,
		Amount:    core.Money{Pence: pence},
		Source:    sanitizeInput(r.Form.Get("source")),
		Reference: sanitizeInput(r.Form.Get("reference")),
		Notes:     sanitizeInput(r.Form.Get("notes")),
	}
	if err := inc.Validate(); err != nil {
		respondFieldError(w, "Invalid data: "+template.HTMLEscapeString(err.Error()))
		return
	}

	created, err := s.repo.CreateIncome(ctx, inc)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "create income failed", "error", err)
		respondServerError(w, "Error saving income")
		return
	}
	s.invalidatePages()

	if s.syncSheets {
		s.enqueueSheetsSync(r, "income", created.ID)
	}

	_ = NewHTMXResponse().
		TriggerFormReset().
		TriggerRecordsChanged(core.TaxYearOf(created.Date).Label()).
		TriggerSuccessNotification(fmt.Sprintf("Income recorded: %s — %s",
			created.Source, formatPounds(created.Amount.Pence))).
		Write(w)
}

// handleUpdateIncome rewrites an existing record in place; the audit
// trail keeps the before/after snapshots.
func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
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
	date, err := parseDateField(r, "date")
	if err != nil {
		respondFieldError(w, "Invalid date")
		return
	}
	pence, err := core.ParseDecimalToPence(strings.TrimSpace(r.Form.Get("amount")))
	if err != nil {
		respondFieldError(w, "Invalid amount")
		return
	}

	inc := core.Income{
		ID:        id,
		Date:      date,
		Amount:    core.Money{Pence: pence},
		Source:    sanitizeInput(r.Form.Get("source")),
		Reference: sanitizeInput(r.Form.Get("reference")),
		Notes:     sanitizeInput(r.Form.Get("notes")),
	}
	if err := inc.Validate(); err != nil {
		respondFieldError(w, "Invalid data: "+template.HTMLEscapeString(err.Error()))
		return
	}

	ctx := r.Context()
	if err := s.repo.UpdateIncome(ctx, inc); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondFieldError(w, "Record not found")
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "update income failed", "id", id, "error", err)
		respondServerError(w, "Error updating income")
		return
	}
	s.invalidatePages()

	if s.syncSheets {
		s.enqueueSheetsSync(r, "income", id)
	}

	_ = NewHTMXResponse().
		TriggerRecordsChanged(core.TaxYearOf(inc.Date).Label()).
		TriggerSuccessNotification(fmt.Sprintf("Income updated: %s — %s",
			inc.Source, formatPounds(inc.Amount.Pence))).
		Write(w)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	s.deleteEntry(w, r, "income", func(ctx context.Context, id int64) error {
		return s.repo.DeleteIncome(ctx, id)
	})
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		year := parseTaxYearParam(r)
		expenses, err := s.repo.ListExpenses(r.Context(), year)
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "list expenses failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.render(w, r, "expenses.html", struct {
			Year     core.TaxYear
			Expenses []core.ExpenseEntry
		}{Year: year, Expenses: expenses})

	case http.MethodPost:
		s.createExpense(w, r)

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondFormError(w, "Invalid request format")
		return
	}
	ctx := r.Context()

	date, err := parseDateField(r, "date")
	if err != nil {
		respondFieldError(w, "Invalid date")
		return
	}
	pence, err := core.ParseDecimalToPence(strings.TrimSpace(r.Form.Get("amount")))
	if err != nil {
		respondFieldError(w, "Invalid amount")
		return
	}
	category := core.Category(strings.TrimSpace(r.Form.Get("category")))

	exp := core.ExpenseEntry{
		Date:        date,
		Amount:      core.Money{Pence: pence},
		Description: sanitizeInput(r.Form.Get("description")),
		Category:    category,
	}
	if err := exp.Validate(); err != nil {
		respondFieldError(w, "Invalid data: "+template.HTMLEscapeString(err.Error()))
		return
	}

	created, err := s.repo.CreateExpense(ctx, exp)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "create expense failed", "error", err)
		respondServerError(w, "Error saving expense")
		return
	}
	s.invalidatePages()

	if s.syncSheets {
		s.enqueueSheetsSync(r, "expense", created.ID)
	}

	_ = NewHTMXResponse().
		TriggerFormReset().
		TriggerRecordsChanged(core.TaxYearOf(created.Date).Label()).
		TriggerSuccessNotification(fmt.Sprintf("Expense recorded: %s — %s (%s)",
			created.Description, formatPounds(created.Amount.Pence), created.Category.Label())).
		Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
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
	date, err := parseDateField(r, "date")
	if err != nil {
		respondFieldError(w, "Invalid date")
		return
	}
	pence, err := core.ParseDecimalToPence(strings.TrimSpace(r.Form.Get("amount")))
	if err != nil {
		respondFieldError(w, "Invalid amount")
		return
	}

	ctx := r.Context()
	existing, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondFieldError(w, "Record not found")
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "get expense failed", "id", id, "error", err)
		respondServerError(w, "Error loading expense")
		return
	}

	exp := core.ExpenseEntry{
		ID:          id,
		Date:        date,
		Amount:      core.Money{Pence: pence},
		Description: sanitizeInput(r.Form.Get("description")),
		Category:    core.Category(strings.TrimSpace(r.Form.Get("category"))),
		ReceiptPath: existing.ReceiptPath,
	}
	if err := exp.Validate(); err != nil {
		respondFieldError(w, "Invalid data: "+template.HTMLEscapeString(err.Error()))
		return
	}

	if err := s.repo.UpdateExpense(ctx, exp); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondFieldError(w, "Record not found")
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "update expense failed", "id", id, "error", err)
		respondServerError(w, "Error updating expense")
		return
	}
	s.invalidatePages()

	if s.syncSheets {
		s.enqueueSheetsSync(r, "expense", id)
	}

	_ = NewHTMXResponse().
		TriggerRecordsChanged(core.TaxYearOf(exp.Date).Label()).
		TriggerSuccessNotification(fmt.Sprintf("Expense updated: %s — %s (%s)",
			exp.Description, formatPounds(exp.Amount.Pence), exp.Category.Label())).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	s.deleteEntry(w, r, "expense", func(ctx context.Context, id int64) error {
		return s.repo.DeleteExpense(ctx, id)
	})
}

func (s *Server) handleMileage(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		year := parseTaxYearParam(r)
		trips, err := s.repo.ListMileageTrips(r.Context(), year)
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "list mileage failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		// Allowance per trip, with the 10,000-mile car threshold applied
		// in date order across the year.
		var carMiles float64
		type tripRow struct {
			Trip      core.MileageTrip
			Allowance core.Money
		}
		rows := make([]tripRow, 0, len(trips))
		var total core.Money
		for _, trip := range trips {
			claim := core.MileageClaim(trip, carMiles)
			if trip.Vehicle == core.VehicleCar {
				carMiles += trip.Miles
			}
			total.Pence += claim.Pence
			rows = append(rows, tripRow{Trip: trip, Allowance: claim})
		}

		s.render(w, r, "mileage.html", struct {
			Year  core.TaxYear
			Rows  []tripRow
			Total core.Money
		}{Year: year, Rows: rows, Total: total})

	case http.MethodPost:
		s.createMileage(w, r)

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createMileage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondFormError(w, "Invalid request format")
		return
	}
	ctx := r.Context()

	date, err := parseDateField(r, "date")
	if err != nil {
		respondFieldError(w, "Invalid date")
		return
	}
	miles, err := strconv.ParseFloat(strings.TrimSpace(r.Form.Get("miles")), 64)
	if err != nil {
		respondFieldError(w, "Invalid miles")
		return
	}

	trip := core.MileageTrip{
		Date:    date,
		Miles:   miles,
		From:    sanitizeInput(r.Form.Get("from")),
		To:      sanitizeInput(r.Form.Get("to")),
		Purpose: sanitizeInput(r.Form.Get("purpose")),
		Vehicle: core.VehicleType(strings.TrimSpace(r.Form.Get("vehicle"))),
	}
	if err := trip.Validate(); err != nil {
		respondFieldError(w, "Invalid data: "+template.HTMLEscapeString(err.Error()))
		return
	}

	created, err := s.repo.CreateMileageTrip(ctx, trip)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "create mileage trip failed", "error", err)
		respondServerError(w, "Error saving trip")
		return
	}
	s.invalidatePages()

	_ = NewHTMXResponse().
		TriggerFormReset().
		TriggerRecordsChanged(core.TaxYearOf(created.Date).Label()).
		TriggerSuccessNotification(fmt.Sprintf("Trip recorded: %.1f miles (%s)", created.Miles, created.Vehicle)).
		Write(w)
}

func (s *Server) handleDeleteMileage(w http.ResponseWriter, r *http.Request) {
	s.deleteEntry(w, r, "mileage trip", func(ctx context.Context, id int64) error {
		return s.repo.DeleteMileageTrip(ctx, id)
	})
}

func (s *Server) handleDonations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		year := parseTaxYearParam(r)
		donations, err := s.repo.ListDonations(r.Context(), year)
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "list donations failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.render(w, r, "donations.html", struct {
			Year      core.TaxYear
			Donations []core.Donation
		}{Year: year, Donations: donations})

	case http.MethodPost:
		s.createDonation(w, r)

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createDonation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondFormError(w, "Invalid request format")
		return
	}
	ctx := r.Context()

	date, err := parseDateField(r, "date")
	if err != nil {
		respondFieldError(w, "Invalid date")
		return
	}
	pence, err := core.ParseDecimalToPence(strings.TrimSpace(r.Form.Get("amount")))
	if err != nil {
		respondFieldError(w, "Invalid amount")
		return
	}

	dn := core.Donation{
		Date:    date,
		Amount:  core.Money{Pence: pence},
		Charity: sanitizeInput(r.Form.Get("charity")),
		GiftAid: r.Form.Get("gift_aid") == "true" || r.Form.Get("gift_aid") == "on",
	}
	if err := dn.Validate(); err != nil {
		respondFieldError(w, "Invalid data: "+template.HTMLEscapeString(err.Error()))
		return
	}

	created, err := s.repo.CreateDonation(ctx, dn)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "create donation failed", "error", err)
		respondServerError(w, "Error saving donation")
		return
	}
	s.invalidatePages()

	msg := fmt.Sprintf("Donation recorded: %s — %s", created.Charity, formatPounds(created.Amount.Pence))
	if created.GiftAid {
		msg += fmt.Sprintf(" (gross %s with Gift Aid)", formatPounds(created.GrossAmount().Pence))
	}
	_ = NewHTMXResponse().
		TriggerFormReset().
		TriggerRecordsChanged(core.TaxYearOf(created.Date).Label()).
		TriggerSuccessNotification(msg).
		Write(w)
}

func (s *Server) handleDeleteDonation(w http.ResponseWriter, r *http.Request) {
	s.deleteEntry(w, r, "donation", func(ctx context.Context, id int64) error {
		return s.repo.DeleteDonation(ctx, id)
	})
}
