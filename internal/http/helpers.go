package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taxfolio/internal/core"
)

// parseTaxYearParam extracts the tax year from query or form values,
// defaulting to the tax year of today.
func parseTaxYearParam(r *http.Request) core.TaxYear {
	v := strings.TrimSpace(r.URL.Query().Get("tax_year"))
	if v == "" {
		v = strings.TrimSpace(r.FormValue("tax_year"))
	}
	if v == "" {
		return core.CurrentTaxYear()
	}
	year, err := core.ParseTaxYear(v)
	if err != nil {
		return core.CurrentTaxYear()
	}
	return year
}

// parseIDParam extracts a positive int64 form or query value.
func parseIDParam(r *http.Request, name string) (int64, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		v = strings.TrimSpace(r.URL.Query().Get(name))
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return id, nil
}

// parseDateField parses a YYYY-MM-DD form field, defaulting to today
// when empty.
func parseDateField(r *http.Request, name string) (core.Date, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		now := time.Now()
		return core.NewDate(now.Year(), int(now.Month()), now.Day()), nil
	}
	return core.ParseDate(v)
}

// formatPounds formats pence as a GBP string (e.g. "£12.34").
func formatPounds(pence int64) string {
	neg := pence < 0
	if neg {
		pence = -pence
	}
	s := fmt.Sprintf("£%d.%02d", pence/100, pence%100)
	if neg {
		return "-" + s
	}
	return s
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
