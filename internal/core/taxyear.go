package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaxYear identifies a UK tax year by its starting calendar year.
// The UK tax year runs 6 April to 5 April, so TaxYear(2024) covers
// 2024-04-06 through 2025-04-05 and is labelled "2024-25".
type TaxYear int

// TaxYearOf returns the tax year containing the given date.
func TaxYearOf(d Date) TaxYear {
	y := d.Year()
	boundary := time.Date(y, time.April, 6, 0, 0, 0, 0, time.UTC)
	if d.Time.Before(boundary) {
		return TaxYear(y - 1)
	}
	return TaxYear(y)
}

// CurrentTaxYear returns the tax year containing today.
func CurrentTaxYear() TaxYear {
	return TaxYearOf(Date{Time: time.Now().UTC()})
}

// Start returns the first day of the tax year (6 April).
func (ty TaxYear) Start() Date {
	return NewDate(int(ty), 4, 6)
}

// End returns the last day of the tax year (5 April of the following year).
func (ty TaxYear) End() Date {
	return NewDate(int(ty)+1, 4, 5)
}

// Contains reports whether d falls within the tax year.
func (ty TaxYear) Contains(d Date) bool {
	return TaxYearOf(d) == ty
}

// Label formats the tax year as HMRC writes it, e.g. "2024-25".
func (ty TaxYear) Label() string {
	return fmt.Sprintf("%d-%02d", int(ty), (int(ty)+1)%100)
}

// ParseTaxYear parses labels like "2024-25" or a bare start year "2024".
func ParseTaxYear(s string) (TaxYear, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty tax year")
	}
	start, end := s, ""
	if i := strings.IndexAny(s, "-/"); i >= 0 {
		start, end = s[:i], s[i+1:]
	}
	y, err := strconv.Atoi(start)
	if err != nil || y < 1990 || y > 2100 {
		return 0, fmt.Errorf("invalid tax year %q", s)
	}
	if end != "" {
		// The suffix must name the following year: "2024-25" or "2024-2025".
		e, err := strconv.Atoi(end)
		if err != nil || (e != (y+1)%100 && e != y+1) {
			return 0, fmt.Errorf("invalid tax year %q", s)
		}
	}
	return TaxYear(y), nil
}
