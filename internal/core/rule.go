package core

import (
	"errors"
	"regexp"
	"strings"
)

// Match modes for categorization rules.
const (
	MatchExact    MatchMode = "exact"
	MatchContains MatchMode = "contains"
	MatchPrefix   MatchMode = "prefix"
	MatchRegex    MatchMode = "regex"
)

type (
	MatchMode string

	// Rule assigns a category to transactions whose description matches a
	// pattern. Rules are evaluated in priority order (higher first, then
	// oldest), first match wins.
	Rule struct {
		ID         int64
		Pattern    string
		Mode       MatchMode
		Category   Category
		Business   bool
		Priority   int
		Confidence float64
		Learned    bool // created automatically from repeated recategorizations
		Enabled    bool
		HitCount   int64
	}
)

var (
	ErrEmptyPattern   = errors.New("empty rule pattern")
	ErrInvalidMode    = errors.New("invalid match mode")
	ErrInvalidPattern = errors.New("invalid rule pattern")
)

func (r Rule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return ErrEmptyPattern
	}
	switch r.Mode {
	case MatchExact, MatchContains, MatchPrefix:
	case MatchRegex:
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return ErrInvalidPattern
		}
	default:
		return ErrInvalidMode
	}
	if !ValidCategory(r.Category) {
		return ErrInvalidCategory
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return errors.New("confidence out of range")
	}
	return nil
}

// Matches reports whether the rule pattern matches a transaction
// description. The description is upper-cased and runs of whitespace
// are collapsed before comparing, so bank-statement padding never
// defeats a rule. Non-regex patterns get the same treatment.
func (r Rule) Matches(description string) bool {
	desc := strings.Join(strings.Fields(strings.ToUpper(description)), " ")
	switch r.Mode {
	case MatchExact:
		return desc == normalizePattern(r.Pattern)
	case MatchContains:
		return strings.Contains(desc, normalizePattern(r.Pattern))
	case MatchPrefix:
		return strings.HasPrefix(desc, normalizePattern(r.Pattern))
	case MatchRegex:
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(desc)
	}
	return false
}

func normalizePattern(pattern string) string {
	return strings.Join(strings.Fields(strings.ToUpper(pattern)), " ")
}
