package core

import (
	"errors"
	"testing"
)

func TestRuleMatches(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
		desc string
		want bool
	}{
		{"exact hit", Rule{Pattern: "tesco stores", Mode: MatchExact}, "TESCO STORES", true},
		{"exact miss on extra text", Rule{Pattern: "tesco", Mode: MatchExact}, "TESCO STORES", false},
		{"contains hit", Rule{Pattern: "tesco", Mode: MatchContains}, "CARD PAYMENT TESCO STORES 3297", true},
		{"contains miss", Rule{Pattern: "sainsbury", Mode: MatchContains}, "TESCO STORES", false},
		{"prefix hit", Rule{Pattern: "dd ", Mode: MatchPrefix}, "DD BRITISH GAS", true},
		{"prefix miss mid-string", Rule{Pattern: "gas", Mode: MatchPrefix}, "DD BRITISH GAS", false},
		{"contains collapses padding", Rule{Pattern: "tesco stores", Mode: MatchContains}, "CARD PAYMENT  TESCO   STORES 3297", true},
		{"exact collapses padding", Rule{Pattern: "tesco stores", Mode: MatchExact}, "  TESCO \t STORES  ", true},
		{"prefix collapses padding", Rule{Pattern: "dd british", Mode: MatchPrefix}, "DD   BRITISH GAS", true},
		{"regex hit", Rule{Pattern: `^TFL\b`, Mode: MatchRegex}, "TFL TRAVEL CH", true},
		{"regex case-insensitive", Rule{Pattern: `uber\s+trip`, Mode: MatchRegex}, "UBER   TRIP HELP.UBER.COM", true},
		{"regex miss", Rule{Pattern: `^TFL\b`, Mode: MatchRegex}, "NOT TFL", false},
		{"invalid regex never matches", Rule{Pattern: "(", Mode: MatchRegex}, "anything", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rule.Matches(tc.desc); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestRuleValidate(t *testing.T) {
	valid := Rule{Pattern: "tesco", Mode: MatchContains, Category: CategoryGoodsForResale, Confidence: 0.9}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	bad := valid
	bad.Pattern = " "
	if err := bad.Validate(); !errors.Is(err, ErrEmptyPattern) {
		t.Fatalf("expected ErrEmptyPattern, got %v", err)
	}
	bad = valid
	bad.Mode = "glob"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	bad = valid
	bad.Mode = MatchRegex
	bad.Pattern = "("
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("expected ErrInvalidPattern, got %v", err)
	}
	bad = valid
	bad.Confidence = 1.5
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for confidence out of range")
	}
}
