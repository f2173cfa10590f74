package core

import "testing"

func TestTaxYearOf(t *testing.T) {
	cases := []struct {
		y, m, d int
		want    TaxYear
	}{
		{2024, 4, 5, 2023},  // last day of 2023-24
		{2024, 4, 6, 2024},  // first day of 2024-25
		{2024, 12, 31, 2024},
		{2025, 1, 1, 2024},
		{2025, 4, 5, 2024},
		{2025, 4, 6, 2025},
	}
	for _, tc := range cases {
		got := TaxYearOf(NewDate(tc.y, tc.m, tc.d))
		if got != tc.want {
			t.Fatalf("%04d-%02d-%02d: expected %d, got %d", tc.y, tc.m, tc.d, tc.want, got)
		}
	}
}

func TestTaxYearLabel(t *testing.T) {
	if got := TaxYear(2024).Label(); got != "2024-25" {
		t.Fatalf("expected 2024-25, got %q", got)
	}
	if got := TaxYear(1999).Label(); got != "1999-00" {
		t.Fatalf("expected 1999-00, got %q", got)
	}
}

func TestTaxYearContains(t *testing.T) {
	ty := TaxYear(2024)
	if !ty.Contains(NewDate(2024, 4, 6)) {
		t.Fatal("start of year should be contained")
	}
	if !ty.Contains(NewDate(2025, 4, 5)) {
		t.Fatal("end of year should be contained")
	}
	if ty.Contains(NewDate(2025, 4, 6)) {
		t.Fatal("next year start should not be contained")
	}
	if ty.Contains(NewDate(2024, 4, 5)) {
		t.Fatal("previous year end should not be contained")
	}
}

func TestParseTaxYear(t *testing.T) {
	cases := []struct {
		in   string
		want TaxYear
		ok   bool
	}{
		{"2024-25", 2024, true},
		{"2024", 2024, true},
		{" 2023-24 ", 2023, true},
		{"2024-26", 0, false}, // label must be consecutive
		{"1850", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseTaxYear(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.want, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}
