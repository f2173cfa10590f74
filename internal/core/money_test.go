package core

import "testing"

func TestParseDecimalToPence(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"£2.50", 250, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToPence(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseStatementAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"12.34", 1234, true},
		{"-12.34", -1234, true},
		{"£1,250.00", 125000, true},
		{"-£45.99", -4599, true},
		{"(45.99)", -4599, true}, // parentheses mean debit
		{"0.00", 0, true},
		{"+9.99", 999, true},
		{"", 0, false},
		{"12.34.56", 0, false},
		{"twelve", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseStatementAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyPounds(t *testing.T) {
	m := Money{Pence: 1234}
	if m.Pounds() != 12.34 {
		t.Fatalf("expected 12.34, got %v", m.Pounds())
	}
	if (Money{Pence: -500}).Abs().Pence != 500 {
		t.Fatal("Abs should drop the sign")
	}
}
