package core

import (
	"errors"
	"strings"
	"testing"
)

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{
		Date:        NewDate(2024, 6, 1),
		Description: "TESCO STORES 3297",
		Amount:      Money{Pence: -1250},
		Status:      StatusUnreviewed,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, ErrInvalidDate},
		{"empty description", func(tx *Transaction) { tx.Description = "  " }, ErrEmptyDescription},
		{"zero amount", func(tx *Transaction) { tx.Amount = Money{} }, ErrInvalidAmount},
		{"unknown category", func(tx *Transaction) { tx.Category = "nonsense" }, ErrInvalidCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := valid
			tc.mutate(&tx)
			if err := tx.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	long := valid
	long.Description = strings.Repeat("x", 501)
	if err := long.Validate(); err == nil {
		t.Fatal("expected error for over-long description")
	}
}

func TestMileageTripValidate(t *testing.T) {
	valid := MileageTrip{
		Date:    NewDate(2024, 6, 1),
		Miles:   42,
		Purpose: "Client visit",
		Vehicle: VehicleCar,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	bad := valid
	bad.Miles = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidMiles) {
		t.Fatalf("expected ErrInvalidMiles, got %v", err)
	}
	bad = valid
	bad.Miles = 5001
	if err := bad.Validate(); !errors.Is(err, ErrInvalidMiles) {
		t.Fatalf("expected ErrInvalidMiles for implausible distance, got %v", err)
	}
	bad = valid
	bad.Vehicle = "skateboard"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidVehicle) {
		t.Fatalf("expected ErrInvalidVehicle, got %v", err)
	}
}

func TestDonationGrossAmount(t *testing.T) {
	d := Donation{Amount: Money{Pence: 8000}, GiftAid: true}
	if got := d.GrossAmount().Pence; got != 10000 {
		t.Fatalf("expected £80 to gross to £100, got %d pence", got)
	}
	d.GiftAid = false
	if got := d.GrossAmount().Pence; got != 8000 {
		t.Fatalf("expected net amount without gift aid, got %d pence", got)
	}
	// Rounding: £1.00 net -> £1.25 gross
	d = Donation{Amount: Money{Pence: 100}, GiftAid: true}
	if got := d.GrossAmount().Pence; got != 125 {
		t.Fatalf("expected 125 pence, got %d", got)
	}
}

func TestExpenseEntryValidate(t *testing.T) {
	e := ExpenseEntry{
		Date:        NewDate(2024, 6, 1),
		Amount:      Money{Pence: 500},
		Description: "Printer paper",
		Category:    CategoryOffice,
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	e.Category = CategoryPersonal
	if err := e.Validate(); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("manual expenses must use a business category, got %v", err)
	}
}

func TestNormalizeMerchant(t *testing.T) {
	cases := []struct{ in, out string }{
		{"Tesco  Stores 3297", "TESCO STORES 3297"},
		{"  amazon.co.uk ", "AMAZON.CO.UK"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeMerchant(tc.in); got != tc.out {
			t.Fatalf("%q: expected %q, got %q", tc.in, tc.out, got)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-04-06")
	if err != nil || d.Year() != 2024 || d.Month() != 4 || d.Day() != 6 {
		t.Fatalf("unexpected result %v, %v", d, err)
	}
	if _, err := ParseDate("06/04/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
