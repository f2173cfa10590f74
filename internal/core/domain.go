package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// Review states for imported transactions.
	StatusUnreviewed ReviewStatus = "unreviewed"
	StatusReviewed   ReviewStatus = "reviewed"

	// Vehicle kinds for mileage claims.
	VehicleCar        VehicleType = "car"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleBicycle    VehicleType = "bicycle"
)

type (
	ReviewStatus string
	VehicleType  string

	Date struct {
		time.Time
	}

	Money struct {
		Pence int64
	}

	// Transaction is an imported bank statement row. Amount is signed:
	// negative pence is money out.
	Transaction struct {
		ID          int64
		Date        Date
		Description string
		Amount      Money
		Merchant    string // normalized merchant name, may be empty
		Category    Category
		Business    bool
		Confidence  float64 // 0..1, how the category was assigned
		Status      ReviewStatus
		ReceiptPath string
		Notes       string
		SourceFile  string
		SourceHash  string
	}

	// Income is a self-employment income record.
	Income struct {
		ID        int64
		Date      Date
		Amount    Money
		Source    string
		Reference string
		Notes     string
	}

	// ExpenseEntry is a manually recorded business expense (cash spend,
	// out-of-pocket cost) not present on any bank statement.
	ExpenseEntry struct {
		ID          int64
		Date        Date
		Amount      Money
		Description string
		Category    Category
		ReceiptPath string
	}

	// MileageTrip is a business journey claimed at HMRC approved rates.
	MileageTrip struct {
		ID      int64
		Date    Date
		Miles   float64
		From    string
		To      string
		Purpose string
		Vehicle VehicleType
	}

	// Donation is a charity donation, grossed up when Gift Aid applies.
	Donation struct {
		ID      int64
		Date    Date
		Amount  Money
		Charity string
		GiftAid bool
	}

	// Merchant aggregates what the tool has learned about a payee.
	Merchant struct {
		ID       int64
		Name     string // normalized (upper-cased, collapsed whitespace)
		Display  string
		Category Category
		Business bool
		// TxnCount and CategoryHits back the rule-learning heuristic.
		TxnCount     int64
		CategoryHits int64
	}

	// AuditEntry records a mutation with before/after snapshots.
	AuditEntry struct {
		ID         int64
		EntityType string
		EntityID   int64
		Action     string
		BeforeJSON string
		AfterJSON  string
		At         time.Time
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidMiles     = errors.New("invalid miles")
	ErrInvalidVehicle   = errors.New("invalid vehicle type")
	ErrEmptySource      = errors.New("empty income source")
	ErrEmptyCharity     = errors.New("empty charity name")
	ErrNotFound         = errors.New("not found")
)

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ISO formats the date as YYYY-MM-DD.
func (d Date) ISO() string {
	return d.Format("2006-01-02")
}

// Day returns the day of the month.
func (d Date) Day() int { return d.Time.Day() }

// Month returns the month as an int.
func (d Date) Month() int { return int(d.Time.Month()) }

// Year returns the year.
func (d Date) Year() int { return d.Time.Year() }

func (m Money) Validate() error {
	if m.Pence <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	if t.Amount.Pence == 0 {
		return ErrInvalidAmount
	}
	if t.Category != "" && !ValidCategory(t.Category) {
		return ErrInvalidCategory
	}
	switch t.Status {
	case "", StatusUnreviewed, StatusReviewed:
	default:
		return errors.New("invalid review status")
	}
	return nil
}

// IsMoneyOut reports whether this transaction spends money.
func (t Transaction) IsMoneyOut() bool { return t.Amount.Pence < 0 }

func (i Income) Validate() error {
	if err := i.Date.Validate(); err != nil {
		return err
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(i.Source) == "" {
		return ErrEmptySource
	}
	if len(i.Source) > 200 {
		return errors.New("source too long (max 200 characters)")
	}
	return nil
}

func (e ExpenseEntry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if !ValidCategory(e.Category) || e.Category == CategoryPersonal {
		return ErrInvalidCategory
	}
	return nil
}

func (mt MileageTrip) Validate() error {
	if err := mt.Date.Validate(); err != nil {
		return err
	}
	if mt.Miles <= 0 || mt.Miles > 5000 {
		return ErrInvalidMiles
	}
	switch mt.Vehicle {
	case VehicleCar, VehicleMotorcycle, VehicleBicycle:
	default:
		return ErrInvalidVehicle
	}
	if len(strings.TrimSpace(mt.Purpose)) == 0 {
		return errors.New("empty trip purpose")
	}
	return nil
}

func (dn Donation) Validate() error {
	if err := dn.Date.Validate(); err != nil {
		return err
	}
	if err := dn.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(dn.Charity) == "" {
		return ErrEmptyCharity
	}
	return nil
}

// GrossAmount returns the Gift Aid grossed-up value: the charity reclaims
// basic-rate tax, so a net £80 donation is worth £100 gross. Donations
// without Gift Aid return the net amount unchanged.
func (dn Donation) GrossAmount() Money {
	if !dn.GiftAid {
		return dn.Amount
	}
	// gross = net * 100/80, half-up
	return Money{Pence: (dn.Amount.Pence*100 + 40) / 80}
}

// NormalizeMerchant upper-cases and collapses whitespace so that
// "Tesco  Stores 3297" and "TESCO STORES 3297" compare equal.
func NormalizeMerchant(s string) string {
	fields := strings.Fields(strings.ToUpper(strings.TrimSpace(s)))
	return strings.Join(fields, " ")
}
