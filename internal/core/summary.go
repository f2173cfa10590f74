package core

import "sort"

type (
	// CategoryTotal is one SA103S expense box with its running total.
	CategoryTotal struct {
		Category Category
		Label    string
		Box      int
		Total    Money
		Count    int
	}

	// TaxYearSummary is everything the summary page and the exports need
	// for one tax year.
	TaxYearSummary struct {
		Year             TaxYear
		TotalIncome      Money
		IncomeCount      int
		ExpenseTotals    []CategoryTotal
		TotalExpenses    Money // allowable expenses only
		DisallowedTotal  Money // depreciation and other disallowable boxes
		MileageMiles     float64
		MileageAllowance Money
		DonationNet      Money
		DonationGross    Money
		NetProfit        Money // income - allowable expenses - mileage allowance
		Unreviewed       int
	}
)

// BuildSummary aggregates a tax year's records. Transactions contribute only
// when marked business with a category; personal and unreviewed rows are
// counted but excluded from totals. Mileage trips are processed in date
// order so the 10,000-mile car threshold applies cumulatively.
func BuildSummary(year TaxYear, txns []Transaction, incomes []Income, expenses []ExpenseEntry, trips []MileageTrip, donations []Donation) TaxYearSummary {
	s := TaxYearSummary{Year: year}
	byCat := make(map[Category]*CategoryTotal)

	add := func(c Category, pence int64) {
		ct, ok := byCat[c]
		if !ok {
			info := c.Info()
			ct = &CategoryTotal{Category: c, Label: info.Label, Box: info.Box}
			byCat[c] = ct
		}
		ct.Total.Pence += pence
		ct.Count++
	}

	for _, t := range txns {
		if !year.Contains(t.Date) {
			continue
		}
		if t.Status != StatusReviewed {
			s.Unreviewed++
		}
		if !t.Business || t.Category == "" || t.Category == CategoryPersonal {
			continue
		}
		add(t.Category, t.Amount.Abs().Pence)
	}
	for _, e := range expenses {
		if !year.Contains(e.Date) {
			continue
		}
		add(e.Category, e.Amount.Pence)
	}

	for _, inc := range incomes {
		if !year.Contains(inc.Date) {
			continue
		}
		s.TotalIncome.Pence += inc.Amount.Pence
		s.IncomeCount++
	}

	sort.Slice(trips, func(i, j int) bool { return trips[i].Date.Time.Before(trips[j].Date.Time) })
	var carMiles float64
	for _, trip := range trips {
		if !year.Contains(trip.Date) {
			continue
		}
		claim := MileageClaim(trip, carMiles)
		if trip.Vehicle == VehicleCar {
			carMiles += trip.Miles
		}
		s.MileageMiles += trip.Miles
		s.MileageAllowance.Pence += claim.Pence
	}

	for _, d := range donations {
		if !year.Contains(d.Date) {
			continue
		}
		s.DonationNet.Pence += d.Amount.Pence
		s.DonationGross.Pence += d.GrossAmount().Pence
	}

	for _, ct := range byCat {
		s.ExpenseTotals = append(s.ExpenseTotals, *ct)
		if ct.Category.Info().Allowable {
			s.TotalExpenses.Pence += ct.Total.Pence
		} else {
			s.DisallowedTotal.Pence += ct.Total.Pence
		}
	}
	sort.Slice(s.ExpenseTotals, func(i, j int) bool {
		return s.ExpenseTotals[i].Box < s.ExpenseTotals[j].Box
	})

	s.NetProfit.Pence = s.TotalIncome.Pence - s.TotalExpenses.Pence - s.MileageAllowance.Pence
	return s
}
