package core

// Category is an SA103S expense category key. Business transactions map to
// one of the self-employment short form expense boxes; everything else is
// CategoryPersonal.
type Category string

const (
	CategoryGoodsForResale   Category = "goods_for_resale"
	CategoryTravel           Category = "travel"
	CategoryStaff            Category = "staff"
	CategoryPremises         Category = "premises"
	CategoryRepairs          Category = "repairs"
	CategoryOffice           Category = "office"
	CategoryAdvertising      Category = "advertising"
	CategoryLoanInterest     Category = "loan_interest"
	CategoryBankCharges      Category = "bank_charges"
	CategoryBadDebts         Category = "bad_debts"
	CategoryProfessionalFees Category = "professional_fees"
	CategoryDepreciation     Category = "depreciation"
	CategoryOther            Category = "other"

	// CategoryPersonal marks non-business rows. It never appears on the
	// SA103S summary.
	CategoryPersonal Category = "personal"
)

// CategoryInfo describes a category for display and form export.
type CategoryInfo struct {
	Key   Category
	Label string
	// Box is the SA103S full expenses box number (17-29), 0 for personal.
	Box int
	// Allowable is false for expenses summed but disallowed for tax
	// (depreciation, box 28).
	Allowable bool
}

var categoryInfos = []CategoryInfo{
	{CategoryGoodsForResale, "Cost of goods bought for resale", 17, true},
	{CategoryTravel, "Car, van and travel expenses", 18, true},
	{CategoryStaff, "Wages, salaries and other staff costs", 19, true},
	{CategoryPremises, "Rent, rates, power and insurance", 20, true},
	{CategoryRepairs, "Repairs and maintenance of property and equipment", 21, true},
	{CategoryOffice, "Phone, fax, stationery and other office costs", 22, true},
	{CategoryAdvertising, "Advertising and business entertainment costs", 23, true},
	{CategoryLoanInterest, "Interest on bank and other loans", 24, true},
	{CategoryBankCharges, "Bank, credit card and other financial charges", 25, true},
	{CategoryBadDebts, "Irrecoverable debts written off", 26, true},
	{CategoryProfessionalFees, "Accountancy, legal and other professional fees", 27, true},
	{CategoryDepreciation, "Depreciation and loss on sale of assets", 28, false},
	{CategoryOther, "Other allowable business expenses", 29, true},
	{CategoryPersonal, "Personal (non-business)", 0, false},
}

var categoryByKey = func() map[Category]CategoryInfo {
	m := make(map[Category]CategoryInfo, len(categoryInfos))
	for _, ci := range categoryInfos {
		m[ci.Key] = ci
	}
	return m
}()

// Categories returns all categories in SA103S box order, personal last.
func Categories() []CategoryInfo {
	out := make([]CategoryInfo, len(categoryInfos))
	copy(out, categoryInfos)
	return out
}

// BusinessCategories returns only the SA103S expense categories.
func BusinessCategories() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(categoryInfos)-1)
	for _, ci := range categoryInfos {
		if ci.Key != CategoryPersonal {
			out = append(out, ci)
		}
	}
	return out
}

// ValidCategory reports whether key is a known category.
func ValidCategory(key Category) bool {
	_, ok := categoryByKey[key]
	return ok
}

// Info returns display metadata for the category. Unknown keys fall back
// to "other".
func (c Category) Info() CategoryInfo {
	if ci, ok := categoryByKey[c]; ok {
		return ci
	}
	return categoryByKey[CategoryOther]
}

// Label returns the display label for the category.
func (c Category) Label() string { return c.Info().Label }

// IsBusiness reports whether the category is an SA103S expense box.
func (c Category) IsBusiness() bool { return c != CategoryPersonal && c != "" }
