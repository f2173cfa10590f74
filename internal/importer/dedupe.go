package importer

import (
	"math"

	"github.com/agnivade/levenshtein"

	"taxfolio/internal/core"
)

const (
	// nearDupWindowDays is how far apart two transactions can be and
	// still count as a possible duplicate.
	nearDupWindowDays = 3

	// nearDupMaxRatio is the maximum levenshtein distance relative to
	// description length for a near-duplicate.
	nearDupMaxRatio = 0.4
)

// NearDuplicate pairs an imported transaction with an existing one that
// looks suspiciously similar. These are flagged for review, never dropped:
// only an identical source hash is a hard duplicate.
type NearDuplicate struct {
	Imported core.Transaction
	Existing core.Transaction
	Ratio    float64
}

// FindNearDuplicates compares freshly imported transactions against
// existing ones: same amount, within a few days, and descriptions
// within edit-distance tolerance.
func FindNearDuplicates(imported, existing []core.Transaction) []NearDuplicate {
	var dupes []NearDuplicate
	for _, in := range imported {
		for _, ex := range existing {
			if in.SourceHash == ex.SourceHash {
				continue // hard duplicate, already skipped on insert
			}
			if in.Amount.Pence != ex.Amount.Pence {
				continue
			}
			if daysApart(in.Date, ex.Date) > nearDupWindowDays {
				continue
			}
			ratio := distanceRatio(in.Merchant, ex.Merchant)
			if ratio < nearDupMaxRatio {
				dupes = append(dupes, NearDuplicate{Imported: in, Existing: ex, Ratio: ratio})
			}
		}
	}
	return dupes
}

func daysApart(a, b core.Date) int {
	return int(math.Abs(a.Time.Sub(b.Time).Hours()) / 24)
}

func distanceRatio(a, b string) float64 {
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(longest)
}
