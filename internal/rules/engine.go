// Package rules evaluates categorization rules against imported
// transactions. Reviewed transactions are never touched: a manual decision
// always outranks a rule, and fuzzy merchant suggestions outrank nothing --
// they are only ever offered, never applied.
package rules

import (
	"context"
	"fmt"

	"github.com/agnivade/levenshtein"

	"taxfolio/internal/core"
	"taxfolio/internal/log"
	"taxfolio/internal/storage"
)

const (
	// SuggestThreshold is the minimum merchant similarity for a fuzzy
	// suggestion to be offered.
	SuggestThreshold = 0.72

	// LearnStreak is how many consecutive identical manual
	// recategorizations of one merchant it takes to learn a rule.
	LearnStreak = 3

	// LearnedConfidence is assigned to learned rules; below 1.0 so
	// hand-written rules with default confidence outrank them on review.
	LearnedConfidence = 0.9

	maxRunSamples = 5
)

// Store is the slice of the repository the engine needs.
type Store interface {
	ListRules(ctx context.Context, enabledOnly bool) ([]core.Rule, error)
	ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error)
	ApplyRuleCategorization(ctx context.Context, id int64, category core.Category, business bool, confidence float64) error
	IncrementRuleHits(ctx context.Context, id int64, n int64) error
	ListMerchants(ctx context.Context) ([]core.Merchant, error)
	CreateRule(ctx context.Context, rule core.Rule) (core.Rule, error)
	FindRuleByPattern(ctx context.Context, pattern string, mode core.MatchMode) (core.Rule, error)
}

type Engine struct {
	store  Store
	logger *log.Logger
}

func NewEngine(store Store, logger *log.Logger) *Engine {
	return &Engine{store: store, logger: logger.WithComponent(log.ComponentRules)}
}

// Evaluate returns the first enabled rule matching the transaction
// description. Rules arrive from the store already in evaluation order
// (priority descending, oldest first).
func (e *Engine) Evaluate(ctx context.Context, txn core.Transaction) (core.Rule, bool, error) {
	rules, err := e.store.ListRules(ctx, true)
	if err != nil {
		return core.Rule{}, false, fmt.Errorf("load rules: %w", err)
	}
	for _, r := range rules {
		if r.Matches(txn.Description) {
			return r, true, nil
		}
	}
	return core.Rule{}, false, nil
}

// Suggestion is a fuzzy merchant match offered on the review page.
type Suggestion struct {
	Merchant   string
	Category   core.Category
	Business   bool
	Similarity float64
}

// Suggest looks for a known merchant whose name is close to the
// transaction's merchant. The caller shows the suggestion; it is never
// applied without confirmation.
func (e *Engine) Suggest(ctx context.Context, txn core.Transaction) (*Suggestion, error) {
	if txn.Merchant == "" {
		return nil, nil
	}
	merchants, err := e.store.ListMerchants(ctx)
	if err != nil {
		return nil, fmt.Errorf("load merchants: %w", err)
	}

	var best *Suggestion
	for _, m := range merchants {
		if m.Category == "" || m.Name == txn.Merchant {
			continue
		}
		sim := similarity(txn.Merchant, m.Name)
		if sim < SuggestThreshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &Suggestion{
				Merchant:   m.Name,
				Category:   m.Category,
				Business:   m.Business,
				Similarity: sim,
			}
		}
	}
	return best, nil
}

// similarity is a normalized levenshtein ratio in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// MaybeLearnRule creates a contains-rule for a merchant once the streak of
// identical manual categorizations reaches LearnStreak. Returns the new
// rule, or nil when nothing was learned.
func (e *Engine) MaybeLearnRule(ctx context.Context, merchant string, category core.Category, business bool, streak int64) (*core.Rule, error) {
	if streak < LearnStreak || merchant == "" || !category.IsBusiness() {
		return nil, nil
	}
	if _, err := e.store.FindRuleByPattern(ctx, merchant, core.MatchContains); err == nil {
		return nil, nil // already covered
	} else if err != core.ErrNotFound {
		return nil, fmt.Errorf("find existing rule: %w", err)
	}

	rule, err := e.store.CreateRule(ctx, core.Rule{
		Pattern:    merchant,
		Mode:       core.MatchContains,
		Category:   category,
		Business:   business,
		Confidence: LearnedConfidence,
		Learned:    true,
		Enabled:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("create learned rule: %w", err)
	}
	e.logger.InfoContext(ctx, "Learned categorization rule",
		log.FieldRuleID, rule.ID,
		log.FieldMerchant, merchant,
		log.FieldCategory, string(category))
	return &rule, nil
}
