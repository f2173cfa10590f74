package rules

import (
	"context"
	"fmt"

	"taxfolio/internal/core"
	"taxfolio/internal/log"
	"taxfolio/internal/storage"
)

// RunSample is one matched transaction shown in a dry-run preview.
type RunSample struct {
	TransactionID int64
	Date          string
	Description   string
	AmountPence   int64
	OldCategory   core.Category
	NewCategory   core.Category
}

// RunOutcome reports one rule's matches across a run.
type RunOutcome struct {
	RuleID   int64
	Pattern  string
	Mode     core.MatchMode
	Category core.Category
	Matched  int
	Samples  []RunSample
}

// RunSummary totals a whole rule run.
type RunSummary struct {
	Scoped  int // unreviewed transactions considered
	Matched int // transactions hit by some rule
	Applied int // categorizations written (zero on dry runs)
}

// DryRun evaluates all enabled rules against the year's unreviewed
// transactions without writing anything.
func (e *Engine) DryRun(ctx context.Context, year core.TaxYear) ([]RunOutcome, RunSummary, error) {
	return e.run(ctx, year, true)
}

// Apply evaluates and writes categorizations for the year's unreviewed
// transactions. Applied rows stay unreviewed so a human still confirms
// them; only the category, business flag and confidence change.
func (e *Engine) Apply(ctx context.Context, year core.TaxYear) ([]RunOutcome, RunSummary, error) {
	return e.run(ctx, year, false)
}

func (e *Engine) run(ctx context.Context, year core.TaxYear, dryRun bool) ([]RunOutcome, RunSummary, error) {
	var summary RunSummary

	rules, err := e.store.ListRules(ctx, true)
	if err != nil {
		return nil, summary, fmt.Errorf("load rules: %w", err)
	}
	txns, err := e.store.ListTransactions(ctx, storage.TransactionFilter{
		Year:   year,
		Status: core.StatusUnreviewed,
	})
	if err != nil {
		return nil, summary, fmt.Errorf("load transactions: %w", err)
	}
	summary.Scoped = len(txns)

	outcomes := make([]RunOutcome, len(rules))
	for i, r := range rules {
		outcomes[i] = RunOutcome{RuleID: r.ID, Pattern: r.Pattern, Mode: r.Mode, Category: r.Category}
	}

	applied := make(map[int64]int64) // rule id -> hit count this run
	for _, txn := range txns {
		for i, r := range rules {
			if !r.Matches(txn.Description) {
				continue
			}
			summary.Matched++
			outcomes[i].Matched++
			if len(outcomes[i].Samples) < maxRunSamples {
				outcomes[i].Samples = append(outcomes[i].Samples, RunSample{
					TransactionID: txn.ID,
					Date:          txn.Date.ISO(),
					Description:   txn.Description,
					AmountPence:   txn.Amount.Pence,
					OldCategory:   txn.Category,
					NewCategory:   r.Category,
				})
			}
			if !dryRun {
				if err := e.applyRule(ctx, txn, r); err != nil {
					return nil, summary, err
				}
				summary.Applied++
				applied[r.ID]++
			}
			break // first match wins
		}
	}

	for id, n := range applied {
		if err := e.store.IncrementRuleHits(ctx, id, n); err != nil {
			return nil, summary, err
		}
	}

	e.logger.InfoContext(ctx, "Rule run finished",
		log.FieldTaxYear, year.Label(),
		"dry_run", dryRun,
		"scoped", summary.Scoped,
		"matched", summary.Matched,
		"applied", summary.Applied)
	return outcomes, summary, nil
}

// ApplyTo writes one rule's categorization onto one transaction and bumps
// the rule's hit counter. The importer uses this to pre-categorize rows as
// they arrive.
func (e *Engine) ApplyTo(ctx context.Context, txn core.Transaction, r core.Rule) error {
	if err := e.applyRule(ctx, txn, r); err != nil {
		return err
	}
	return e.store.IncrementRuleHits(ctx, r.ID, 1)
}

// applyRule writes the categorization. The row stays unreviewed so a
// human still confirms rule hits on the review page.
func (e *Engine) applyRule(ctx context.Context, txn core.Transaction, r core.Rule) error {
	if err := e.store.ApplyRuleCategorization(ctx, txn.ID, r.Category, r.Business, r.Confidence); err != nil {
		return fmt.Errorf("apply rule %d to transaction %d: %w", r.ID, txn.ID, err)
	}
	return nil
}
