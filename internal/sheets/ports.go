package sheets

import (
	"context"

	"taxfolio/internal/core"
)

// Ports for outbound spreadsheet adapters.
type (
	// TransactionWriter mirrors a categorized transaction to an
	// external spreadsheet and returns a row reference.
	TransactionWriter interface {
		AppendTransaction(ctx context.Context, txn core.Transaction) (rowRef string, err error)
	}

	// EntryWriter mirrors manually recorded entries.
	EntryWriter interface {
		AppendIncome(ctx context.Context, inc core.Income) (rowRef string, err error)
		AppendExpense(ctx context.Context, exp core.ExpenseEntry) (rowRef string, err error)
	}
)
