package memory

import (
	"context"
	"fmt"
	"sync"

	"taxfolio/internal/core"
)

// Store is an in-memory spreadsheet stand-in used by tests and local
// development when no Google credentials are configured.
type Store struct {
	mu           sync.Mutex
	transactions []core.Transaction
	incomes      []core.Income
	expenses     []core.ExpenseEntry
}

func New() *Store {
	return &Store{}
}

// AppendTransaction stores the transaction and returns a synthetic row reference.
func (s *Store) AppendTransaction(_ context.Context, txn core.Transaction) (string, error) {
	if err := txn.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, txn)
	return fmt.Sprintf("mem:txn:%d", len(s.transactions)), nil
}

func (s *Store) AppendIncome(_ context.Context, inc core.Income) (string, error) {
	if err := inc.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomes = append(s.incomes, inc)
	return fmt.Sprintf("mem:income:%d", len(s.incomes)), nil
}

func (s *Store) AppendExpense(_ context.Context, exp core.ExpenseEntry) (string, error) {
	if err := exp.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append(s.expenses, exp)
	return fmt.Sprintf("mem:expense:%d", len(s.expenses)), nil
}

// Transactions returns a copy of everything appended so far.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.transactions...)
}

// Incomes returns a copy of everything appended so far.
func (s *Store) Incomes() []core.Income {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Income(nil), s.incomes...)
}

// Expenses returns a copy of everything appended so far.
func (s *Store) Expenses() []core.ExpenseEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ExpenseEntry(nil), s.expenses...)
}
