package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"taxfolio/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero values mean "no filter".
type TransactionFilter struct {
	Year     core.TaxYear
	Status   core.ReviewStatus
	Category core.Category
	Business *bool
	Merchant string
	Search   string
	Limit    int
	Offset   int
}

// ImportResult reports what happened to a batch of parsed statement rows.
type ImportResult struct {
	Inserted   int
	Duplicates int
	IDs        []int64
}

// InsertTransactions stores parsed statement rows in one transaction.
// Rows whose source hash already exists are counted as duplicates and
// skipped; the whole batch is audited as a single import action.
func (r *SQLiteRepository) InsertTransactions(ctx context.Context, txns []core.Transaction) (ImportResult, error) {
	var res ImportResult
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range txns {
			result, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO transactions
			(date, description, amount_pence, merchant, category, business, confidence, status, notes, source_file, source_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.Date.ISO(), t.Description, t.Amount.Pence, t.Merchant,
				string(t.Category), t.Business, t.Confidence, string(statusOrDefault(t.Status)),
				t.Notes, t.SourceFile, t.SourceHash)
			if err != nil {
				return fmt.Errorf("insert transaction: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n == 0 {
				res.Duplicates++
				continue
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			res.Inserted++
			res.IDs = append(res.IDs, id)

			if t.Merchant != "" {
				if _, err := tx.ExecContext(ctx, `
				INSERT INTO merchants (name, display, txn_count) VALUES (?, ?, 1)
				ON CONFLICT(name) DO UPDATE SET txn_count = txn_count + 1, updated_at = CURRENT_TIMESTAMP`,
					t.Merchant, t.Description); err != nil {
					return fmt.Errorf("upsert merchant: %w", err)
				}
			}
		}
		return appendAudit(tx, ctx, "import", 0, "import", nil,
			map[string]int{"inserted": res.Inserted, "duplicates": res.Duplicates})
	})
	if err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

func statusOrDefault(s core.ReviewStatus) core.ReviewStatus {
	if s == "" {
		return core.StatusUnreviewed
	}
	return s
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, selectTransaction+` WHERE id = ? AND deleted_at IS NULL`, id)
	return scanTransaction(row)
}

const selectTransaction = `
SELECT id, date, description, amount_pence, merchant, category, business, confidence, status, receipt_path, notes, source_file, source_hash
FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var t core.Transaction
	var date, category, status string
	err := row.Scan(&t.ID, &date, &t.Description, &t.Amount.Pence, &t.Merchant,
		&category, &t.Business, &t.Confidence, &status, &t.ReceiptPath, &t.Notes,
		&t.SourceFile, &t.SourceHash)
	if err == sql.ErrNoRows {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Date, err = core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	t.Category = core.Category(category)
	t.Status = core.ReviewStatus(status)
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	var conds []string
	var args []any
	conds = append(conds, "deleted_at IS NULL")
	if f.Year != 0 {
		conds = append(conds, "date >= ? AND date <= ?")
		args = append(args, f.Year.Start().ISO(), f.Year.End().ISO())
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Business != nil {
		conds = append(conds, "business = ?")
		args = append(args, *f.Business)
	}
	if f.Merchant != "" {
		conds = append(conds, "merchant = ?")
		args = append(args, f.Merchant)
	}
	if f.Search != "" {
		conds = append(conds, "description LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	query := selectTransaction + ` WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY date DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// CategorizeTransaction sets category, business flag and confidence on a
// transaction, marks it reviewed, and audits the change. It returns the
// merchant's updated count of identical recategorizations, which the rules
// engine uses to decide whether to learn a rule.
func (r *SQLiteRepository) CategorizeTransaction(ctx context.Context, id int64, category core.Category, business bool, confidence float64) (int64, error) {
	var hits int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		before, err := scanTransaction(tx.QueryRowContext(ctx, selectTransaction+` WHERE id = ? AND deleted_at IS NULL`, id))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET category = ?, business = ?, confidence = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
			string(category), business, confidence, string(core.StatusReviewed), id)
		if err != nil {
			return fmt.Errorf("categorize transaction: %w", err)
		}

		after := before
		after.Category = category
		after.Business = business
		after.Confidence = confidence
		after.Status = core.StatusReviewed
		if err := appendAudit(tx, ctx, "transaction", id, "categorize", before, after); err != nil {
			return err
		}

		if before.Merchant == "" {
			return nil
		}
		// Count consecutive same-category assignments per merchant. A
		// different category resets the streak.
		_, err = tx.ExecContext(ctx, `
		INSERT INTO merchants (name, display, category, business, category_hits, txn_count)
		VALUES (?, ?, ?, ?, 1, 1)
		ON CONFLICT(name) DO UPDATE SET
			category_hits = CASE WHEN category = excluded.category THEN category_hits + 1 ELSE 1 END,
			category = excluded.category,
			business = excluded.business,
			updated_at = CURRENT_TIMESTAMP`,
			before.Merchant, before.Description, string(category), business)
		if err != nil {
			return fmt.Errorf("update merchant: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT category_hits FROM merchants WHERE name = ?`, before.Merchant).Scan(&hits); err != nil {
			return fmt.Errorf("read merchant hits: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return hits, nil
}

// ApplyRuleCategorization writes a rule's category onto a transaction
// without marking it reviewed and without feeding the merchant-learning
// streak; only manual decisions do those.
func (r *SQLiteRepository) ApplyRuleCategorization(ctx context.Context, id int64, category core.Category, business bool, confidence float64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		before, err := scanTransaction(tx.QueryRowContext(ctx, selectTransaction+` WHERE id = ? AND deleted_at IS NULL`, id))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET category = ?, business = ?, confidence = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
			string(category), business, confidence, id)
		if err != nil {
			return fmt.Errorf("apply rule categorization: %w", err)
		}
		after := before
		after.Category = category
		after.Business = business
		after.Confidence = confidence
		return appendAudit(tx, ctx, "transaction", id, "rule_apply", before, after)
	})
}

// UpdateTransactionNotes sets the free-text notes and receipt path.
func (r *SQLiteRepository) UpdateTransactionNotes(ctx context.Context, id int64, notes, receiptPath string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		before, err := scanTransaction(tx.QueryRowContext(ctx, selectTransaction+` WHERE id = ? AND deleted_at IS NULL`, id))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
		UPDATE transactions SET notes = ?, receipt_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			notes, receiptPath, id)
		if err != nil {
			return fmt.Errorf("update transaction notes: %w", err)
		}
		after := before
		after.Notes = notes
		after.ReceiptPath = receiptPath
		return appendAudit(tx, ctx, "transaction", id, "update", before, after)
	})
}

// DeleteTransaction soft-deletes a row; the audit trail keeps the snapshot.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		before, err := scanTransaction(tx.QueryRowContext(ctx, selectTransaction+` WHERE id = ? AND deleted_at IS NULL`, id))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
		UPDATE transactions SET deleted_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return appendAudit(tx, ctx, "transaction", id, "delete", before, nil)
	})
}

// CountByStatus returns unreviewed and reviewed counts for a tax year.
func (r *SQLiteRepository) CountByStatus(ctx context.Context, year core.TaxYear) (unreviewed, reviewed int, err error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT status, COUNT(*) FROM transactions
	WHERE deleted_at IS NULL AND date >= ? AND date <= ?
	GROUP BY status`,
		year.Start().ISO(), year.End().ISO())
	if err != nil {
		return 0, 0, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, fmt.Errorf("scan count: %w", err)
		}
		switch core.ReviewStatus(status) {
		case core.StatusReviewed:
			reviewed = n
		default:
			unreviewed += n
		}
	}
	return unreviewed, reviewed, rows.Err()
}

// ListMerchants returns known merchants ordered by how often they appear.
func (r *SQLiteRepository) ListMerchants(ctx context.Context) ([]core.Merchant, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, name, display, category, business, txn_count, category_hits
	FROM merchants ORDER BY txn_count DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	defer rows.Close()

	var merchants []core.Merchant
	for rows.Next() {
		var m core.Merchant
		var category string
		if err := rows.Scan(&m.ID, &m.Name, &m.Display, &category, &m.Business, &m.TxnCount, &m.CategoryHits); err != nil {
			return nil, fmt.Errorf("scan merchant: %w", err)
		}
		m.Category = core.Category(category)
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
