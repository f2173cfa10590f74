package storage

import (
	"context"
	"database/sql"
	"fmt"

	"taxfolio/internal/core"
)

// Income

func (r *SQLiteRepository) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
		INSERT INTO incomes (date, amount_pence, source, reference, notes)
		VALUES (?, ?, ?, ?, ?)`,
			in.Date.ISO(), in.Amount.Pence, in.Source, in.Reference, in.Notes)
		if err != nil {
			return fmt.Errorf("create income: %w", err)
		}
		in.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return appendAudit(tx, ctx, "income", in.ID, "create", nil, in)
	})
	if err != nil {
		return core.Income{}, err
	}
	return in, nil
}

func (r *SQLiteRepository) GetIncome(ctx context.Context, id int64) (core.Income, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, date, amount_pence, source, reference, notes
	FROM incomes WHERE id = ? AND deleted_at IS NULL`, id)
	return scanIncome(row)
}

func scanIncome(row rowScanner) (core.Income, error) {
	var in core.Income
	var date string
	err := row.Scan(&in.ID, &date, &in.Amount.Pence, &in.Source, &in.Reference, &in.Notes)
	if err == sql.ErrNoRows {
		return core.Income{}, core.ErrNotFound
	}
	if err != nil {
		return core.Income{}, fmt.Errorf("scan income: %w", err)
	}
	in.Date, err = core.ParseDate(date)
	if err != nil {
		return core.Income{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	return in, nil
}

func (r *SQLiteRepository) ListIncomes(ctx context.Context, year core.TaxYear) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, date, amount_pence, source, reference, notes
	FROM incomes
	WHERE deleted_at IS NULL AND date >= ? AND date <= ?
	ORDER BY date DESC, id DESC`,
		year.Start().ISO(), year.End().ISO())
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var incomes []core.Income
	for rows.Next() {
		in, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		incomes = append(incomes, in)
	}
	return incomes, rows.Err()
}

func (r *SQLiteRepository) UpdateIncome(ctx context.Context, in core.Income) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		before, err := scanIncome(tx.QueryRowContext(ctx, `
		SELECT id, date, amount_pence, source, reference, notes
		FROM incomes WHERE id = ? AND deleted_at IS NULL`, in.ID))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
		UPDATE incomes SET date = ?, amount_pence = ?, source = ?, reference = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
			in.Date.ISO(), in.Amount.Pence, in.Source, in.Reference, in.Notes, in.ID)
		if err != nil {
			return fmt.Errorf("update income: %w", err)
		}
		return appendAudit(tx, ctx, "income", in.ID, "update", before, in)
	})
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, id int64) error {
	return r.softDelete(ctx, "incomes", "income", id)
}

// Expenses

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
		INSERT INTO expenses (date, amount_pence, description, category, receipt_path)
		VALUES (?, ?, ?, ?, ?)`,
			e.Date.ISO(), e.Amount.Pence, e.Description, string(e.Category), e.ReceiptPath)
		if err != nil {
			return fmt.Errorf("create expense: %w", err)
		}
		e.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return appendAudit(tx, ctx, "expense", e.ID, "create", nil, e)
	})
	if err != nil {
		return core.ExpenseEntry{}, err
	}
	return e, nil
}

func scanExpense(row rowScanner) (core.ExpenseEntry, error) {
	var e core.ExpenseEntry
	var date, category string
	err := row.Scan(&e.ID, &date, &e.Amount.Pence, &e.Description, &category, &e.ReceiptPath)
	if err == sql.ErrNoRows {
		return core.ExpenseEntry{}, core.ErrNotFound
	}
	if err != nil {
		return core.ExpenseEntry{}, fmt.Errorf("scan expense: %w", err)
	}
	e.Date, err = core.ParseDate(date)
	if err != nil {
		return core.ExpenseEntry{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	e.Category = core.Category(category)
	return e, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.ExpenseEntry, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, date, amount_pence, description, category, receipt_path
	FROM expenses WHERE id = ? AND deleted_at IS NULL`, id)
	return scanExpense(row)
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, year core.TaxYear) ([]core.ExpenseEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, date, amount_pence, description, category, receipt_path
	FROM expenses
	WHERE deleted_at IS NULL AND date >= ? AND date <= ?
	ORDER BY date DESC, id DESC`,
		year.Start().ISO(), year.End().ISO())
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.ExpenseEntry
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.ExpenseEntry) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		before, err := scanExpense(tx.QueryRowContext(ctx, `
		SELECT id, date, amount_pence, description, category, receipt_path
		FROM expenses WHERE id = ? AND deleted_at IS NULL`, e.ID))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
		UPDATE expenses SET date = ?, amount_pence = ?, description = ?, category = ?, receipt_path = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
			e.Date.ISO(), e.Amount.Pence, e.Description, string(e.Category), e.ReceiptPath, e.ID)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		return appendAudit(tx, ctx, "expense", e.ID, "update", before, e)
	})
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	return r.softDelete(ctx, "expenses", "expense", id)
}

// Mileage

func (r *SQLiteRepository) CreateMileageTrip(ctx context.Context, mt core.MileageTrip) (core.MileageTrip, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
		INSERT INTO mileage_trips (date, miles, from_location, to_location, purpose, vehicle)
		VALUES (?, ?, ?, ?, ?, ?)`,
			mt.Date.ISO(), mt.Miles, mt.From, mt.To, mt.Purpose, string(mt.Vehicle))
		if err != nil {
			return fmt.Errorf("create mileage trip: %w", err)
		}
		mt.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return appendAudit(tx, ctx, "mileage", mt.ID, "create", nil, mt)
	})
	if err != nil {
		return core.MileageTrip{}, err
	}
	return mt, nil
}

func scanMileageTrip(row rowScanner) (core.MileageTrip, error) {
	var mt core.MileageTrip
	var date, vehicle string
	err := row.Scan(&mt.ID, &date, &mt.Miles, &mt.From, &mt.To, &mt.Purpose, &vehicle)
	if err == sql.ErrNoRows {
		return core.MileageTrip{}, core.ErrNotFound
	}
	if err != nil {
		return core.MileageTrip{}, fmt.Errorf("scan mileage trip: %w", err)
	}
	mt.Date, err = core.ParseDate(date)
	if err != nil {
		return core.MileageTrip{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	mt.Vehicle = core.VehicleType(vehicle)
	return mt, nil
}

func (r *SQLiteRepository) ListMileageTrips(ctx context.Context, year core.TaxYear) ([]core.MileageTrip, error) {
	// Ascending date order: the 10,000-mile threshold is applied trip by trip.
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, date, miles, from_location, to_location, purpose, vehicle
	FROM mileage_trips
	WHERE deleted_at IS NULL AND date >= ? AND date <= ?
	ORDER BY date ASC, id ASC`,
		year.Start().ISO(), year.End().ISO())
	if err != nil {
		return nil, fmt.Errorf("list mileage trips: %w", err)
	}
	defer rows.Close()

	var trips []core.MileageTrip
	for rows.Next() {
		mt, err := scanMileageTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, mt)
	}
	return trips, rows.Err()
}

func (r *SQLiteRepository) DeleteMileageTrip(ctx context.Context, id int64) error {
	return r.softDelete(ctx, "mileage_trips", "mileage", id)
}

// Donations

func (r *SQLiteRepository) CreateDonation(ctx context.Context, d core.Donation) (core.Donation, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
		INSERT INTO donations (date, amount_pence, charity, gift_aid)
		VALUES (?, ?, ?, ?)`,
			d.Date.ISO(), d.Amount.Pence, d.Charity, d.GiftAid)
		if err != nil {
			return fmt.Errorf("create donation: %w", err)
		}
		d.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return appendAudit(tx, ctx, "donation", d.ID, "create", nil, d)
	})
	if err != nil {
		return core.Donation{}, err
	}
	return d, nil
}

func scanDonation(row rowScanner) (core.Donation, error) {
	var d core.Donation
	var date string
	err := row.Scan(&d.ID, &date, &d.Amount.Pence, &d.Charity, &d.GiftAid)
	if err == sql.ErrNoRows {
		return core.Donation{}, core.ErrNotFound
	}
	if err != nil {
		return core.Donation{}, fmt.Errorf("scan donation: %w", err)
	}
	d.Date, err = core.ParseDate(date)
	if err != nil {
		return core.Donation{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	return d, nil
}

func (r *SQLiteRepository) ListDonations(ctx context.Context, year core.TaxYear) ([]core.Donation, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, date, amount_pence, charity, gift_aid
	FROM donations
	WHERE deleted_at IS NULL AND date >= ? AND date <= ?
	ORDER BY date DESC, id DESC`,
		year.Start().ISO(), year.End().ISO())
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var donations []core.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		donations = append(donations, d)
	}
	return donations, rows.Err()
}

func (r *SQLiteRepository) DeleteDonation(ctx context.Context, id int64) error {
	return r.softDelete(ctx, "donations", "donation", id)
}

// softDelete marks a row deleted and audits the action. The table name is
// always one of our own constants, never user input.
func (r *SQLiteRepository) softDelete(ctx context.Context, table, entityType string, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE `+table+` SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
		if err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return core.ErrNotFound
		}
		return appendAudit(tx, ctx, entityType, id, "delete", nil, nil)
	})
}
