package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"taxfolio/internal/core"
)

// Export job states.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// ExportJob tracks an asynchronous export through the AMQP worker.
type ExportJob struct {
	ID        string
	Format    string
	TaxYear   core.TaxYear
	Status    string
	FilePath  string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *SQLiteRepository) CreateExportJob(ctx context.Context, job ExportJob) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO export_jobs (id, format, tax_year, status)
	VALUES (?, ?, ?, ?)`,
		job.ID, job.Format, int(job.TaxYear), JobQueued)
	if err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetExportJob(ctx context.Context, id string) (ExportJob, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, format, tax_year, status, file_path, error, created_at, updated_at
	FROM export_jobs WHERE id = ?`, id)
	return scanExportJob(row)
}

func scanExportJob(row rowScanner) (ExportJob, error) {
	var job ExportJob
	var year int
	var createdAt, updatedAt string
	err := row.Scan(&job.ID, &job.Format, &year, &job.Status, &job.FilePath, &job.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return ExportJob{}, core.ErrNotFound
	}
	if err != nil {
		return ExportJob{}, fmt.Errorf("scan export job: %w", err)
	}
	job.TaxYear = core.TaxYear(year)
	job.CreatedAt = parseTimestamp(createdAt)
	job.UpdatedAt = parseTimestamp(updatedAt)
	return job, nil
}

func (r *SQLiteRepository) ListExportJobs(ctx context.Context, limit int) ([]ExportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, format, tax_year, status, file_path, error, created_at, updated_at
	FROM export_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ExportJob
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateExportJob transitions a job and records its output path or error.
func (r *SQLiteRepository) UpdateExportJob(ctx context.Context, id, status, filePath, jobErr string) error {
	result, err := r.db.ExecContext(ctx, `
	UPDATE export_jobs SET status = ?, file_path = ?, error = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, status, filePath, jobErr, id)
	if err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Sheets sync queue row statuses.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncFailed  = "failed"
)

// SyncItem is one pending row of the sheets mirror queue.
type SyncItem struct {
	ID         int64
	EntityType string
	EntityID   int64
	Attempts   int
	LastError  string
	Status     string
}

// EnqueueSync marks entities for mirroring to the configured spreadsheet
// and returns the queue row IDs, which the caller publishes over AMQP.
func (r *SQLiteRepository) EnqueueSync(ctx context.Context, entityType string, ids []int64) ([]int64, error) {
	var queueIDs []int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			result, err := tx.ExecContext(ctx, `
			INSERT INTO sheets_sync_queue (entity_type, entity_id) VALUES (?, ?)`,
				entityType, id)
			if err != nil {
				return fmt.Errorf("enqueue sync: %w", err)
			}
			queueID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("enqueue sync id: %w", err)
			}
			queueIDs = append(queueIDs, queueID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return queueIDs, nil
}

// GetSyncItem loads one queue row regardless of status.
func (r *SQLiteRepository) GetSyncItem(ctx context.Context, id int64) (SyncItem, error) {
	var it SyncItem
	err := r.db.QueryRowContext(ctx, `
	SELECT id, entity_type, entity_id, attempts, last_error, status
	FROM sheets_sync_queue WHERE id = ?`, id).
		Scan(&it.ID, &it.EntityType, &it.EntityID, &it.Attempts, &it.LastError, &it.Status)
	if err == sql.ErrNoRows {
		return SyncItem{}, core.ErrNotFound
	}
	if err != nil {
		return SyncItem{}, fmt.Errorf("get sync item: %w", err)
	}
	return it, nil
}

// PendingSync returns up to limit unsynced items, oldest first.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]SyncItem, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, entity_type, entity_id, attempts, last_error, status
	FROM sheets_sync_queue WHERE status = 'pending'
	ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending sync: %w", err)
	}
	defer rows.Close()

	var items []SyncItem
	for rows.Next() {
		var it SyncItem
		if err := rows.Scan(&it.ID, &it.EntityType, &it.EntityID, &it.Attempts, &it.LastError, &it.Status); err != nil {
			return nil, fmt.Errorf("scan sync item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, ids []int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
			UPDATE sheets_sync_queue SET status = 'synced', updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
				return fmt.Errorf("mark synced: %w", err)
			}
		}
		return nil
	})
}

// MarkSyncFailed records a failed mirror attempt. Once the row reaches
// maxAttempts it is parked with status 'failed' so it no longer occupies
// the PendingSync window; parked rows keep their last error for manual
// inspection.
func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id int64, syncErr string, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE sheets_sync_queue
	SET attempts = attempts + 1,
	    last_error = ?,
	    status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE status END,
	    updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, syncErr, maxAttempts, id)
	if err != nil {
		return fmt.Errorf("mark sync failed: %w", err)
	}
	return nil
}
