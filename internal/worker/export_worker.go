package worker

import (
	"context"
	"fmt"
	"path/filepath"

	"taxfolio/internal/amqp"
	"taxfolio/internal/export"
	"taxfolio/internal/log"
	"taxfolio/internal/storage"
)

// ExportWorker renders queued XLSX and PDF exports into the export
// directory. CSV and JSON exports are written inline by the HTTP
// handlers and never reach the queue.
type ExportWorker struct {
	repo      *storage.SQLiteRepository
	exportDir string
	logger    *log.Logger
	notify    func(*storage.ExportJob)
}

func NewExportWorker(repo *storage.SQLiteRepository, exportDir string, logger *log.Logger) *ExportWorker {
	return &ExportWorker{
		repo:      repo,
		exportDir: exportDir,
		logger:    logger.WithComponent(log.ComponentExport),
	}
}

// SetNotifier registers a callback invoked on every job status change,
// used to push updates to websocket clients.
func (w *ExportWorker) SetNotifier(fn func(*storage.ExportJob)) {
	w.notify = fn
}

// HandleExportJob processes a single export job message. Failures are
// recorded on the job row rather than requeued: a job that cannot
// render will not render on retry either.
func (w *ExportWorker) HandleExportJob(ctx context.Context, msg *amqp.ExportJobMessage) error {
	job, err := w.repo.GetExportJob(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("get export job %s: %w", msg.JobID, err)
	}
	if job.Status == storage.JobCompleted {
		w.logger.Info("export job already completed, skipping", log.FieldJobID, job.ID)
		return nil
	}

	w.logger.Info("processing export job",
		log.FieldJobID, job.ID,
		log.FieldFormat, job.Format,
		log.FieldTaxYear, job.TaxYear.Label())

	if err := w.repo.UpdateExportJob(ctx, job.ID, storage.JobRunning, "", ""); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	job.Status = storage.JobRunning
	w.notifyUpdate(&job)

	path, err := w.render(ctx, job)
	if err != nil {
		w.logger.Error("export job failed",
			log.FieldJobID, job.ID,
			log.FieldFormat, job.Format,
			"error", err)
		if uerr := w.repo.UpdateExportJob(ctx, job.ID, storage.JobFailed, "", err.Error()); uerr != nil {
			return fmt.Errorf("mark job failed: %w", uerr)
		}
		job.Status = storage.JobFailed
		job.Error = err.Error()
		w.notifyUpdate(&job)
		return nil
	}

	if err := w.repo.UpdateExportJob(ctx, job.ID, storage.JobCompleted, path, ""); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	job.Status = storage.JobCompleted
	job.FilePath = path
	w.notifyUpdate(&job)

	w.logger.Info("export job completed", log.FieldJobID, job.ID, "file", path)
	return nil
}

// Render produces the export file for a job and returns its path.
// Exposed for the inline fallback when no broker is configured.
func (w *ExportWorker) Render(ctx context.Context, job storage.ExportJob) (string, error) {
	return w.render(ctx, job)
}

func (w *ExportWorker) render(ctx context.Context, job storage.ExportJob) (string, error) {
	data, err := export.Collect(ctx, w.repo, job.TaxYear)
	if err != nil {
		return "", fmt.Errorf("collect export data: %w", err)
	}

	name := fmt.Sprintf("taxfolio-%s-%s.%s", job.TaxYear.Label(), job.ID, job.Format)
	path := filepath.Join(w.exportDir, name)

	switch job.Format {
	case export.FormatXLSX:
		err = export.WriteXLSX(path, data)
	case export.FormatPDF:
		err = export.WritePDF(path, data)
	default:
		return "", fmt.Errorf("unsupported async export format %q", job.Format)
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", job.Format, err)
	}
	return path, nil
}

func (w *ExportWorker) notifyUpdate(job *storage.ExportJob) {
	if w.notify != nil {
		w.notify(job)
	}
}
