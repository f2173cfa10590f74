package worker

import (
	"context"
	"time"

	"taxfolio/internal/log"
	"taxfolio/internal/storage"
)

const watchWindow = 100

// JobWatcher pushes export job status changes to the web tier's
// websocket clients when the jobs are processed by a separate worker
// process. The worker cannot reach browser connections, so the web
// process polls the job table and broadcasts the transitions itself.
type JobWatcher struct {
	repo     *storage.SQLiteRepository
	notify   func(*storage.ExportJob)
	interval time.Duration
	logger   *log.Logger
	seen     map[string]string
}

func NewJobWatcher(repo *storage.SQLiteRepository, notify func(*storage.ExportJob), interval time.Duration, logger *log.Logger) *JobWatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &JobWatcher{
		repo:     repo,
		notify:   notify,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
		seen:     make(map[string]string),
	}
}

// Start polls until the context is cancelled. Jobs already settled
// before the first sweep are recorded silently so a restart does not
// replay old completions at connected clients.
func (w *JobWatcher) Start(ctx context.Context) {
	if err := w.Sweep(ctx, false); err != nil {
		w.logger.Warn("initial job sweep failed", "error", err)
	}
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.Sweep(ctx, true); err != nil {
					w.logger.Warn("job sweep failed", "error", err)
				}
			}
		}
	}()
}

// Sweep diffs current job statuses against the last observed ones and,
// when broadcasting, notifies every job that moved.
func (w *JobWatcher) Sweep(ctx context.Context, broadcast bool) error {
	jobs, err := w.repo.ListExportJobs(ctx, watchWindow)
	if err != nil {
		return err
	}
	for i := range jobs {
		job := jobs[i]
		prev, known := w.seen[job.ID]
		if known && prev == job.Status {
			continue
		}
		w.seen[job.ID] = job.Status
		if !broadcast {
			continue
		}
		w.logger.Debug("export job transition observed",
			log.FieldJobID, job.ID,
			"from", prev,
			"to", job.Status)
		w.notify(&job)
	}
	return nil
}
