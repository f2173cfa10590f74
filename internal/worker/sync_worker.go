package worker

import (
	"context"
	"errors"
	"fmt"

	"taxfolio/internal/amqp"
	"taxfolio/internal/core"
	"taxfolio/internal/log"
	"taxfolio/internal/sheets"
	"taxfolio/internal/storage"
)

// Items that keep failing stop being retried; at this many attempts the
// row is parked with status 'failed' so it no longer occupies the
// pending window, keeping its last error for manual inspection.
const maxSyncAttempts = 5

// SyncWorker mirrors locally written records to the configured
// spreadsheet. SQLite is always the source of truth; the mirror is
// eventually consistent.
type SyncWorker struct {
	repo        *storage.SQLiteRepository
	txnWriter   sheets.TransactionWriter
	entryWriter sheets.EntryWriter
	batchSize   int
	logger      *log.Logger
}

func NewSyncWorker(repo *storage.SQLiteRepository, txnWriter sheets.TransactionWriter, entryWriter sheets.EntryWriter, batchSize int, logger *log.Logger) *SyncWorker {
	return &SyncWorker{
		repo:        repo,
		txnWriter:   txnWriter,
		entryWriter: entryWriter,
		batchSize:   batchSize,
		logger:      logger.WithComponent(log.ComponentSheets),
	}
}

// HandleSyncMessage processes a single queue item referenced by an
// AMQP message. Transient failures return an error so the message is
// requeued, up to maxSyncAttempts.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.SheetsSyncMessage) error {
	item, err := w.repo.GetSyncItem(ctx, msg.QueueID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.Warn("sync item vanished, dropping message", "queue_id", msg.QueueID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get sync item %d: %w", msg.QueueID, err)
	}

	if item.Attempts >= maxSyncAttempts {
		w.logger.Warn("sync item exceeded retry budget, parking",
			"queue_id", item.ID,
			"entity_type", item.EntityType,
			"attempts", item.Attempts,
			"last_error", item.LastError)
		if item.Status == storage.SyncPending {
			if merr := w.repo.MarkSyncFailed(ctx, item.ID, "retry budget exhausted", maxSyncAttempts); merr != nil {
				w.logger.Error("park sync item", "queue_id", item.ID, "error", merr)
			}
		}
		return nil
	}

	if err := w.syncItem(ctx, item); err != nil {
		if merr := w.repo.MarkSyncFailed(ctx, item.ID, err.Error(), maxSyncAttempts); merr != nil {
			w.logger.Error("mark sync failed", "queue_id", item.ID, "error", merr)
		}
		return fmt.Errorf("sync %s %d: %w", item.EntityType, item.EntityID, err)
	}

	if err := w.repo.MarkSynced(ctx, []int64{item.ID}); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// ProcessPending drains up to limit queued items. This is the backup
// path for messages lost while the worker was down; the main loop runs
// it on an interval and at startup.
func (w *SyncWorker) ProcessPending(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = w.batchSize
	}
	items, err := w.repo.PendingSync(ctx, limit)
	if err != nil {
		return fmt.Errorf("pending sync: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	w.logger.Info("processing pending sync items", "count", len(items))

	var synced []int64
	for _, item := range items {
		if item.Attempts >= maxSyncAttempts {
			if merr := w.repo.MarkSyncFailed(ctx, item.ID, "retry budget exhausted", maxSyncAttempts); merr != nil {
				w.logger.Error("park sync item", "queue_id", item.ID, "error", merr)
			}
			continue
		}
		if err := w.syncItem(ctx, item); err != nil {
			w.logger.Error("sync item failed",
				"queue_id", item.ID,
				"entity_type", item.EntityType,
				"error", err)
			if merr := w.repo.MarkSyncFailed(ctx, item.ID, err.Error(), maxSyncAttempts); merr != nil {
				w.logger.Error("mark sync failed", "queue_id", item.ID, "error", merr)
			}
			continue
		}
		synced = append(synced, item.ID)
	}

	if len(synced) > 0 {
		if err := w.repo.MarkSynced(ctx, synced); err != nil {
			return fmt.Errorf("mark synced: %w", err)
		}
	}
	return nil
}

// StartupSyncCheck recovers items queued while the worker was offline.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	return w.ProcessPending(ctx, w.batchSize*5)
}

func (w *SyncWorker) syncItem(ctx context.Context, item storage.SyncItem) error {
	switch item.EntityType {
	case "transaction":
		txn, err := w.repo.GetTransaction(ctx, item.EntityID)
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}
		ref, err := w.txnWriter.AppendTransaction(ctx, txn)
		if err != nil {
			return err
		}
		w.logger.Info("mirrored transaction",
			log.FieldTxnID, txn.ID,
			log.FieldSheetsRef, ref)
		return nil
	case "income":
		inc, err := w.repo.GetIncome(ctx, item.EntityID)
		if err != nil {
			return fmt.Errorf("load income: %w", err)
		}
		ref, err := w.entryWriter.AppendIncome(ctx, inc)
		if err != nil {
			return err
		}
		w.logger.Info("mirrored income", "income_id", inc.ID, log.FieldSheetsRef, ref)
		return nil
	case "expense":
		exp, err := w.repo.GetExpense(ctx, item.EntityID)
		if err != nil {
			return fmt.Errorf("load expense: %w", err)
		}
		ref, err := w.entryWriter.AppendExpense(ctx, exp)
		if err != nil {
			return err
		}
		w.logger.Info("mirrored expense", "expense_id", exp.ID, log.FieldSheetsRef, ref)
		return nil
	default:
		return fmt.Errorf("unknown entity type %q", item.EntityType)
	}
}
