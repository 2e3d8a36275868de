// Package worker mirrors transactions to the export spreadsheet and delivers
// queued reports. It consumes the events the API publishes over AMQP and
// sweeps the database for rows whose export was missed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"poupa/internal/amqp"
	"poupa/internal/cache"
	"poupa/internal/core"
	applog "poupa/internal/log"
	"poupa/internal/ports"
	"poupa/internal/services"
	"poupa/internal/storage"
)

const (
	sweepLockKey = "export-sweep"
	sweepLockTTL = 2 * time.Minute

	// MaxExportAttempts is how many sweeps may fail on one row version
	// before it is marked with an export error.
	MaxExportAttempts = 5

	reportFailureReply = "Não foi possível gerar o relatório agora. Tente novamente mais tarde."
)

// ExportStore is the bookkeeping side of the transaction store.
type ExportStore interface {
	GetPendingExports(ctx context.Context, limit int) ([]storage.PendingExport, error)
	GetExportRecord(ctx context.Context, id string) (storage.ExportRecord, error)
	MarkExported(ctx context.Context, id string, version int64) error
	RecordExportFailure(ctx context.Context, id string, version int64) (int, error)
	MarkExportError(ctx context.Context, id string) error
}

// ReportGenerator builds the report text for a user and range.
type ReportGenerator interface {
	Generate(ctx context.Context, userID string, rng core.DateRange) (services.Report, error)
}

type Options struct {
	Store    ExportStore
	Exporter ports.Exporter
	Reports  ReportGenerator
	// Notifiers maps a chat channel to the client that delivers on it.
	Notifiers map[string]ports.Notifier
	Locker    cache.Locker
	Location  *time.Location
	BatchSize int
	Logger    *applog.Logger
}

type Worker struct {
	store     ExportStore
	exporter  ports.Exporter
	reports   ReportGenerator
	notifiers map[string]ports.Notifier
	locker    cache.Locker
	loc       *time.Location
	batchSize int
	log       *applog.StructuredLogger
	now       func() time.Time
}

func New(opts Options) *Worker {
	w := &Worker{
		store:     opts.Store,
		exporter:  opts.Exporter,
		reports:   opts.Reports,
		notifiers: opts.Notifiers,
		locker:    opts.Locker,
		loc:       opts.Location,
		batchSize: opts.BatchSize,
		now:       time.Now,
	}
	if w.locker == nil {
		w.locker = cache.NewLocalLocker()
	}
	if w.loc == nil {
		w.loc = time.UTC
	}
	if w.batchSize <= 0 {
		w.batchSize = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	w.log = applog.NewStructuredLogger(logger.WithComponent(applog.ComponentWorker))
	return w
}

// HandleTransactionEvent mirrors the current state of one transaction. The
// row is reloaded so stale or duplicated events converge on the latest
// version. A returned error requeues the message.
func (w *Worker) HandleTransactionEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	slog.InfoContext(ctx, "Processing transaction event",
		applog.FieldTransactionID, msg.ID,
		"action", msg.Action)

	if w.exporter == nil {
		slog.DebugContext(ctx, "No exporter configured, skipping", applog.FieldTransactionID, msg.ID)
		return nil
	}

	rec, err := w.store.GetExportRecord(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Transaction event for unknown row", applog.FieldTransactionID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get export record: %w", err)
	}
	if rec.ExportStatus == storage.ExportExported {
		return nil
	}

	if err := w.export(ctx, rec); err != nil {
		w.logExportFailure(ctx, rec, err)
		return err
	}
	return nil
}

func (w *Worker) logExportFailure(ctx context.Context, rec storage.ExportRecord, err error) {
	tx := rec.Transaction
	op := applog.OpExport
	if rec.Deleted {
		op = applog.OpRemove
	}
	w.log.LogError(ctx, "Transaction export failed", err, applog.ComponentSheets, op,
		applog.NewFields().
			WithUser(tx.UserID).
			WithTransaction(tx.ID, string(tx.Type), string(tx.Category), core.LogCents(tx.Amount)))
}

func (w *Worker) export(ctx context.Context, rec storage.ExportRecord) error {
	id := rec.Transaction.ID

	var err error
	if rec.Deleted {
		err = w.exporter.Remove(ctx, id)
	} else {
		err = w.exporter.Export(ctx, rec.Transaction)
	}
	if err != nil {
		return fmt.Errorf("export transaction %s: %w", id, err)
	}

	if err := w.store.MarkExported(ctx, id, rec.Version); err != nil {
		// The sheet is already up to date; the next sweep rewrites the same row.
		slog.ErrorContext(ctx, "Failed to mark transaction exported",
			applog.FieldTransactionID, id,
			applog.FieldError, err)
	}

	slog.InfoContext(ctx, "Transaction exported",
		applog.FieldTransactionID, id,
		"version", rec.Version,
		"deleted", rec.Deleted)
	return nil
}

// HandleReportRequest generates a report and delivers it on the channel the
// user asked from. Generation failures are answered with an apology instead
// of being retried; delivery failures requeue.
func (w *Worker) HandleReportRequest(ctx context.Context, msg *amqp.ReportRequestMessage) error {
	notifier, ok := w.notifiers[msg.Channel]
	if !ok || notifier == nil {
		slog.WarnContext(ctx, "No notifier for report channel",
			applog.FieldUserID, msg.UserID,
			applog.FieldChannel, msg.Channel)
		return nil
	}

	rng, err := msg.Range(w.loc)
	if err != nil {
		slog.WarnContext(ctx, "Dropping report request with invalid range",
			applog.FieldUserID, msg.UserID,
			applog.FieldError, err)
		return nil
	}
	if rng.IsZero() {
		rng, err = core.MonthRange(w.now().In(w.loc).Format("2006-01"), w.loc)
		if err != nil {
			return fmt.Errorf("current month range: %w", err)
		}
	}

	text := reportFailureReply
	if w.reports != nil {
		report, err := w.reports.Generate(ctx, msg.UserID, rng)
		if err != nil {
			w.log.LogError(ctx, "Report generation failed", err, applog.ComponentReport, applog.OpGenerate,
				applog.NewFields().WithUser(msg.UserID))
		} else {
			text = report.Text
		}
	}

	if err := notifier.Send(ctx, msg.Address, text); err != nil {
		return fmt.Errorf("deliver report on %s: %w", msg.Channel, err)
	}

	slog.InfoContext(ctx, "Report delivered",
		applog.FieldUserID, msg.UserID,
		applog.FieldChannel, msg.Channel,
		applog.FieldRange, rng.String())
	return nil
}

// ProcessPendingExports exports up to one batch of rows still marked pending.
// Only one worker sweeps at a time; others return nil immediately.
func (w *Worker) ProcessPendingExports(ctx context.Context) error {
	_, err := w.sweep(ctx, w.batchSize)
	return err
}

// StartupSyncCheck sweeps a larger batch to recover from events missed
// while the worker was down.
func (w *Worker) StartupSyncCheck(ctx context.Context) error {
	res, err := w.sweep(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if res.total == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"total", res.total,
		"exported", res.exported,
		"errors", res.failed)
	return nil
}

// recordFailure counts a failed sweep export and gives up on the row once
// it reaches MaxExportAttempts, so later rows are not starved.
func (w *Worker) recordFailure(ctx context.Context, rec storage.ExportRecord) {
	id := rec.Transaction.ID
	attempts, err := w.store.RecordExportFailure(ctx, id, rec.Version)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record export failure",
			applog.FieldTransactionID, id,
			applog.FieldError, err)
		return
	}
	if attempts < MaxExportAttempts {
		return
	}
	if err := w.store.MarkExportError(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark export error",
			applog.FieldTransactionID, id,
			applog.FieldError, err)
	}
}

type sweepResult struct {
	total, exported, failed int
}

func (w *Worker) sweep(ctx context.Context, limit int) (sweepResult, error) {
	var res sweepResult
	if w.exporter == nil {
		return res, nil
	}

	release, err := w.locker.Obtain(ctx, sweepLockKey, sweepLockTTL)
	if errors.Is(err, cache.ErrLockHeld) {
		slog.DebugContext(ctx, "Export sweep already running elsewhere")
		return res, nil
	}
	if err != nil {
		return res, err
	}
	defer release(context.WithoutCancel(ctx))

	pending, err := w.store.GetPendingExports(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("get pending exports: %w", err)
	}
	res.total = len(pending)
	if res.total == 0 {
		return res, nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", res.total)

	for _, p := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		rec, err := w.store.GetExportRecord(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load pending export",
				applog.FieldTransactionID, p.ID,
				applog.FieldError, err)
			if errors.Is(err, core.ErrNotFound) {
				if err := w.store.MarkExportError(ctx, p.ID); err != nil {
					slog.ErrorContext(ctx, "Failed to mark export error",
						applog.FieldTransactionID, p.ID,
						applog.FieldError, err)
				}
			}
			res.failed++
			continue
		}

		if err := w.export(ctx, rec); err != nil {
			w.logExportFailure(ctx, rec, err)
			w.recordFailure(ctx, rec)
			res.failed++
			continue
		}
		res.exported++
	}
	return res, nil
}
