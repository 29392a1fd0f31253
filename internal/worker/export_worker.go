package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dompet/internal/amqp"
	"dompet/internal/core"
	"dompet/internal/sheets"
	"dompet/internal/storage"
)

// ExportWorker mirrors ledger events into an external append-only
// journal and periodically verifies that the banknote registry still
// matches the replayed ledger.
type ExportWorker struct {
	storage  *storage.SQLiteRepository
	exporter sheets.LedgerExporter
}

func NewExportWorker(storage *storage.SQLiteRepository, exporter sheets.LedgerExporter) *ExportWorker {
	return &ExportWorker{
		storage:  storage,
		exporter: exporter,
	}
}

// HandleLedgerEvent processes one event from the AMQP stream.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if w.exporter == nil {
		slog.WarnContext(ctx, "No ledger exporter configured, dropping event",
			"event", msg.Event,
			"transaction_id", msg.TransactionID)
		return nil
	}

	row := sheets.ExportRow{
		Timestamp:     core.FormatTimestamp(msg.Timestamp),
		Event:         msg.Event,
		TransactionID: msg.TransactionID,
	}

	// Deleted transactions and wallet adjustments have no row left to
	// fetch; the bare event is the journal line.
	if msg.Event == amqp.EventTransactionCreated || msg.Event == amqp.EventTransactionUpdated {
		detail, err := w.storage.TransactionDetail(ctx, msg.TransactionID)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Transaction vanished before export",
				"transaction_id", msg.TransactionID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load transaction %d: %w", msg.TransactionID, err)
		}
		row.Kind = string(detail.Kind)
		row.Note = detail.Note
		row.Amount = detail.Amount
	}

	if err := w.exporter.AppendRow(ctx, row); err != nil {
		return fmt.Errorf("export ledger row: %w", err)
	}
	return nil
}

// RunVerifier replays the ledger on a fixed interval and logs any
// drift between the registry and the replayed counts. Drift is expected
// after manual wallet adjustments; anything else points at a
// consistency bug.
func (w *ExportWorker) RunVerifier(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			drift, err := w.storage.VerifyLedger(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Ledger verification failed", "error", err)
				continue
			}
			if len(drift) == 0 {
				slog.DebugContext(ctx, "Ledger verified, registry matches replay")
				continue
			}
			for _, d := range drift {
				slog.WarnContext(ctx, "Registry count disagrees with replayed ledger",
					"denomination", d.Value,
					"registry_count", d.Registry,
					"replayed_count", d.Replayed)
			}
		}
	}
}
