package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"dompet/internal/amqp"
	"dompet/internal/core"
	"dompet/internal/sheets"
	"dompet/internal/storage"
)

type recordingExporter struct {
	rows []sheets.ExportRow
	err  error
}

func (e *recordingExporter) AppendRow(ctx context.Context, row sheets.ExportRow) error {
	if e.err != nil {
		return e.err
	}
	e.rows = append(e.rows, row)
	return nil
}

func newTestWorker(t *testing.T, exporter sheets.LedgerExporter) (*ExportWorker, *storage.SQLiteRepository) {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "wallet.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewExportWorker(repo, exporter), repo
}

func TestHandleLedgerEventExportsTransaction(t *testing.T) {
	exporter := &recordingExporter{}
	w, repo := newTestWorker(t, exporter)
	ctx := context.Background()

	id, err := repo.CreateTransaction(ctx, core.TransactionInput{
		Note:      "freelance gig",
		Amount:    250000,
		Breakdown: core.IncomeBreakdown{NotesReceived: core.NoteCounts{100000: 2, 50000: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	msg := amqp.NewLedgerEventMessage(amqp.EventTransactionCreated, id)
	if err := w.HandleLedgerEvent(ctx, msg); err != nil {
		t.Fatalf("HandleLedgerEvent() error = %v", err)
	}

	if len(exporter.rows) != 1 {
		t.Fatalf("exported rows = %d, want 1", len(exporter.rows))
	}
	row := exporter.rows[0]
	if row.Event != amqp.EventTransactionCreated {
		t.Errorf("row.Event = %q", row.Event)
	}
	if row.TransactionID != id {
		t.Errorf("row.TransactionID = %d, want %d", row.TransactionID, id)
	}
	if row.Note != "freelance gig" || row.Amount != 250000 || row.Kind != "income" {
		t.Errorf("row = %+v", row)
	}
}

func TestHandleLedgerEventDeletedHasNoRecord(t *testing.T) {
	exporter := &recordingExporter{}
	w, _ := newTestWorker(t, exporter)

	// Deleted events journal the bare event; there is no row to fetch.
	msg := amqp.NewLedgerEventMessage(amqp.EventTransactionDeleted, 12)
	if err := w.HandleLedgerEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleLedgerEvent() error = %v", err)
	}

	if len(exporter.rows) != 1 {
		t.Fatalf("exported rows = %d, want 1", len(exporter.rows))
	}
	row := exporter.rows[0]
	if row.Kind != "" || row.Note != "" || row.Amount != 0 {
		t.Errorf("deleted event row carries record fields: %+v", row)
	}
}

func TestHandleLedgerEventVanishedTransaction(t *testing.T) {
	exporter := &recordingExporter{}
	w, _ := newTestWorker(t, exporter)

	// A created event whose transaction was deleted before the worker
	// got to it is dropped, not retried forever.
	msg := amqp.NewLedgerEventMessage(amqp.EventTransactionCreated, 404)
	if err := w.HandleLedgerEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleLedgerEvent() error = %v", err)
	}
	if len(exporter.rows) != 0 {
		t.Errorf("exported rows = %d, want 0", len(exporter.rows))
	}
}

func TestHandleLedgerEventNoExporter(t *testing.T) {
	w, _ := newTestWorker(t, nil)

	msg := amqp.NewLedgerEventMessage(amqp.EventWalletAdjusted, 0)
	if err := w.HandleLedgerEvent(context.Background(), msg); err != nil {
		t.Errorf("HandleLedgerEvent() without exporter error = %v", err)
	}
}

func TestHandleLedgerEventExportFailure(t *testing.T) {
	exporter := &recordingExporter{err: errors.New("quota exceeded")}
	w, repo := newTestWorker(t, exporter)
	ctx := context.Background()

	id, err := repo.CreateTransaction(ctx, core.TransactionInput{
		Note:      "tips",
		Amount:    5000,
		Breakdown: core.IncomeBreakdown{NotesReceived: core.NoteCounts{5000: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	msg := amqp.NewLedgerEventMessage(amqp.EventTransactionCreated, id)
	if err := w.HandleLedgerEvent(ctx, msg); err == nil {
		t.Error("HandleLedgerEvent() error = nil, want export failure")
	}
}
