package sheets

import "context"

// ExportRow is one journal line in the exported ledger: the event that
// happened and the transaction it concerns. The export is append-only;
// deletes show up as their own rows rather than removing earlier ones.
type ExportRow struct {
	Timestamp     string
	Event         string
	TransactionID int64
	Kind          string
	Note          string
	Amount        int64
}

// LedgerExporter appends ledger journal rows to an external sink.
type LedgerExporter interface {
	AppendRow(ctx context.Context, row ExportRow) error
}
