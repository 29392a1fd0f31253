package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dompet/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the denomination registry and transaction ledger.
// Every mutating operation runs inside one database transaction so the
// registry and the ledger always commit together or not at all.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Single-writer usage; one connection avoids SQLITE_BUSY between the
	// pool's connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Wallet returns all denominations ordered by value descending, plus
// the total cash they represent.
func (r *SQLiteRepository) Wallet(ctx context.Context) ([]core.Denomination, int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT value, name, count FROM banknotes ORDER BY value DESC`)
	if err != nil {
		return nil, 0, fmt.Errorf("query banknotes: %w", err)
	}
	defer rows.Close()

	var (
		notes []core.Denomination
		total int64
	)
	for rows.Next() {
		var d core.Denomination
		if err := rows.Scan(&d.Value, &d.Name, &d.Count); err != nil {
			return nil, 0, fmt.Errorf("scan banknote: %w", err)
		}
		notes = append(notes, d)
		total += d.Value * d.Count
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate banknotes: %w", err)
	}
	return notes, total, nil
}

// applyDelta is the sole mutation path for banknote counts. The guard in
// the WHERE clause keeps counts from ever going negative; a zero-row
// update is then disambiguated into unknown-denomination or
// insufficient-funds.
func (r *SQLiteRepository) applyDelta(ctx context.Context, tx *sql.Tx, value, delta int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE banknotes SET count = count + ? WHERE value = ? AND count + ? >= 0`,
		delta, value, delta)
	if err != nil {
		return fmt.Errorf("apply delta to banknote %d: %w", value, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var available int64
	err = tx.QueryRowContext(ctx, `SELECT count FROM banknotes WHERE value = ?`, value).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return &core.UnknownDenominationError{Value: value}
	}
	if err != nil {
		return fmt.Errorf("probe banknote %d: %w", value, err)
	}
	return &core.InsufficientFundsError{Value: value, Available: available, Required: -delta}
}

// CreateTransaction applies the deltas, appends the transaction row and
// one movement row per non-zero delta, all atomically.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, in core.TransactionInput) (int64, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	deltas := in.Breakdown.Deltas()
	for _, d := range deltas {
		if err := r.applyDelta(ctx, tx, d.Value, d.Change); err != nil {
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (note, amount, kind, timestamp) VALUES (?, ?, ?, ?)`,
		in.Note, in.Amount, string(in.Breakdown.Kind()), core.FormatTimestamp(ts))
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	if err := insertMovements(ctx, tx, id, deltas); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"id", id,
		"kind", string(in.Breakdown.Kind()),
		"amount", in.Amount,
		"movements", len(deltas))
	return id, nil
}

// UpdateTransaction mutates a transaction in place. When the update
// carries a breakdown, the stored movements are reverted first and the
// new deltas applied, so the registry stays the derived view of the
// ledger throughout.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id int64, upd core.TransactionUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var kind string
	err = tx.QueryRowContext(ctx, `SELECT kind FROM transactions WHERE id = ?`, id).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load transaction %d: %w", id, err)
	}

	if upd.Breakdown != nil {
		old, err := movementsForTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		// Revert the stored movements. A reversal driving a count below
		// zero means the original notes were depleted by later activity;
		// the whole update aborts.
		for _, m := range old {
			if err := r.applyDelta(ctx, tx, m.DenominationValue, -m.CountChange); err != nil {
				return fmt.Errorf("revert movement of transaction %d: %w", id, err)
			}
		}

		deltas := upd.Breakdown.Deltas()
		for _, d := range deltas {
			if err := r.applyDelta(ctx, tx, d.Value, d.Change); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM transaction_details WHERE transaction_id = ?`, id); err != nil {
			return fmt.Errorf("delete old movements: %w", err)
		}
		if err := insertMovements(ctx, tx, id, deltas); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET kind = ? WHERE id = ?`,
			string(upd.Breakdown.Kind()), id); err != nil {
			return fmt.Errorf("update kind: %w", err)
		}
	}

	if upd.Note != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET note = ? WHERE id = ?`, *upd.Note, id); err != nil {
			return fmt.Errorf("update note: %w", err)
		}
	}
	if upd.Amount != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET amount = ? WHERE id = ?`, *upd.Amount, id); err != nil {
			return fmt.Errorf("update amount: %w", err)
		}
	}
	if upd.Timestamp != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET timestamp = ? WHERE id = ?`,
			core.FormatTimestamp(*upd.Timestamp), id); err != nil {
			return fmt.Errorf("update timestamp: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated",
		"id", id,
		"movements_replaced", upd.Breakdown != nil)
	return nil
}

// DeleteTransaction reverts every movement of the transaction and then
// removes its rows. A reversal that would drive a count negative aborts
// the delete: the notes were already spent by later activity and
// removing the transaction would desynchronize the registry from
// physical reality.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	movements, err := movementsForTransaction(ctx, tx, id)
	if err != nil {
		return err
	}
	if len(movements) == 0 {
		return core.ErrNotFound
	}

	for _, m := range movements {
		if err := r.applyDelta(ctx, tx, m.DenominationValue, -m.CountChange); err != nil {
			return fmt.Errorf("revert movement of transaction %d: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transaction_details WHERE transaction_id = ?`, id); err != nil {
		return fmt.Errorf("delete movements: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "movements_reverted", len(movements))
	return nil
}

// AdjustWallet overwrites banknote counts directly, without a ledger
// entry. This deliberately bypasses the derived-from-ledger invariant;
// it exists to correct the registry when the physical wallet disagrees
// with the books.
func (r *SQLiteRepository) AdjustWallet(ctx context.Context, counts core.NoteCounts) error {
	if err := counts.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for value, count := range counts {
		res, err := tx.ExecContext(ctx,
			`UPDATE banknotes SET count = ? WHERE value = ?`, count, value)
		if err != nil {
			return fmt.Errorf("adjust banknote %d: %w", value, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return &core.UnknownDenominationError{Value: value}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit adjust: %w", err)
	}

	slog.WarnContext(ctx, "Wallet counts overridden outside the ledger", "denominations", len(counts))
	return nil
}

// History lists transactions in the given calendar window and order.
func (r *SQLiteRepository) History(ctx context.Context, period core.Period, sortBy core.SortOrder) ([]core.Transaction, error) {
	query := `SELECT id, note, amount, kind, CAST(timestamp AS TEXT) FROM transactions`
	var args []any

	if from, to, bounded := periodBounds(period, time.Now()); bounded {
		query += ` WHERE timestamp >= ? AND timestamp < ?`
		args = append(args, core.FormatTimestamp(from), core.FormatTimestamp(to))
	}

	switch sortBy {
	case core.SortDateAsc:
		query += ` ORDER BY timestamp ASC, id ASC`
	case core.SortAmountDesc:
		query += ` ORDER BY amount DESC, timestamp DESC, id DESC`
	case core.SortAmountAsc:
		query += ` ORDER BY amount ASC, timestamp DESC, id DESC`
	default:
		query += ` ORDER BY timestamp DESC, id DESC`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

// TransactionDetail loads one transaction and reconstructs its note
// breakdown from the stored movements.
func (r *SQLiteRepository) TransactionDetail(ctx context.Context, id int64) (core.TransactionDetail, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, note, amount, kind, CAST(timestamp AS TEXT) FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransactionDetail{}, core.ErrNotFound
	}
	if err != nil {
		return core.TransactionDetail{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT transaction_id, banknote_value, count_change
		 FROM transaction_details WHERE transaction_id = ? ORDER BY id`, id)
	if err != nil {
		return core.TransactionDetail{}, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var movements []core.Movement
	for rows.Next() {
		var m core.Movement
		if err := rows.Scan(&m.TransactionID, &m.DenominationValue, &m.CountChange); err != nil {
			return core.TransactionDetail{}, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return core.TransactionDetail{}, fmt.Errorf("iterate movements: %w", err)
	}

	return core.TransactionDetail{
		Transaction: t,
		Breakdown:   core.BreakdownFromMovements(t.Kind, movements),
	}, nil
}

// Drift is a denomination whose live count disagrees with the count
// replayed from the ledger.
type Drift struct {
	Value    int64
	Registry int64
	Replayed int64
}

// VerifyLedger replays every surviving movement from an all-zero
// registry and diffs the result against the live counts. A non-empty
// result is expected after manual wallet adjustments and indicates a
// bug otherwise.
func (r *SQLiteRepository) VerifyLedger(ctx context.Context) ([]Drift, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT transaction_id, banknote_value, count_change FROM transaction_details`)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var movements []core.Movement
	for rows.Next() {
		var m core.Movement
		if err := rows.Scan(&m.TransactionID, &m.DenominationValue, &m.CountChange); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}

	replayed := core.Replay(movements)

	notes, _, err := r.Wallet(ctx)
	if err != nil {
		return nil, err
	}

	var drift []Drift
	for _, d := range notes {
		if got := replayed[d.Value]; got != d.Count {
			drift = append(drift, Drift{Value: d.Value, Registry: d.Count, Replayed: got})
		}
	}
	return drift, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t    core.Transaction
		kind string
		ts   string
	)
	if err := row.Scan(&t.ID, &t.Note, &t.Amount, &kind, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Kind = core.Kind(kind)
	parsed, err := core.ParseTimestamp(ts)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored timestamp %q: %w", ts, err)
	}
	t.Timestamp = parsed
	return t, nil
}

func movementsForTransaction(ctx context.Context, tx *sql.Tx, id int64) ([]core.Movement, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT transaction_id, banknote_value, count_change
		 FROM transaction_details WHERE transaction_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query movements of transaction %d: %w", id, err)
	}
	defer rows.Close()

	var movements []core.Movement
	for rows.Next() {
		var m core.Movement
		if err := rows.Scan(&m.TransactionID, &m.DenominationValue, &m.CountChange); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return movements, nil
}

func insertMovements(ctx context.Context, tx *sql.Tx, id int64, deltas []core.Delta) error {
	for _, d := range deltas {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transaction_details (transaction_id, banknote_value, count_change) VALUES (?, ?, ?)`,
			id, d.Value, d.Change); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
	}
	return nil
}

// periodBounds translates a filter period into a half-open timestamp
// window. The zero return means the query is unbounded.
func periodBounds(period core.Period, now time.Time) (from, to time.Time, bounded bool) {
	switch period {
	case core.PeriodToday:
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return from, from.AddDate(0, 0, 1), true
	case core.PeriodThisMonth:
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return from, from.AddDate(0, 1, 0), true
	}
	return time.Time{}, time.Time{}, false
}
