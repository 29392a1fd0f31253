package core

import (
	"errors"
	"sort"
	"time"
)

// TimestampLayout is the wire and storage format for transaction timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

type (
	Kind string

	// Denomination is one banknote value tracked with its on-hand count.
	Denomination struct {
		Value int64
		Name  string
		Count int64
	}

	Transaction struct {
		ID        int64
		Note      string
		Amount    int64
		Kind      Kind
		Timestamp time.Time
	}

	// Movement is one signed count change of a denomination, owned by a
	// transaction. Negative means notes left the wallet, positive means
	// notes entered it.
	Movement struct {
		TransactionID     int64
		DenominationValue int64
		CountChange       int64
	}

	// Delta is a signed registry change derived from a breakdown.
	Delta struct {
		Value  int64
		Change int64
	}
)

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidKind        = errors.New("kind must be expense or income")
	ErrEmptyPaidWith      = errors.New("an expense requires at least one note paid with")
	ErrEmptyNotesReceived = errors.New("an income requires at least one note received")
	ErrNegativeCount      = errors.New("note counts cannot be negative")
	ErrBadTimestamp       = errors.New("timestamp must match YYYY-MM-DD HH:MM:SS")
	ErrNotFound           = errors.New("transaction not found")
	ErrAmountRequired     = errors.New("amount is required when replacing movements")
)

func (k Kind) Validate() error {
	switch k {
	case KindExpense, KindIncome:
		return nil
	}
	return ErrInvalidKind
}

// ParseTimestamp parses a transaction timestamp in its wire format. An
// empty string maps to the zero time; callers substitute the current
// time for it.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, ErrBadTimestamp
	}
	return t, nil
}

// FormatTimestamp renders a timestamp in its wire format.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Breakdown is the per-denomination note composition of a transaction.
// Expenses and incomes carry different mappings, so the two shapes are
// separate types instead of one overloaded field set.
type Breakdown interface {
	Kind() Kind
	Validate() error
	// Deltas lists the signed registry changes this breakdown implies,
	// zero-count entries dropped, in a deterministic order: removals
	// before additions, each group by descending denomination value.
	Deltas() []Delta
}

type ExpenseBreakdown struct {
	PaidWith       NoteCounts
	ChangeReceived NoteCounts
}

type IncomeBreakdown struct {
	NotesReceived NoteCounts
}

func (ExpenseBreakdown) Kind() Kind { return KindExpense }
func (IncomeBreakdown) Kind() Kind  { return KindIncome }

func (b ExpenseBreakdown) Validate() error {
	if err := b.PaidWith.Validate(); err != nil {
		return err
	}
	if err := b.ChangeReceived.Validate(); err != nil {
		return err
	}
	if b.PaidWith.Total() == 0 {
		return ErrEmptyPaidWith
	}
	return nil
}

func (b IncomeBreakdown) Validate() error {
	if err := b.NotesReceived.Validate(); err != nil {
		return err
	}
	if b.NotesReceived.Total() == 0 {
		return ErrEmptyNotesReceived
	}
	return nil
}

func (b ExpenseBreakdown) Deltas() []Delta {
	deltas := b.PaidWith.deltas(-1)
	return append(deltas, b.ChangeReceived.deltas(+1)...)
}

func (b IncomeBreakdown) Deltas() []Delta {
	return b.NotesReceived.deltas(+1)
}

// BreakdownFromMovements reconstructs a breakdown from stored movements
// by inverting the sign convention: for an expense, negative changes
// were notes paid with and positive ones change received; for an income
// every change is a note received.
func BreakdownFromMovements(kind Kind, movements []Movement) Breakdown {
	if kind == KindIncome {
		received := NoteCounts{}
		for _, m := range movements {
			if m.CountChange > 0 {
				received[m.DenominationValue] += m.CountChange
			}
		}
		return IncomeBreakdown{NotesReceived: received}
	}
	paid, change := NoteCounts{}, NoteCounts{}
	for _, m := range movements {
		if m.CountChange < 0 {
			paid[m.DenominationValue] += -m.CountChange
		} else {
			change[m.DenominationValue] += m.CountChange
		}
	}
	return ExpenseBreakdown{PaidWith: paid, ChangeReceived: change}
}

// Replay applies every movement to an all-zero registry and returns the
// resulting count per denomination value. The registry is a derived view
// of the ledger: this must equal the live counts exactly after any
// sequence of successful creates, updates and deletes.
func Replay(movements []Movement) map[int64]int64 {
	counts := make(map[int64]int64)
	for _, m := range movements {
		counts[m.DenominationValue] += m.CountChange
	}
	return counts
}

// TransactionInput is a request to record a new transaction.
type TransactionInput struct {
	Note      string
	Amount    int64
	Breakdown Breakdown
	Timestamp time.Time // zero means "now"
}

func (in TransactionInput) Validate() error {
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if in.Breakdown == nil {
		return ErrInvalidKind
	}
	return in.Breakdown.Validate()
}

// TransactionUpdate describes a partial update. Nil fields are left
// untouched. A non-nil Breakdown replaces the movement set, which
// requires Amount to be set as well since it is not derivable from note
// counts.
type TransactionUpdate struct {
	Note      *string
	Amount    *int64
	Timestamp *time.Time
	Breakdown Breakdown
}

func (u TransactionUpdate) Validate() error {
	if u.Note == nil && u.Amount == nil && u.Timestamp == nil && u.Breakdown == nil {
		return errors.New("no fields to update")
	}
	if u.Amount != nil && *u.Amount <= 0 {
		return ErrInvalidAmount
	}
	if u.Breakdown != nil {
		if u.Amount == nil {
			return ErrAmountRequired
		}
		return u.Breakdown.Validate()
	}
	return nil
}

// TransactionDetail is a transaction with its breakdown reconstructed
// from the ledger.
type TransactionDetail struct {
	Transaction
	Breakdown Breakdown
}

func sortedValues(nc NoteCounts) []int64 {
	values := make([]int64, 0, len(nc))
	for v := range nc {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] > values[j] })
	return values
}
