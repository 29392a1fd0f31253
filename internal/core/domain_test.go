package core

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestKindValidate(t *testing.T) {
	tests := []struct {
		kind    Kind
		wantErr bool
	}{
		{KindExpense, false},
		{KindIncome, false},
		{Kind(""), true},
		{Kind("transfer"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := tt.kind.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Run("empty maps to zero time", func(t *testing.T) {
		ts, err := ParseTimestamp("")
		if err != nil {
			t.Fatalf("ParseTimestamp(\"\") error = %v", err)
		}
		if !ts.IsZero() {
			t.Errorf("expected zero time, got %v", ts)
		}
	})

	t.Run("valid timestamp round-trips", func(t *testing.T) {
		ts, err := ParseTimestamp("2025-03-14 15:09:26")
		if err != nil {
			t.Fatalf("ParseTimestamp() error = %v", err)
		}
		if got := FormatTimestamp(ts); got != "2025-03-14 15:09:26" {
			t.Errorf("FormatTimestamp() = %q", got)
		}
	})

	invalid := []string{"2025-03-14", "14/03/2025 15:09:26", "2025-03-14T15:09:26Z", "not a time"}
	for _, s := range invalid {
		t.Run("rejects "+s, func(t *testing.T) {
			if _, err := ParseTimestamp(s); !errors.Is(err, ErrBadTimestamp) {
				t.Errorf("ParseTimestamp(%q) error = %v, want ErrBadTimestamp", s, err)
			}
		})
	}
}

func TestBreakdownValidate(t *testing.T) {
	tests := []struct {
		name      string
		breakdown Breakdown
		wantErr   error
	}{
		{
			name:      "expense with notes paid",
			breakdown: ExpenseBreakdown{PaidWith: NoteCounts{100000: 1}},
			wantErr:   nil,
		},
		{
			name:      "expense without notes paid",
			breakdown: ExpenseBreakdown{ChangeReceived: NoteCounts{50000: 1}},
			wantErr:   ErrEmptyPaidWith,
		},
		{
			name:      "expense with only zero counts",
			breakdown: ExpenseBreakdown{PaidWith: NoteCounts{100000: 0}},
			wantErr:   ErrEmptyPaidWith,
		},
		{
			name:      "expense with negative change",
			breakdown: ExpenseBreakdown{PaidWith: NoteCounts{100000: 1}, ChangeReceived: NoteCounts{50000: -1}},
			wantErr:   ErrNegativeCount,
		},
		{
			name:      "income with notes received",
			breakdown: IncomeBreakdown{NotesReceived: NoteCounts{50000: 2}},
			wantErr:   nil,
		},
		{
			name:      "income without notes",
			breakdown: IncomeBreakdown{},
			wantErr:   ErrEmptyNotesReceived,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.breakdown.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpenseBreakdownDeltas(t *testing.T) {
	b := ExpenseBreakdown{
		PaidWith:       NoteCounts{50000: 1, 100000: 2, 20000: 0},
		ChangeReceived: NoteCounts{5000: 1, 10000: 3},
	}

	want := []Delta{
		{Value: 100000, Change: -2},
		{Value: 50000, Change: -1},
		{Value: 10000, Change: 3},
		{Value: 5000, Change: 1},
	}
	if got := b.Deltas(); !reflect.DeepEqual(got, want) {
		t.Errorf("Deltas() = %v, want %v", got, want)
	}
}

func TestIncomeBreakdownDeltas(t *testing.T) {
	b := IncomeBreakdown{NotesReceived: NoteCounts{1000: 5, 100000: 1}}

	want := []Delta{
		{Value: 100000, Change: 1},
		{Value: 1000, Change: 5},
	}
	if got := b.Deltas(); !reflect.DeepEqual(got, want) {
		t.Errorf("Deltas() = %v, want %v", got, want)
	}
}

func TestBreakdownFromMovements(t *testing.T) {
	t.Run("expense splits by sign", func(t *testing.T) {
		movements := []Movement{
			{TransactionID: 1, DenominationValue: 100000, CountChange: -2},
			{TransactionID: 1, DenominationValue: 20000, CountChange: 1},
			{TransactionID: 1, DenominationValue: 5000, CountChange: 3},
		}

		b, ok := BreakdownFromMovements(KindExpense, movements).(ExpenseBreakdown)
		if !ok {
			t.Fatal("expected ExpenseBreakdown")
		}
		if want := (NoteCounts{100000: 2}); !reflect.DeepEqual(b.PaidWith, want) {
			t.Errorf("PaidWith = %v, want %v", b.PaidWith, want)
		}
		if want := (NoteCounts{20000: 1, 5000: 3}); !reflect.DeepEqual(b.ChangeReceived, want) {
			t.Errorf("ChangeReceived = %v, want %v", b.ChangeReceived, want)
		}
	})

	t.Run("income keeps positive changes", func(t *testing.T) {
		movements := []Movement{
			{TransactionID: 2, DenominationValue: 50000, CountChange: 4},
		}

		b, ok := BreakdownFromMovements(KindIncome, movements).(IncomeBreakdown)
		if !ok {
			t.Fatal("expected IncomeBreakdown")
		}
		if want := (NoteCounts{50000: 4}); !reflect.DeepEqual(b.NotesReceived, want) {
			t.Errorf("NotesReceived = %v, want %v", b.NotesReceived, want)
		}
	})
}

func TestReplay(t *testing.T) {
	movements := []Movement{
		{TransactionID: 1, DenominationValue: 100000, CountChange: 3},
		{TransactionID: 2, DenominationValue: 100000, CountChange: -1},
		{TransactionID: 2, DenominationValue: 20000, CountChange: 2},
	}

	want := map[int64]int64{100000: 2, 20000: 2}
	if got := Replay(movements); !reflect.DeepEqual(got, want) {
		t.Errorf("Replay() = %v, want %v", got, want)
	}
}

func TestTransactionInputValidate(t *testing.T) {
	valid := ExpenseBreakdown{PaidWith: NoteCounts{100000: 1}}

	tests := []struct {
		name    string
		input   TransactionInput
		wantErr error
	}{
		{
			name:    "valid expense",
			input:   TransactionInput{Note: "groceries", Amount: 85000, Breakdown: valid},
			wantErr: nil,
		},
		{
			name:    "zero amount",
			input:   TransactionInput{Amount: 0, Breakdown: valid},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			input:   TransactionInput{Amount: -100, Breakdown: valid},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "missing breakdown",
			input:   TransactionInput{Amount: 100},
			wantErr: ErrInvalidKind,
		},
		{
			name:    "invalid breakdown",
			input:   TransactionInput{Amount: 100, Breakdown: ExpenseBreakdown{}},
			wantErr: ErrEmptyPaidWith,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransactionUpdateValidate(t *testing.T) {
	note := "corrected"
	amount := int64(50000)
	badAmount := int64(-1)
	ts := time.Now()

	tests := []struct {
		name    string
		update  TransactionUpdate
		wantErr bool
	}{
		{
			name:    "no fields",
			update:  TransactionUpdate{},
			wantErr: true,
		},
		{
			name:    "note only",
			update:  TransactionUpdate{Note: &note},
			wantErr: false,
		},
		{
			name:    "timestamp only",
			update:  TransactionUpdate{Timestamp: &ts},
			wantErr: false,
		},
		{
			name:    "non-positive amount",
			update:  TransactionUpdate{Amount: &badAmount},
			wantErr: true,
		},
		{
			name: "breakdown without amount",
			update: TransactionUpdate{
				Breakdown: IncomeBreakdown{NotesReceived: NoteCounts{50000: 1}},
			},
			wantErr: true,
		},
		{
			name: "breakdown with amount",
			update: TransactionUpdate{
				Amount:    &amount,
				Breakdown: IncomeBreakdown{NotesReceived: NoteCounts{50000: 1}},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransactionUpdateBreakdownRequiresAmount(t *testing.T) {
	upd := TransactionUpdate{
		Breakdown: ExpenseBreakdown{PaidWith: NoteCounts{100000: 1}},
	}
	if err := upd.Validate(); !errors.Is(err, ErrAmountRequired) {
		t.Errorf("Validate() error = %v, want ErrAmountRequired", err)
	}
}

func TestNoteCountsUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    NoteCounts
		wantErr bool
	}{
		{
			name: "valid object",
			data: `{"100000": 2, "50000": 1}`,
			want: NoteCounts{100000: 2, 50000: 1},
		},
		{
			name: "empty object",
			data: `{}`,
			want: NoteCounts{},
		},
		{
			name:    "non-numeric key",
			data:    `{"big note": 1}`,
			wantErr: true,
		},
		{
			name:    "zero denomination value",
			data:    `{"0": 1}`,
			wantErr: true,
		},
		{
			name:    "negative denomination value",
			data:    `{"-100": 1}`,
			wantErr: true,
		},
		{
			name:    "negative count",
			data:    `{"100000": -1}`,
			wantErr: true,
		},
		{
			name:    "fractional count",
			data:    `{"100000": 1.5}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nc NoteCounts
			err := json.Unmarshal([]byte(tt.data), &nc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(nc, tt.want) {
				t.Errorf("Unmarshal = %v, want %v", nc, tt.want)
			}
		})
	}
}

func TestNoteCountsTotal(t *testing.T) {
	nc := NoteCounts{100000: 2, 50000: 0, 1000: 7}
	if got := nc.Total(); got != 9 {
		t.Errorf("Total() = %d, want 9", got)
	}
}

func TestHistoryParsing(t *testing.T) {
	t.Run("period defaults and rejects", func(t *testing.T) {
		if p, err := ParsePeriod(""); err != nil || p != PeriodAll {
			t.Errorf("ParsePeriod(\"\") = %v, %v", p, err)
		}
		if p, err := ParsePeriod("this_month"); err != nil || p != PeriodThisMonth {
			t.Errorf("ParsePeriod(\"this_month\") = %v, %v", p, err)
		}
		if _, err := ParsePeriod("yesterday"); err == nil {
			t.Error("ParsePeriod(\"yesterday\") expected error")
		}
	})

	t.Run("sort defaults and rejects", func(t *testing.T) {
		if s, err := ParseSortOrder(""); err != nil || s != SortDateDesc {
			t.Errorf("ParseSortOrder(\"\") = %v, %v", s, err)
		}
		if s, err := ParseSortOrder("amount_asc"); err != nil || s != SortAmountAsc {
			t.Errorf("ParseSortOrder(\"amount_asc\") = %v, %v", s, err)
		}
		if _, err := ParseSortOrder("note"); err == nil {
			t.Error("ParseSortOrder(\"note\") expected error")
		}
	})
}
