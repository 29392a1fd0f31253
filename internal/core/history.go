package core

import "fmt"

// Period selects the calendar window a history query covers.
type Period string

// SortOrder selects how a history query is ordered. Amount-based sorts
// break ties by timestamp descending.
type SortOrder string

const (
	PeriodAll       Period = "all"
	PeriodToday     Period = "today"
	PeriodThisMonth Period = "this_month"

	SortDateDesc   SortOrder = "date_desc"
	SortDateAsc    SortOrder = "date_asc"
	SortAmountDesc SortOrder = "amount_desc"
	SortAmountAsc  SortOrder = "amount_asc"
)

// ParsePeriod maps a query parameter to a Period; empty means all.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodAll:
		return PeriodAll, nil
	case PeriodToday:
		return PeriodToday, nil
	case PeriodThisMonth:
		return PeriodThisMonth, nil
	}
	return "", fmt.Errorf("invalid filter_period %q", s)
}

// ParseSortOrder maps a query parameter to a SortOrder; empty means
// date descending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "", SortDateDesc:
		return SortDateDesc, nil
	case SortDateAsc:
		return SortDateAsc, nil
	case SortAmountDesc:
		return SortAmountDesc, nil
	case SortAmountAsc:
		return SortAmountAsc, nil
	}
	return "", fmt.Errorf("invalid sort_by %q", s)
}
