package core

import "fmt"

// InsufficientFundsError reports a registry change that would drive a
// denomination count below zero: removing Required notes when only
// Available are held.
type InsufficientFundsError struct {
	Value     int64
	Available int64
	Required  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("not enough %d notes in wallet: have %d, need %d", e.Value, e.Available, e.Required)
}

// UnknownDenominationError reports a denomination value the registry
// does not track.
type UnknownDenominationError struct {
	Value int64
}

func (e *UnknownDenominationError) Error() string {
	return fmt.Sprintf("unknown denomination %d", e.Value)
}
