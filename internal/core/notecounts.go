package core

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// NoteCounts maps a denomination value to a number of physical notes.
// On the wire it is a JSON object whose keys are denomination values as
// strings, as in {"100000": 2, "50000": 1}.
type NoteCounts map[int64]int64

func (nc *NoteCounts) UnmarshalJSON(data []byte) error {
	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("note counts must map denomination values to whole numbers: %w", err)
	}
	out := make(NoteCounts, len(raw))
	for key, count := range raw {
		value, err := strconv.ParseInt(key, 10, 64)
		if err != nil || value <= 0 {
			return fmt.Errorf("invalid denomination value %q", key)
		}
		if count < 0 {
			return ErrNegativeCount
		}
		out[value] = count
	}
	*nc = out
	return nil
}

func (nc NoteCounts) MarshalJSON() ([]byte, error) {
	raw := make(map[string]int64, len(nc))
	for value, count := range nc {
		raw[strconv.FormatInt(value, 10)] = count
	}
	return json.Marshal(raw)
}

func (nc NoteCounts) Validate() error {
	for value, count := range nc {
		if value <= 0 {
			return fmt.Errorf("invalid denomination value %d", value)
		}
		if count < 0 {
			return ErrNegativeCount
		}
	}
	return nil
}

// Total is the number of notes across all denominations.
func (nc NoteCounts) Total() int64 {
	var total int64
	for _, count := range nc {
		total += count
	}
	return total
}

// deltas converts the counts to signed registry changes, dropping zero
// entries, ordered by descending denomination value.
func (nc NoteCounts) deltas(sign int64) []Delta {
	deltas := make([]Delta, 0, len(nc))
	for _, value := range sortedValues(nc) {
		if count := nc[value]; count != 0 {
			deltas = append(deltas, Delta{Value: value, Change: sign * count})
		}
	}
	return deltas
}
