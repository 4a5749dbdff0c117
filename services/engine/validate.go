package engine

import (
	"sort"
)

// ValidateBars rejects a bar series the simulation cannot run on: empty
// values are fine, but timestamps must be strictly increasing (no duplicates)
// and prices must be positive with high >= low. Violations are load-boundary
// errors, never discovered mid-run.
func ValidateBars(bars []Bar) error {
	for i, b := range bars {
		if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
			return &MalformedInputError{Kind: "bar", Index: i, Reason: "non-positive price"}
		}
		if b.High.LessThan(b.Low) {
			return &MalformedInputError{Kind: "bar", Index: i, Reason: "high below low"}
		}
		if i > 0 && bars[i].Timestamp <= bars[i-1].Timestamp {
			return &MalformedInputError{Kind: "bar", Index: i, Reason: "non-increasing timestamp"}
		}
	}
	return nil
}

// NormalizeSignals sorts the signal list by timestamp and drops duplicate
// timestamps, keeping the last occurrence. Out-of-order input is fixed here
// rather than rejected; the caller gets the number of duplicates removed for
// logging. Signals with non-positive prices are rejected.
func NormalizeSignals(signals []Signal) ([]Signal, int, error) {
	for i, s := range signals {
		if !s.Price.IsPositive() {
			return nil, 0, &MalformedInputError{Kind: "signal", Index: i, Reason: "non-positive price"}
		}
	}

	out := make([]Signal, len(signals))
	copy(out, signals)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })

	dropped := 0
	uniq := out[:0]
	for _, s := range out {
		if n := len(uniq); n > 0 && uniq[n-1].Timestamp == s.Timestamp {
			uniq[n-1] = s
			dropped++
			continue
		}
		uniq = append(uniq, s)
	}
	return uniq, dropped, nil
}
