package engine

import "fmt"

// Bar represents a single OHLCV bar, timestamps in epoch milliseconds.
type Bar struct {
	Timestamp uint64  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Valid reports whether the bar satisfies OHLC ordering and positivity.
func (b Bar) Valid(requireVolume bool) bool {
	if !(b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0) {
		return false
	}
	if b.Open != b.Open || b.High != b.High || b.Low != b.Low || b.Close != b.Close {
		return false // NaN
	}
	if b.High < b.Open || b.High < b.Close || b.High < b.Low {
		return false
	}
	if b.Low > b.Open || b.Low > b.Close {
		return false
	}
	if requireVolume && b.Volume <= 0 {
		return false
	}
	return b.Volume >= 0
}

// CleanBars drops invalid bars from the series. If the invalid fraction
// exceeds maxInvalidFrac the whole series is rejected with a
// DataQualityError; otherwise drops are recorded as warnings and the run
// continues on the surviving bars.
func CleanBars(bars []Bar, maxInvalidFrac float64, requireVolume bool) ([]Bar, []string, error) {
	if len(bars) == 0 {
		return nil, nil, &DataQualityError{Reason: "empty bar series"}
	}
	out := make([]Bar, 0, len(bars))
	var warnings []string
	invalid := 0
	for i, b := range bars {
		if !b.Valid(requireVolume) {
			invalid++
			if len(warnings) < 20 {
				warnings = append(warnings, fmt.Sprintf("dropped invalid bar %d (ts=%d)", i, b.Timestamp))
			}
			continue
		}
		if len(out) > 0 && b.Timestamp <= out[len(out)-1].Timestamp {
			invalid++
			if len(warnings) < 20 {
				warnings = append(warnings, fmt.Sprintf("dropped out-of-order bar %d (ts=%d)", i, b.Timestamp))
			}
			continue
		}
		out = append(out, b)
	}
	frac := float64(invalid) / float64(len(bars))
	if frac > maxInvalidFrac {
		return nil, warnings, &DataQualityError{
			Reason:  "invalid bar fraction above limit",
			Invalid: invalid,
			Total:   len(bars),
			Limit:   maxInvalidFrac,
		}
	}
	if invalid > 0 {
		warnings = append(warnings, fmt.Sprintf("excluded %d of %d bars", invalid, len(bars)))
	}
	return out, warnings, nil
}

// DetectGaps returns timestamps after which the series skips at least one
// expected step.
func DetectGaps(bars []Bar, stepMs uint64) []uint64 {
	var gaps []uint64
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp-bars[i-1].Timestamp > stepMs {
			gaps = append(gaps, bars[i-1].Timestamp)
		}
	}
	return gaps
}

// minuteOfDay extracts the UTC minute-of-day from a millisecond timestamp.
func minuteOfDay(ts uint64) int {
	return int(ts / 60000 % 1440)
}
