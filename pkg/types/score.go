package types

import (
	"fmt"
	"math"
)

// Unavailable is the score recorded when scoring was attempted and failed,
// or the backend returned something that is not a usable percentage.
const Unavailable = -1.0

// NormalizeScore maps a raw backend value onto the stored score domain.
// NaN, infinities and negative values become Unavailable; values above 100
// are clamped to 100.
func NormalizeScore(v float64) float64 {
	switch {
	case math.IsNaN(v), math.IsInf(v, 0), v < 0:
		return Unavailable
	case v > 100:
		return 100
	default:
		return v
	}
}

// Band is the coarse bucket a score falls into.
type Band string

const (
	BandUnavailable Band = "unavailable"
	BandLow         Band = "low"
	BandMid         Band = "mid"
	BandHigh        Band = "high"
)

// BandOf classifies a stored score: low below 40, mid below 60, high otherwise.
func BandOf(score float64) Band {
	switch {
	case score < 0 || math.IsNaN(score):
		return BandUnavailable
	case score < 40:
		return BandLow
	case score < 60:
		return BandMid
	default:
		return BandHigh
	}
}

// Filter is a viewer-selected predicate over scored results.
type Filter string

const (
	FilterAll  Filter = "all"
	FilterLow  Filter = "low"
	FilterMid  Filter = "mid"
	FilterHigh Filter = "high"
)

// ParseFilter accepts "", "all", "low", "mid" and "high". The empty string
// means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterLow, FilterMid, FilterHigh:
		return Filter(s), nil
	default:
		return "", fmt.Errorf("unknown filter %q: want all|low|mid|high", s)
	}
}

// Match reports whether r passes the filter. FilterAll also matches
// unavailable results; the banded filters never do.
func (f Filter) Match(r ScoredResult) bool {
	if f == FilterAll || f == "" {
		return true
	}
	return string(BandOf(r.Score)) == string(f)
}

// Apply returns the results that pass the filter, preserving order.
func (f Filter) Apply(in []ScoredResult) []ScoredResult {
	out := make([]ScoredResult, 0, len(in))
	for _, r := range in {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
