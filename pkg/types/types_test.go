package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidCandidates(t *testing.T) {
	in := []Candidate{
		{ID: "a", Title: "A", URL: "https://a.example"},
		{ID: "", Title: "no id", URL: "https://b.example"},
		{ID: "c", Title: "no url"},
		{ID: "d", URL: "https://d.example"},
	}

	got, dropped := ValidCandidates(in)

	assert.Equal(t, 2, dropped)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "d", got[1].ID)
}

func TestValidCandidates_Empty(t *testing.T) {
	got, dropped := ValidCandidates(nil)
	assert.Empty(t, got)
	assert.Zero(t, dropped)
}

func TestNormalizeScore(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"inside range", 85, 85},
		{"upper bound", 100, 100},
		{"above range clamps", 140, 100},
		{"negative", -3, Unavailable},
		{"sentinel stays", -1, Unavailable},
		{"nan", math.NaN(), Unavailable},
		{"inf", math.Inf(1), Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeScore(tt.in))
		})
	}
}

func TestBandOf(t *testing.T) {
	assert.Equal(t, BandUnavailable, BandOf(-1))
	assert.Equal(t, BandLow, BandOf(0))
	assert.Equal(t, BandLow, BandOf(39.9))
	assert.Equal(t, BandMid, BandOf(40))
	assert.Equal(t, BandMid, BandOf(59.9))
	assert.Equal(t, BandHigh, BandOf(60))
	assert.Equal(t, BandHigh, BandOf(100))
}

func TestFilter_Apply(t *testing.T) {
	results := []ScoredResult{
		{ID: "low", Score: 12},
		{ID: "mid", Score: 45},
		{ID: "high", Score: 90},
		{ID: "x", Score: Unavailable},
	}

	assert.Len(t, FilterAll.Apply(results), 4)

	high := FilterHigh.Apply(results)
	require.Len(t, high, 1)
	assert.Equal(t, "high", high[0].ID)

	low := FilterLow.Apply(results)
	require.Len(t, low, 1)
	assert.Equal(t, "low", low[0].ID, "unavailable results never match a banded filter")
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	f, err = ParseFilter("mid")
	require.NoError(t, err)
	assert.Equal(t, FilterMid, f)

	_, err = ParseFilter("medium")
	assert.Error(t, err)
}

func TestPeekType(t *testing.T) {
	typ, err := PeekType([]byte(`{"type":"report","candidates":[]}`))
	require.NoError(t, err)
	assert.Equal(t, TypeReport, typ)

	_, err = PeekType([]byte(`{"candidates":[]}`))
	assert.Error(t, err)

	_, err = PeekType([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewBulkResults_EncodesEmptyItemsAsArray(t *testing.T) {
	data, err := json.Marshal(NewBulkResults("tab-1", "q", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"bulk-results","sessionKey":"tab-1","query":"q","items":[]}`, string(data))
}

func TestResultDelta_RoundTripsResult(t *testing.T) {
	r := ScoredResult{ID: "a", Title: "X", URL: "https://x", Score: 85, Reason: "looks synthetic"}
	d := NewResultDelta("tab-1", r)

	assert.Equal(t, TypeResultDelta, d.Type)
	assert.Equal(t, "tab-1", d.SessionKey)
	assert.Equal(t, r, d.Result())
}
