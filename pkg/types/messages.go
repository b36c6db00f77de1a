package types

import (
	"encoding/json"
	"fmt"
)

// Message types carried on observer channels and viewer streams.
const (
	// Observer -> hub.
	TypeReport       = "report"
	TypeQueryChanged = "query-changed"

	// Viewer -> hub.
	TypeViewerReady = "viewer-ready"

	// Hub -> observer.
	TypeChannelOpen = "channel-open"
	TypeTagUpdate   = "tag-update"

	// Hub -> viewer. TypeQueryChanged is also broadcast, carrying SessionKey.
	TypeBulkResults    = "bulk-results"
	TypeResultDelta    = "result-delta"
	TypeResultsCleared = "results-cleared"
)

// Report is a batch of candidates detected by a page observer.
type Report struct {
	Type       string      `json:"type"`
	Candidates []Candidate `json:"candidates"`
}

// QueryChanged announces a new search query. Observers send it without a
// session key; the hub broadcasts it to viewers with SessionKey set.
type QueryChanged struct {
	Type       string `json:"type"`
	SessionKey string `json:"sessionKey,omitempty"`
	Query      string `json:"query"`
}

// ViewerReady asks the hub for a backfill of SessionKey.
type ViewerReady struct {
	Type       string `json:"type"`
	SessionKey string `json:"sessionKey"`
}

// ChannelOpen tells an observer which session key its channel is bound to.
type ChannelOpen struct {
	Type       string `json:"type"`
	SessionKey string `json:"sessionKey"`
}

// TagUpdate carries one candidate's score back to the observer that reported it.
type TagUpdate struct {
	Type  string  `json:"type"`
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// BulkResults is the full current state of a session, used for backfill.
type BulkResults struct {
	Type       string         `json:"type"`
	SessionKey string         `json:"sessionKey"`
	Query      string         `json:"query"`
	Items      []ScoredResult `json:"items"`
}

// ResultDelta is a single-result update broadcast to viewers.
type ResultDelta struct {
	Type       string  `json:"type"`
	SessionKey string  `json:"sessionKey"`
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason"`
}

// ResultsCleared tells viewers that every result for SessionKey was discarded.
type ResultsCleared struct {
	Type       string `json:"type"`
	SessionKey string `json:"sessionKey"`
}

// NewTagUpdate builds the observer-facing update for r.
func NewTagUpdate(r ScoredResult) TagUpdate {
	return TagUpdate{Type: TypeTagUpdate, ID: r.ID, Score: r.Score}
}

// NewResultDelta builds the viewer-facing delta for r in session key.
func NewResultDelta(key string, r ScoredResult) ResultDelta {
	return ResultDelta{
		Type:       TypeResultDelta,
		SessionKey: key,
		ID:         r.ID,
		Title:      r.Title,
		URL:        r.URL,
		Score:      r.Score,
		Reason:     r.Reason,
	}
}

// Result returns the ScoredResult carried by the delta.
func (d ResultDelta) Result() ScoredResult {
	return ScoredResult{ID: d.ID, Title: d.Title, URL: d.URL, Score: d.Score, Reason: d.Reason}
}

// NewBulkResults builds a backfill message. Items is never nil so it encodes
// as [] rather than null.
func NewBulkResults(key, query string, items []ScoredResult) BulkResults {
	if items == nil {
		items = []ScoredResult{}
	}
	return BulkResults{Type: TypeBulkResults, SessionKey: key, Query: query, Items: items}
}

// PeekType decodes only the "type" field of a message.
func PeekType(data []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("types: decode envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("types: message has no type")
	}
	return env.Type, nil
}
