package view

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/linkscore/linkscore/pkg/types"
)

// View is a thread-safe local mirror of one session.
type View struct {
	mu    sync.RWMutex
	key   string
	query string
	items map[string]types.ScoredResult
	order []string
}

// New returns an empty View following key. An empty key adopts the key of
// the first backfill applied.
func New(key string) *View {
	return &View{key: key, items: make(map[string]types.ScoredResult)}
}

// Key returns the session key the view follows.
func (v *View) Key() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.key
}

// SetKey switches the view to key. Switching to a different key clears it.
func (v *View) SetKey(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if key == v.key {
		return
	}
	v.key = key
	v.query = ""
	v.resetLocked()
}

// Query returns the session query decoded for display.
func (v *View) Query() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return DecodeQuery(v.query)
}

// Len returns the number of results held.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.order)
}

// List returns the results passing f in first-seen order.
func (v *View) List(f types.Filter) []types.ScoredResult {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]types.ScoredResult, 0, len(v.order))
	for _, id := range v.order {
		if r := v.items[id]; f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Apply folds one stream message into the view and reports whether the view
// changed. Unknown message types are ignored.
func (v *View) Apply(msg any) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch m := msg.(type) {
	case types.BulkResults:
		if !v.followsLocked(m.SessionKey) {
			return false
		}
		v.key = m.SessionKey
		v.query = m.Query
		v.resetLocked()
		for _, r := range m.Items {
			v.putLocked(r)
		}
		return true

	case types.ResultDelta:
		if !v.followsLocked(m.SessionKey) {
			return false
		}
		return v.putLocked(m.Result())

	case types.ResultsCleared:
		if !v.followsLocked(m.SessionKey) || len(v.order) == 0 {
			return false
		}
		v.resetLocked()
		return true

	case types.QueryChanged:
		if !v.followsLocked(m.SessionKey) || m.Query == v.query {
			return false
		}
		v.query = m.Query
		return true
	}
	return false
}

// ApplyFrame decodes a raw JSON stream frame and applies it.
func (v *View) ApplyFrame(data []byte) (bool, error) {
	msg, err := Decode(data)
	if err != nil {
		return false, err
	}
	return v.Apply(msg), nil
}

// Decode turns a raw JSON stream frame into its typed message. Frames of an
// unknown type decode to nil without error.
func Decode(data []byte) (any, error) {
	typ, err := types.PeekType(data)
	if err != nil {
		return nil, err
	}

	var msg any
	switch typ {
	case types.TypeBulkResults:
		var m types.BulkResults
		err = json.Unmarshal(data, &m)
		msg = m
	case types.TypeResultDelta:
		var m types.ResultDelta
		err = json.Unmarshal(data, &m)
		msg = m
	case types.TypeResultsCleared:
		var m types.ResultsCleared
		err = json.Unmarshal(data, &m)
		msg = m
	case types.TypeQueryChanged:
		var m types.QueryChanged
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("view: decode %s: %w", typ, err)
	}
	return msg, nil
}

// DecodeQuery renders a raw search query for display: '+' becomes a space
// and percent escapes are decoded. A string that fails to decode is shown
// as-is. The result is NFC normalised so composed and decomposed input
// display identically.
func DecodeQuery(raw string) string {
	s, err := url.QueryUnescape(raw)
	if err != nil {
		s = raw
	}
	return norm.NFC.String(s)
}

// --- internal ---------------------------------------------------------------

func (v *View) followsLocked(key string) bool {
	return v.key == "" || key == v.key
}

// putLocked upserts r by id and reports whether anything changed.
func (v *View) putLocked(r types.ScoredResult) bool {
	prev, ok := v.items[r.ID]
	if ok && prev == r {
		return false
	}
	if !ok {
		v.order = append(v.order, r.ID)
	}
	v.items[r.ID] = r
	return true
}

func (v *View) resetLocked() {
	v.items = make(map[string]types.ScoredResult)
	v.order = nil
}
