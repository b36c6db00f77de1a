package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/linkscore/linkscore/pkg/types"
)

// Default retention values used when Options leaves them zero.
const (
	DefaultMaxSessions      = 1000
	DefaultRetainAfterClose = 5 * time.Minute
)

// Options bounds the store.
type Options struct {
	// MaxSessions caps the number of live session keys.
	MaxSessions int

	// RetainAfterClose is how long a detached session survives before Evict
	// removes it.
	RetainAfterClose time.Duration
}

// Snapshot is a read-only copy of one session.
type Snapshot struct {
	Key        string
	Query      string
	Generation uint64
	Results    []types.ScoredResult
}

// Info summarises a session for listings.
type Info struct {
	Key       string    `json:"session_key"`
	Query     string    `json:"query"`
	Results   int       `json:"result_count"`
	Attached  bool      `json:"attached"`
	TouchedAt time.Time `json:"touched_at"`
}

// entry is the live, store-owned session record.
type entry struct {
	query      string
	generation uint64
	results    map[string]types.ScoredResult
	order      []string // ids in first-seen order
	attached   bool
	touchedAt  time.Time
	detachedAt time.Time
}

// Store is a thread-safe registry of sessions keyed by session key.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	lastGen  uint64
	max      int
	retain   time.Duration
	now      func() time.Time // injectable for deterministic tests
}

// New creates an empty Store.
func New(opts Options) *Store {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.RetainAfterClose <= 0 {
		opts.RetainAfterClose = DefaultRetainAfterClose
	}
	return &Store{
		sessions: make(map[string]*entry),
		max:      opts.MaxSessions,
		retain:   opts.RetainAfterClose,
		now:      time.Now,
	}
}

// Ensure returns the session for key, creating an empty one if needed.
func (s *Store) Ensure(key string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(key).snapshot(key)
}

// ResetQuery creates or clears the session for key and sets its query. All
// previous results are discarded. It returns the session's new generation.
func (s *Store) ResetQuery(key, query string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[key]
	if !ok {
		e = s.createLocked(key)
	} else {
		e.generation = s.nextGenLocked()
		e.results = make(map[string]types.ScoredResult)
		e.order = nil
	}
	e.query = query
	e.touchedAt = s.now()
	return e.generation
}

// Upsert inserts or overwrites r by id in the session for key, creating the
// session if needed, and returns the session's full result list.
func (s *Store) Upsert(key string, r types.ScoredResult) []types.ScoredResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.ensureLocked(key)
	e.put(r, s.now())
	return e.list()
}

// UpsertIf behaves like Upsert but only writes when the session for key
// exists and its generation equals gen. The boolean reports whether the
// write happened.
func (s *Store) UpsertIf(key string, gen uint64, r types.ScoredResult) ([]types.ScoredResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[key]
	if !ok || e.generation != gen {
		return nil, false
	}
	e.put(r, s.now())
	return e.list(), true
}

// Snapshot returns a copy of the session for key and whether it exists.
func (s *Store) Snapshot(key string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[key]
	if !ok {
		return Snapshot{Key: key, Results: []types.ScoredResult{}}, false
	}
	return e.snapshot(key), true
}

// Forget removes the session for key entirely. It reports whether a session
// was removed.
func (s *Store) Forget(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; !ok {
		return false
	}
	delete(s.sessions, key)
	return true
}

// Generation returns the current generation of the session for key.
func (s *Store) Generation(key string) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[key]
	if !ok {
		return 0, false
	}
	return e.generation, true
}

// Attach ensures a session exists for key and marks it as having a live
// observer channel.
func (s *Store) Attach(key string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.ensureLocked(key)
	e.attached = true
	e.detachedAt = time.Time{}
	return e.snapshot(key)
}

// Detach marks the session for key as having no live observer channel,
// starting its retention window.
func (s *Store) Detach(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[key]
	if !ok {
		return
	}
	now := s.now()
	e.attached = false
	e.detachedAt = now
	e.touchedAt = now
}

// Evict removes detached sessions whose retention window has elapsed at now.
// It returns the number of sessions removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.retain)
	removed := 0
	for key, e := range s.sessions {
		if !e.attached && !e.detachedAt.IsZero() && !e.detachedAt.After(cutoff) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// Sweep runs Evict against the store clock and logs what it removed.
func (s *Store) Sweep() int {
	n := s.Evict(s.now())
	if n > 0 {
		slog.Debug("session: evicted detached sessions", "count", n)
	}
	return n
}

// List returns a summary of every session.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Info, 0, len(s.sessions))
	for key, e := range s.sessions {
		out = append(out, Info{
			Key:       key,
			Query:     e.query,
			Results:   len(e.results),
			Attached:  e.attached,
			TouchedAt: e.touchedAt,
		})
	}
	return out
}

// Count returns the number of sessions currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// --- internal ---------------------------------------------------------------

func (s *Store) ensureLocked(key string) *entry {
	if e, ok := s.sessions[key]; ok {
		e.touchedAt = s.now()
		return e
	}
	return s.createLocked(key)
}

func (s *Store) createLocked(key string) *entry {
	for len(s.sessions) >= s.max {
		s.evictOneLocked()
	}
	e := &entry{
		generation: s.nextGenLocked(),
		results:    make(map[string]types.ScoredResult),
		touchedAt:  s.now(),
	}
	s.sessions[key] = e
	return e
}

func (s *Store) nextGenLocked() uint64 {
	s.lastGen++
	return s.lastGen
}

// evictOneLocked drops the least recently touched session, preferring
// detached ones over sessions with a live channel.
func (s *Store) evictOneLocked() {
	var victim string
	var victimEntry *entry
	for key, e := range s.sessions {
		if victimEntry == nil || older(e, victimEntry) {
			victim, victimEntry = key, e
		}
	}
	if victimEntry == nil {
		return
	}
	delete(s.sessions, victim)
	slog.Warn("session: capacity reached, evicted session",
		"session", victim,
		"attached", victimEntry.attached,
		"max_sessions", s.max,
	)
}

// older orders detached sessions before attached ones, then by touch time.
func older(a, b *entry) bool {
	if a.attached != b.attached {
		return !a.attached
	}
	return a.touchedAt.Before(b.touchedAt)
}

func (e *entry) put(r types.ScoredResult, now time.Time) {
	r.Score = types.NormalizeScore(r.Score)
	if _, ok := e.results[r.ID]; !ok {
		e.order = append(e.order, r.ID)
	}
	e.results[r.ID] = r
	e.touchedAt = now
}

func (e *entry) list() []types.ScoredResult {
	out := make([]types.ScoredResult, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.results[id])
	}
	return out
}

func (e *entry) snapshot(key string) Snapshot {
	return Snapshot{
		Key:        key,
		Query:      e.query,
		Generation: e.generation,
		Results:    e.list(),
	}
}
