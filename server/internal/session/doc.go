// Package session holds the hub's per-page scoring state: one Session per
// session key, each carrying the last known search query and the latest
// ScoredResult per candidate id.
//
// Store is the only owner of that state. Callers receive copies (Snapshot,
// result slices) and never a reference into a live session. Every method
// runs to completion under the store lock, so no caller observes a
// half-written session.
//
// Retention: a session whose observer channel closed is marked detached and
// kept for RetainAfterClose so a late viewer can still backfill; Evict drops
// detached sessions past that window. MaxSessions bounds the number of keys:
// creating a key beyond the cap evicts the least recently touched session,
// preferring detached ones.
//
// Generations: every session creation and every ResetQuery takes a fresh
// value from a store-wide counter. UpsertIf only writes when the caller's
// generation is still current, which lets scoring work dispatched for an old
// query or an already forgotten session land nowhere.
package session
