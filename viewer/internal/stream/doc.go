// Package stream keeps a view.View in sync with a hub's viewer stream.
//
// Client.Run dials <hub>/ws/viewer?session=<key>, sends viewer-ready on every
// (re)connect so the hub replies with a fresh bulk-results backfill, and
// applies each inbound frame to the View. When the connection drops it
// reconnects with truncated exponential backoff (1s to 60s, ±25% jitter).
package stream
