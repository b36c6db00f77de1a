// Package coordinator is the hub's central flow of control.
//
// It bridges page observer batch reports into concurrent scoring work and
// bridges session store mutations into two kinds of notification: a targeted
// tag-update on the reporting observer's channel, and a broadcast to every
// viewer subscribed to the session key.
//
// Ordering: every store mutation and the notifications it produces are issued
// under one lock, and each subscription is a single FIFO queue, so a viewer
// always sees changes in commit order ("results-cleared" before the new
// "query-changed" before any delta for the new query). Subscribing enqueues a
// "bulk-results" backfill in the same critical section, so there is no gap
// between the snapshot and the first streamed delta.
//
// Scoring tasks capture the session generation at dispatch. A result whose
// generation has been superseded (new query, or the session was forgotten and
// recreated) is discarded instead of landing under the wrong query.
//
// Delivery is best effort. Sink.Send and subscription queues never block; a
// subscription whose queue is full is closed and its viewer is expected to
// reconnect and backfill again.
package coordinator
