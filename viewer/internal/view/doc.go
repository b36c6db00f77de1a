// Package view holds a viewer's local copy of one session.
//
// A View is fed the hub's viewer stream messages (bulk-results,
// result-delta, results-cleared, query-changed). Applying a message is
// idempotent: the same delta twice, or a delta already contained in a
// backfill, leaves the view unchanged. Messages for a session key other than
// the view's current key are ignored.
//
// Results keep the order in which their ids were first seen. List narrows
// them with a types.Filter and Render prints them for a terminal.
package view
