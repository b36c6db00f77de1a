// Package api implements the hub's HTTP REST API.
//
// New(store, coord) returns an http.Handler that serves:
//
//	GET /api/v1/health                  session, observer and viewer counts plus scoring totals
//	GET /api/v1/sessions                every session: key, query, result count, attached flag
//	GET /api/v1/sessions/{key}?filter=  pull backfill ("bulk-results") for one session; 404 if unknown
//
// The filter parameter is one of all|low|mid|high (default all) and only
// narrows the returned items.
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
