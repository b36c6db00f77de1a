// Package ws is the hub's WebSocket transport.
//
// Two endpoints are served by one Hub:
//
//	/ws/observer?session=<key>   page observer channel
//	/ws/viewer?session=<key>     viewer result stream
//
// Observer channel: on connect the hub sends {"type":"channel-open","sessionKey":...}
// (a key is generated when the query parameter is absent), then accepts
// "report" and "query-changed" frames and answers each scored candidate with
// a "tag-update". Closing the socket closes the channel.
//
// Viewer stream: on connect the viewer is subscribed to the key and the first
// frame is a "bulk-results" backfill, followed by "result-delta",
// "results-cleared" and "query-changed" frames in commit order. A
// {"type":"viewer-ready","sessionKey":...} frame switches to that key (if
// different) and requests a fresh backfill.
//
// Every frame is a JSON text message. Unknown or malformed inbound frames are
// ignored. Clients that fall behind their send buffer are disconnected.
//
// The upgrader accepts all origins. Apply origin restrictions at the reverse
// proxy or through the API key middleware.
package ws
