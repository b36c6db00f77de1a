// Package types defines the values exchanged between the linkscore hub, page
// observers and viewers: candidates, scored results, the JSON message
// envelopes carried over observer channels and viewer streams, and the score
// bands viewers filter on.
//
// Every message is a flat JSON object discriminated by its "type" field.
// PeekType reads only that field so transports can dispatch before decoding
// the full payload.
package types
