// Package scoring is the hub's client for the external classifier.
//
// Client.Score performs exactly one POST of {"url": ...} to the configured
// endpoint and expects {"score": <number>, "reason": <string>} back. A reply
// without a numeric "score" field is a failure. There is no retry.
//
// Every failure (empty url, transport error, non-2xx status, a body without
// a numeric score) wraps ErrUnavailable. Mapping a failure onto the -1
// sentinel is the caller's job.
package scoring
