// Package auth guards hub access with a shared API key.
//
// A Policy is built from the configured mode, header name and key. When the
// mode is not "apikey" or no key is configured every request is allowed,
// which is the usual setup for a hub bound to localhost.
//
// Middleware wraps HTTP handlers (REST, both WebSocket endpoints, /metrics).
// Browsers cannot set headers on a WebSocket handshake, so the key is also
// accepted in the api_key query parameter. UnaryInterceptor and
// StreamInterceptor apply the same policy to the gRPC health service.
package auth
