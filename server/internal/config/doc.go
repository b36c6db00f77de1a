// Package config loads the hub configuration from the `server:` section of
// config.yaml.
//
// Sections:
//   - http_port / grpc_port: listeners (REST + WebSocket + /metrics, gRPC health)
//   - auth: "apikey" or "none"; the key is read from the env var named by key_env
//   - scoring: backend endpoint (required) and per-call timeout
//   - sessions: max_sessions, retain_after_close, forget_on_close, skip_known, sweep_schedule
//   - stream: per-connection send buffer
//   - log: level, the only setting Watch applies without a restart
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
