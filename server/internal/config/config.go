package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort         = 50051
	DefaultHTTPPort         = 8080
	DefaultScoringTimeout   = 30 * time.Second
	DefaultMaxSessions      = 1000
	DefaultRetainAfterClose = 5 * time.Minute
	DefaultSweepSchedule    = "@every 30s"
	DefaultSendBuffer       = 64
	DefaultLogLevel         = "info"
)

// Config holds the hub configuration parsed from the `server:` section of
// config.yaml. Other top-level keys are ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all hub settings.
type ServerConfig struct {
	// HTTPPort serves REST, both WebSocket endpoints and /metrics (default 8080).
	HTTPPort int `yaml:"http_port" validate:"min=1,max=65535"`

	// GRPCPort serves the gRPC health service (default 50051). 0 disables it.
	GRPCPort int `yaml:"grpc_port" validate:"min=0,max=65535"`

	// Auth configures how the hub authenticates observers, viewers and scrapers.
	Auth AuthConfig `yaml:"auth"`

	// Scoring configures the backend scoring endpoint.
	Scoring ScoringConfig `yaml:"scoring"`

	// Sessions controls session retention and dispatch policy.
	Sessions SessionsConfig `yaml:"sessions"`

	// Stream tunes per-connection outbound queues.
	Stream StreamConfig `yaml:"stream"`

	// Log controls the process log level. It is the only section applied on
	// hot reload.
	Log LogConfig `yaml:"log"`
}

// AuthConfig controls client authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header (and gRPC metadata key) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// ScoringConfig points the hub at the backend that scores URLs.
type ScoringConfig struct {
	// Endpoint is the full URL that receives POST {"url": ...}. Required.
	Endpoint string `yaml:"endpoint" validate:"required,url"`

	// Timeout bounds a single scoring call (default 30s).
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// InsecureSkipVerify disables TLS verification towards the backend.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// SessionsConfig controls how long sessions live and how reports are dispatched.
type SessionsConfig struct {
	// MaxSessions bounds the number of live session keys (default 1000).
	MaxSessions int `yaml:"max_sessions" validate:"gte=0"`

	// RetainAfterClose keeps a session whose observer disconnected available
	// for backfill for this long (default 5m).
	RetainAfterClose time.Duration `yaml:"retain_after_close" validate:"gte=0"`

	// ForgetOnClose drops a session as soon as its observer disconnects.
	ForgetOnClose bool `yaml:"forget_on_close"`

	// SkipKnown answers re-reported candidates from the session cache instead
	// of scoring them again.
	SkipKnown bool `yaml:"skip_known"`

	// SweepSchedule is a cron expression for the retention sweep (default "@every 30s").
	SweepSchedule string `yaml:"sweep_schedule"`
}

// StreamConfig tunes per-connection outbound queues.
type StreamConfig struct {
	// SendBuffer is the outbound queue depth for each observer and viewer
	// connection (default 64).
	SendBuffer int `yaml:"send_buffer" validate:"gte=0"`
}

// LogConfig controls process logging.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel returns Level as a slog.Level. Unknown values map to Info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

var structValidator = newValidator()

// newValidator reports fields by their yaml names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Load reads and parses the config file at path, returning the hub configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			Scoring: ScoringConfig{
				Timeout: DefaultScoringTimeout,
			},
			Sessions: SessionsConfig{
				MaxSessions:      DefaultMaxSessions,
				RetainAfterClose: DefaultRetainAfterClose,
				SweepSchedule:    DefaultSweepSchedule,
			},
			Stream: StreamConfig{
				SendBuffer: DefaultSendBuffer,
			},
			Log: LogConfig{
				Level: DefaultLogLevel,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s fails %q (got %v)", yamlPath(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return err
	}

	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Auth.Mode == "apikey" && cfg.Server.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required when mode is apikey")
	}

	if _, err := cron.ParseStandard(cfg.Server.Sessions.SweepSchedule); err != nil {
		return fmt.Errorf("server.sessions.sweep_schedule %q: %w", cfg.Server.Sessions.SweepSchedule, err)
	}

	switch strings.ToLower(cfg.Server.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", cfg.Server.Log.Level)
	}
	return nil
}

// yamlPath turns a validator namespace such as "Config.server.scoring.endpoint"
// into the YAML path "server.scoring.endpoint".
func yamlPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
