package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

// Duration is a time.Duration that decodes from strings such as "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ServerConfig is the studyd daemon configuration (studyd.toml).
type ServerConfig struct {
	Server    ListenConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Store     StoreConfig     `toml:"store"`
	Sampler   SamplerConfig   `toml:"sampler"`
	Study     StudyConfig     `toml:"study"`
	Sink      SinkConfig      `toml:"sink"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ListenConfig controls the network listeners.
type ListenConfig struct {
	HTTPAddr   string `toml:"http_addr"`
	GRPCAddr   string `toml:"grpc_addr"`
	AuthSecret string `toml:"auth_secret"` // HS256 secret; empty disables bearer auth
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// StoreConfig selects and configures the persistent store backend.
type StoreConfig struct {
	Backend string   `toml:"backend"` // memory, sqlite, postgres
	Path    string   `toml:"path"`    // sqlite database file
	DSN     string   `toml:"dsn"`     // postgres connection string
	Timeout Duration `toml:"timeout"` // bound on every store call
}

// SamplerConfig selects the search algorithm.
type SamplerConfig struct {
	Name          string `toml:"name"` // random or tpe
	Seed          int64  `toml:"seed"` // 0 = time-based
	StartupTrials int    `toml:"startup_trials"`
	Candidates    int    `toml:"candidates"`
}

// StudyConfig holds study-level defaults.
type StudyConfig struct {
	SearchSpace string `toml:"search_space"` // default search-space YAML file
	Direction   string `toml:"direction"`
}

// SinkConfig controls the per-study trial log files.
type SinkConfig struct {
	Dir           string `toml:"dir"`            // empty disables the log files
	WebhookURL    string `toml:"webhook_url"`    // empty disables callbacks; {study} is substituted
	WebhookSecret string `toml:"webhook_secret"` // sent as X-Studyd-Callback-Secret
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Endpoint    string `toml:"endpoint"` // empty disables export
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: ListenConfig{
			HTTPAddr: ":8000",
			GRPCAddr: ":50051",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "studyd.db",
			Timeout: Duration{5 * time.Second},
		},
		Sampler: SamplerConfig{
			Name:          "tpe",
			StartupTrials: 10,
			Candidates:    24,
		},
		Study: StudyConfig{
			SearchSpace: "search_space.yaml",
			Direction:   "minimize",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "studyd",
		},
	}
}

func (c *ServerConfig) decodeTOML(data []byte) error {
	meta, err := toml.Decode(string(data), c)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s (possible typos?)", strings.Join(keys, ", "))
	}
	return nil
}

// applyEnv overrides fields from STUDYD_* variables.
func (c *ServerConfig) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("STUDYD_HTTP_ADDR", &c.Server.HTTPAddr)
	str("STUDYD_GRPC_ADDR", &c.Server.GRPCAddr)
	str("STUDYD_AUTH_SECRET", &c.Server.AuthSecret)
	str("STUDYD_LOG_LEVEL", &c.Log.Level)
	str("STUDYD_LOG_FORMAT", &c.Log.Format)
	str("STUDYD_STORE_BACKEND", &c.Store.Backend)
	str("STUDYD_STORE_PATH", &c.Store.Path)
	str("STUDYD_STORE_DSN", &c.Store.DSN)
	str("STUDYD_SAMPLER", &c.Sampler.Name)
	str("STUDYD_SEARCH_SPACE", &c.Study.SearchSpace)
	str("STUDYD_DIRECTION", &c.Study.Direction)
	str("STUDYD_SINK_DIR", &c.Sink.Dir)
	str("STUDYD_SINK_WEBHOOK_URL", &c.Sink.WebhookURL)
	str("STUDYD_SINK_WEBHOOK_SECRET", &c.Sink.WebhookSecret)
	str("STUDYD_OTEL_ENDPOINT", &c.Telemetry.Endpoint)

	if v, ok := lookup("STUDYD_STORE_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Store.Timeout.Duration = d
		}
	}
	if v, ok := lookup("STUDYD_SAMPLER_SEED"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Sampler.Seed = n
		}
	}
}

// SamplerKind resolves a sampler name to "random" or "tpe". Matching is
// case-insensitive and an empty name selects tpe.
func SamplerKind(name string) (string, error) {
	switch k := strings.ToLower(strings.TrimSpace(name)); k {
	case "random", "tpe":
		return k, nil
	case "":
		return "tpe", nil
	default:
		return "", fmt.Errorf("unknown sampler %q (must be random or tpe)", name)
	}
}

// Validate checks the configuration and returns every issue found joined together.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		errs = append(errs, fmt.Errorf("server: at least one of http_addr or grpc_addr must be set"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level: invalid %q (must be debug, info, warn, or error)", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format: invalid %q (must be text or json)", c.Log.Format))
	}

	switch c.Store.Backend {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the sqlite backend"))
		}
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unsupported %q (must be memory, sqlite, or postgres)", c.Store.Backend))
	}
	if c.Store.Timeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("store.timeout must be positive"))
	}

	if _, err := SamplerKind(c.Sampler.Name); err != nil {
		errs = append(errs, fmt.Errorf("sampler.name: %w", err))
	}
	if c.Sampler.StartupTrials < 0 {
		errs = append(errs, fmt.Errorf("sampler.startup_trials must be >= 0"))
	}
	if c.Sampler.Candidates < 0 {
		errs = append(errs, fmt.Errorf("sampler.candidates must be >= 0"))
	}

	if _, err := models.ParseDirection(c.Study.Direction); err != nil {
		errs = append(errs, fmt.Errorf("study.direction: %w", err))
	}

	if u := c.Sink.WebhookURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		errs = append(errs, fmt.Errorf("sink.webhook_url: must be an http or https URL"))
	}

	return errors.Join(errs...)
}
