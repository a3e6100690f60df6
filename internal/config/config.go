// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, scheduler cadence,
// rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-chat-import-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SchedulerConfig defines the cadence knobs of the tick driver. The values
// mirror the contract with the external platform: one outbound call per
// workspace per 10 seconds, a settle period before status polling, and a
// bounded amount of work per tick.
type SchedulerConfig struct {
	// MinInterval is the minimum spacing between outbound calls for one
	// workspace. A workspace whose last call is younger than this is skipped.
	MinInterval time.Duration // WORKSPACE_MIN_INTERVAL
	// MaxItemsPerTick caps the addition budget of a single tick.
	MaxItemsPerTick int // MAX_ITEMS_PER_TICK
	// CheckDelay is how long to wait after the last addition before the
	// checking phase may start polling the platform.
	CheckDelay time.Duration // CHECK_DELAY
	// CheckBatchSize is the number of items polled in parallel per tick.
	CheckBatchSize int // CHECK_BATCH_SIZE
	// InterItemDelay is a small pause between consecutive additions within
	// one tick to preserve spacing on the wire.
	InterItemDelay time.Duration // INTER_ITEM_DELAY
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath        string // SQLite path
	CronSecret    string // shared secret for tick/cleanup endpoints ("" disables the check)
	AdminSecret   string // shared secret for the admin API
	MockChatGuru  bool   // use the deterministic fake instead of the real platform
	DefaultServer string // fallback external server identifier
	UsageLimit    int64  // per-account cap on successful additions

	// Scheduler
	Scheduler SchedulerConfig

	// Retention
	RetentionDays int // age in days after which completed uploads and logs are purged

	// Rate limiting (HTTP edge)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:        getenv("DB_PATH", "app.db"),
		CronSecret:    getenv("CRON_SECRET", ""),
		AdminSecret:   getenv("ADMIN_SECRET", ""),
		MockChatGuru:  getbool("MOCK_CHATGURU", false),
		DefaultServer: getenv("CHATGURU_DEFAULT_SERVER", "s10"),
		UsageLimit:    int64(getint("USAGE_LIMIT", 10000)),

		// Scheduler
		Scheduler: SchedulerConfig{
			MinInterval:     getdur("WORKSPACE_MIN_INTERVAL", 10*time.Second),
			MaxItemsPerTick: getint("MAX_ITEMS_PER_TICK", 6),
			CheckDelay:      getdur("CHECK_DELAY", 10*time.Minute),
			CheckBatchSize:  getint("CHECK_BATCH_SIZE", 50),
			InterItemDelay:  getdur("INTER_ITEM_DELAY", 100*time.Millisecond),
		},

		// Retention
		RetentionDays: getint("RETENTION_DAYS", 45),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-chat-import-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.DefaultServer) == "" {
		return cfg, errors.New("CHATGURU_DEFAULT_SERVER must not be empty")
	}
	if cfg.UsageLimit < 0 {
		return cfg, errors.New("USAGE_LIMIT must be >= 0")
	}
	if cfg.Scheduler.MinInterval <= 0 {
		return cfg, errors.New("WORKSPACE_MIN_INTERVAL must be > 0")
	}
	if cfg.Scheduler.MaxItemsPerTick < 1 {
		return cfg, errors.New("MAX_ITEMS_PER_TICK must be >= 1")
	}
	if cfg.Scheduler.CheckDelay < 0 {
		return cfg, errors.New("CHECK_DELAY must be >= 0")
	}
	if cfg.Scheduler.CheckBatchSize < 1 {
		return cfg, errors.New("CHECK_BATCH_SIZE must be >= 1")
	}
	if cfg.Scheduler.InterItemDelay < 0 {
		return cfg, errors.New("INTER_ITEM_DELAY must be >= 0")
	}
	if cfg.RetentionDays < 1 {
		return cfg, errors.New("RETENTION_DAYS must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
