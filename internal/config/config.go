// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, payment gateway credentials, SMTP, admin auth, the
// reminder schedule, and observability settings.
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// PaymentConfig holds the payment gateway credentials. KeySecret doubles as
// the HMAC key for payment signature verification.
type PaymentConfig struct {
	KeyID     string // RAZORPAY_KEY_ID (returned to the client with each order)
	KeySecret string // RAZORPAY_KEY_SECRET
	Currency  string // PAYMENT_CURRENCY
}

// SMTPConfig configures outbound mail. An empty Host selects the log-only
// mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SchedulerConfig configures the background jobs.
type SchedulerConfig struct {
	Enabled        bool   // SCHEDULER_ENABLED
	ReminderSpec   string // REMINDER_CRON (UTC, 5-field)
	PurgeSpec      string // NOTIFICATION_PURGE_CRON
	RedisURL       string // REDIS_URL; empty disables the cross-instance lock
	LockKeyPrefix  string // REMINDER_LOCK_PREFIX
	SweepTimeout   time.Duration
	LockExpiration time.Duration
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
	MaxBodyBytes      int64         // request body cap (resume uploads included)
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath           string        // SQLite path
	ResumeDir        string        // local directory for uploaded resumes
	OrganizationName string        // printed on generated documents
	DuplicateGuard   string        // check|claim
	StrictWorkflow   bool          // enforce the transition graph instead of admin override
	NotificationTTL  time.Duration // notification retention

	// Admin auth
	AdminJWTSecret string

	// Integrations
	Payment   PaymentConfig
	SMTP      SMTPConfig
	Scheduler SchedulerConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

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
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 6<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBPath:           getenv("DB_PATH", "internships.db"),
		ResumeDir:        getenv("RESUME_DIR", "uploads/resumes"),
		OrganizationName: getenv("ORGANIZATION_NAME", "Internship Program Office"),
		DuplicateGuard:   strings.ToLower(getenv("DUPLICATE_GUARD", "check")),
		StrictWorkflow:   getbool("STRICT_WORKFLOW", false),
		NotificationTTL:  getdur("NOTIFICATION_TTL", 30*24*time.Hour),

		AdminJWTSecret: getenv("ADMIN_JWT_SECRET", ""),

		Payment: PaymentConfig{
			KeyID:     getenv("RAZORPAY_KEY_ID", ""),
			KeySecret: getenv("RAZORPAY_KEY_SECRET", ""),
			Currency:  strings.ToUpper(getenv("PAYMENT_CURRENCY", "INR")),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getint("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@example.com"),
		},
		Scheduler: SchedulerConfig{
			Enabled:        getbool("SCHEDULER_ENABLED", true),
			ReminderSpec:   getenv("REMINDER_CRON", "0 9 * * *"),
			PurgeSpec:      getenv("NOTIFICATION_PURGE_CRON", "@hourly"),
			RedisURL:       getenv("REDIS_URL", ""),
			LockKeyPrefix:  getenv("REMINDER_LOCK_PREFIX", "internships:reminders:"),
			SweepTimeout:   getdur("REMINDER_SWEEP_TIMEOUT", 4*time.Minute),
			LockExpiration: getdur("REMINDER_LOCK_TTL", 26*time.Hour),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "internship-backend"),
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
	if cfg.MaxHeaderBytes <= 0 || cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES and MAX_BODY_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	switch cfg.DuplicateGuard {
	case "check", "claim":
	default:
		return cfg, errors.New("DUPLICATE_GUARD must be one of: check, claim")
	}
	if cfg.NotificationTTL <= 0 {
		return cfg, errors.New("NOTIFICATION_TTL must be > 0")
	}
	if cfg.SMTP.Host != "" && (cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535) {
		return cfg, errors.New("SMTP_PORT must be a valid port")
	}
	if cfg.Scheduler.Enabled && strings.TrimSpace(cfg.Scheduler.ReminderSpec) == "" {
		return cfg, errors.New("REMINDER_CRON must not be empty when the scheduler is enabled")
	}
	if cfg.Scheduler.SweepTimeout <= 0 || cfg.Scheduler.LockExpiration <= 0 {
		return cfg, errors.New("REMINDER_SWEEP_TIMEOUT and REMINDER_LOCK_TTL must be > 0")
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
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// PaymentsEnabled reports whether gateway credentials are configured.
func (c Config) PaymentsEnabled() bool {
	return c.Payment.KeyID != "" && c.Payment.KeySecret != ""
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
