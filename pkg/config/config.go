package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gazette/pkg/auth"
	"github.com/platinummonkey/gazette/pkg/identity"
)

// Mail delivery modes
const (
	MailModePreview = "preview"
	MailModeSMTP    = "smtp"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Session       SessionConfig       `yaml:"session"`
	Mail          MailConfig          `yaml:"mail"`
	Billing       BillingConfig       `yaml:"billing"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`

	// Catalog replaces the built-in subscription catalog when non-empty.
	// Only settable from the config file.
	Catalog []identity.SubscriptionType `yaml:"catalog"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s health checks)
	HealthPort string `yaml:"health_port"`

	// PublicURL prefixes links handed back to clients, such as mail previews
	PublicURL string `yaml:"public_url"`

	// AllowedOrigins enables CORS for the listed origins ("*" for any)
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL selects the
// in-memory identity store.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RedisConfig holds Redis settings. An empty URL keeps sessions and rate
// limits in process memory.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
	KeyPrefix  string `yaml:"key_prefix"`
}

// SessionConfig holds session lifetime and cookie settings
type SessionConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

// MailConfig selects and configures the outbound notifier
type MailConfig struct {
	Mode       string        `yaml:"mode"`
	SMTPHost   string        `yaml:"smtp_host"`
	SMTPPort   int           `yaml:"smtp_port"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	From       string        `yaml:"from"`
	FromName   string        `yaml:"from_name"`
	PreviewMax int           `yaml:"preview_max"`
	PreviewTTL time.Duration `yaml:"preview_ttl"`

	// SMTP delivery runs on a worker pool off the request path
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queue_size"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// BillingConfig holds catalog caching and tier gauge settings
type BillingConfig struct {
	CatalogCacheTTL time.Duration `yaml:"catalog_cache_ttl"`
	GaugeSchedule   string        `yaml:"gauge_schedule"`
}

// RateLimitConfig limits credential endpoints per client IP
type RateLimitConfig struct {
	LoginRequests int           `yaml:"login_requests"`
	LoginWindow   time.Duration `yaml:"login_window"`
	FailOpen      bool          `yaml:"fail_open"`
	// TrustedProxies are CIDR blocks or IPs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the remote address is used.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used before the file and environment
// are applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			PublicURL:       "http://localhost:8080",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "gazette",
		},
		Session: SessionConfig{
			TTL:          7 * 24 * time.Hour,
			CookieSecure: true,
		},
		Mail: MailConfig{
			Mode:        MailModePreview,
			SMTPPort:    587,
			From:        "billing@gazette.local",
			FromName:    "Gazette",
			PreviewMax:  100,
			PreviewTTL:  time.Hour,
			Workers:     2,
			QueueSize:   100,
			SendTimeout: 30 * time.Second,
		},
		Billing: BillingConfig{
			CatalogCacheTTL: 5 * time.Minute,
			GaugeSchedule:   "*/5 * * * *",
		},
		RateLimit: RateLimitConfig{
			LoginRequests: 10,
			LoginWindow:   time.Minute,
			FailOpen:      true,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "gazette",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by GAZETTE_CONFIG_FILE, and GAZETTE_* environment variables, in
// that order of precedence (environment wins).
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := FilePath(); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FilePath is the YAML file named by GAZETTE_CONFIG_FILE, or ""
func FilePath() string {
	return getEnv("GAZETTE_CONFIG_FILE", "")
}

// loadFile overlays the YAML document at path onto cfg. Keys absent from
// the file keep their current values.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = getEnv("GAZETTE_HOST", s.Host)
	s.Port = getEnv("GAZETTE_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("GAZETTE_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("GAZETTE_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("GAZETTE_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("GAZETTE_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("GAZETTE_HEALTH_PORT", s.HealthPort)
	s.PublicURL = getEnv("GAZETTE_PUBLIC_URL", s.PublicURL)
	s.AllowedOrigins = getEnvList("GAZETTE_ALLOWED_ORIGINS", s.AllowedOrigins)

	db := &cfg.Database
	db.URL = getEnv("GAZETTE_DATABASE_URL", db.URL)
	db.MaxOpenConns = getEnvInt("GAZETTE_DATABASE_MAX_OPEN_CONNS", db.MaxOpenConns)
	db.MaxIdleConns = getEnvInt("GAZETTE_DATABASE_MAX_IDLE_CONNS", db.MaxIdleConns)
	db.ConnMaxLifetime = getEnvDuration("GAZETTE_DATABASE_CONN_MAX_LIFETIME", db.ConnMaxLifetime)
	db.AutoMigrate = getEnvBool("GAZETTE_DATABASE_AUTO_MIGRATE", db.AutoMigrate)

	r := &cfg.Redis
	r.URL = getEnv("GAZETTE_REDIS_URL", r.URL)
	r.Password = getEnv("GAZETTE_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("GAZETTE_REDIS_DB", r.DB)
	r.PoolSize = getEnvInt("GAZETTE_REDIS_POOL_SIZE", r.PoolSize)
	r.MaxRetries = getEnvInt("GAZETTE_REDIS_MAX_RETRIES", r.MaxRetries)
	r.KeyPrefix = getEnv("GAZETTE_REDIS_KEY_PREFIX", r.KeyPrefix)

	cfg.Session.TTL = getEnvDuration("GAZETTE_SESSION_TTL", cfg.Session.TTL)
	cfg.Session.CookieSecure = getEnvBool("GAZETTE_SESSION_COOKIE_SECURE", cfg.Session.CookieSecure)

	m := &cfg.Mail
	m.Mode = strings.ToLower(getEnv("GAZETTE_MAIL_MODE", m.Mode))
	m.SMTPHost = getEnv("GAZETTE_SMTP_HOST", m.SMTPHost)
	m.SMTPPort = getEnvInt("GAZETTE_SMTP_PORT", m.SMTPPort)
	m.Username = getEnv("GAZETTE_SMTP_USERNAME", m.Username)
	m.Password = getEnv("GAZETTE_SMTP_PASSWORD", m.Password)
	m.From = getEnv("GAZETTE_MAIL_FROM", m.From)
	m.FromName = getEnv("GAZETTE_MAIL_FROM_NAME", m.FromName)
	m.PreviewMax = getEnvInt("GAZETTE_MAIL_PREVIEW_MAX", m.PreviewMax)
	m.PreviewTTL = getEnvDuration("GAZETTE_MAIL_PREVIEW_TTL", m.PreviewTTL)
	m.Workers = getEnvInt("GAZETTE_MAIL_WORKERS", m.Workers)
	m.QueueSize = getEnvInt("GAZETTE_MAIL_QUEUE_SIZE", m.QueueSize)
	m.SendTimeout = getEnvDuration("GAZETTE_MAIL_SEND_TIMEOUT", m.SendTimeout)

	cfg.Billing.CatalogCacheTTL = getEnvDuration("GAZETTE_CATALOG_CACHE_TTL", cfg.Billing.CatalogCacheTTL)
	cfg.Billing.GaugeSchedule = getEnv("GAZETTE_TIER_GAUGE_SCHEDULE", cfg.Billing.GaugeSchedule)

	rl := &cfg.RateLimit
	rl.LoginRequests = getEnvInt("GAZETTE_LOGIN_RATE_LIMIT", rl.LoginRequests)
	rl.LoginWindow = getEnvDuration("GAZETTE_LOGIN_RATE_WINDOW", rl.LoginWindow)
	rl.FailOpen = getEnvBool("GAZETTE_RATE_LIMIT_FAIL_OPEN", rl.FailOpen)
	rl.TrustedProxies = getEnvList("GAZETTE_TRUSTED_PROXIES", rl.TrustedProxies)

	o := &cfg.Observability
	o.LogLevel = getEnv("GAZETTE_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("GAZETTE_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("GAZETTE_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("GAZETTE_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("GAZETTE_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("GAZETTE_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("GAZETTE_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("GAZETTE_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	switch c.Mail.Mode {
	case MailModePreview:
	case MailModeSMTP:
		if c.Mail.SMTPHost == "" {
			return fmt.Errorf("SMTP host is required for smtp mail mode")
		}
		if c.Mail.SMTPPort <= 0 {
			return fmt.Errorf("invalid SMTP port: %d", c.Mail.SMTPPort)
		}
		if c.Mail.Workers <= 0 || c.Mail.QueueSize <= 0 {
			return fmt.Errorf("mail workers and queue size must be positive")
		}
	default:
		return fmt.Errorf("invalid mail mode: %s (must be preview or smtp)", c.Mail.Mode)
	}
	if c.Mail.From == "" {
		return fmt.Errorf("mail from address is required")
	}

	if c.RateLimit.LoginRequests <= 0 || c.RateLimit.LoginWindow <= 0 {
		return fmt.Errorf("login rate limit must be positive")
	}
	if _, err := auth.ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		return err
	}

	if c.Billing.GaugeSchedule == "" {
		return fmt.Errorf("tier gauge schedule is required")
	}

	seen := make(map[identity.Tier]bool, len(c.Catalog))
	for _, st := range c.Catalog {
		if !st.Name.Valid() {
			return fmt.Errorf("invalid catalog entry: unknown subscription type %q", st.Name)
		}
		if seen[st.Name] {
			return fmt.Errorf("invalid catalog entry: duplicate subscription type %q", st.Name)
		}
		if st.PriceCents < 0 {
			return fmt.Errorf("invalid catalog entry: negative price for %q", st.Name)
		}
		seen[st.Name] = true
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// Addr is the main listener address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr is the health and metrics listener address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
