package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Transport TransportConfig `yaml:"transport"`
	SES       SESConfig       `yaml:"ses"`
	Resend    ResendConfig    `yaml:"resend"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds the PostgreSQL connection settings. An empty URL
// selects the in-memory repositories.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection used for send locks and webhook
// deduplication. An empty URL disables Redis.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Enabled reports whether a Redis URL is configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// Transport providers.
const (
	ProviderSES    = "ses"
	ProviderResend = "resend"
)

// TransportConfig selects the email-delivery provider.
type TransportConfig struct {
	Provider           string `yaml:"provider"` // "ses" or "resend"
	FromEmail          string `yaml:"from_email"`
	SendTimeoutSeconds int    `yaml:"send_timeout_seconds"`
}

// SendTimeout bounds a single transport call.
func (c TransportConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// ResendConfig holds Resend API configuration
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// DispatchConfig tunes campaign fan-out.
type DispatchConfig struct {
	// AllFailedStatus is the terminal status when every recipient send
	// failed: "failed" (default) or "sent".
	AllFailedStatus string `yaml:"all_failed_status"`
	LockTTLSeconds  int    `yaml:"lock_ttl_seconds"`
	// Workers and QueueSize size the background send pool.
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// LockTTL returns the per-campaign send lock lifetime.
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// WebhookConfig holds provider-notification ingestion settings.
type WebhookConfig struct {
	ConfirmSubscriptions bool   `yaml:"confirm_subscriptions"`
	SQSQueueURL          string `yaml:"sqs_queue_url"`
	SQSRegion            string `yaml:"sqs_region"`
	DedupTTLHours        int    `yaml:"dedup_ttl_hours"`
}

// DedupTTL returns how long a processed notification key is remembered.
func (c WebhookConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLHours) * time.Hour
}

// AuthConfig holds bearer-token verification settings. Tokens are issued
// by the external identity provider and signed with JWTSecret.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	DevMode    bool   `yaml:"dev_mode"`
	DevOwnerID string `yaml:"dev_owner_id"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on (default true).
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, cfg.Validate()
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Transport.Provider == "" {
		cfg.Transport.Provider = ProviderSES
	}
	if cfg.Transport.FromEmail == "" {
		cfg.Transport.FromEmail = "noreply@yourdomain.com"
	}
	if cfg.Transport.SendTimeoutSeconds == 0 {
		cfg.Transport.SendTimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Dispatch.AllFailedStatus == "" {
		cfg.Dispatch.AllFailedStatus = "failed"
	}
	if cfg.Dispatch.LockTTLSeconds == 0 {
		cfg.Dispatch.LockTTLSeconds = 600
	}
	if cfg.Webhooks.SQSRegion == "" {
		cfg.Webhooks.SQSRegion = cfg.SES.Region
	}
	if cfg.Webhooks.DedupTTLHours == 0 {
		cfg.Webhooks.DedupTTLHours = 72
	}
	if cfg.Auth.DevOwnerID == "" {
		cfg.Auth.DevOwnerID = "dev-owner"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate rejects settings the pipeline cannot run with.
func (cfg *Config) Validate() error {
	switch cfg.Transport.Provider {
	case ProviderSES, ProviderResend:
	default:
		return fmt.Errorf("transport.provider must be %q or %q, got %q", ProviderSES, ProviderResend, cfg.Transport.Provider)
	}
	switch cfg.Dispatch.AllFailedStatus {
	case "failed", "sent":
	default:
		return fmt.Errorf("dispatch.all_failed_status must be \"failed\" or \"sent\", got %q", cfg.Dispatch.AllFailedStatus)
	}
	if cfg.Transport.SendTimeoutSeconds < 0 {
		return fmt.Errorf("transport.send_timeout_seconds must not be negative")
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("EMAIL_PROVIDER"); v != "" {
		cfg.Transport.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("DEFAULT_FROM_EMAIL"); v != "" {
		cfg.Transport.FromEmail = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Resend.APIKey = v
	}
	if v := os.Getenv("SES_NOTIFICATION_QUEUE_URL"); v != "" {
		cfg.Webhooks.SQSQueueURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DEV_MODE"); v != "" {
		cfg.Auth.DevMode, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, cfg.Validate()
}
