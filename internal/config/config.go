// Package config loads gateway settings from an optional yaml file and the
// environment. Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FireCREST authentication modes.
const (
	AuthToken             = "token"
	AuthClientCredentials = "client_credentials"
)

// Config holds all configuration values for the gateway.
type Config struct {
	// Database connection string: postgres://..., postgresql://... or sqlite://<path>
	DatabaseURL string `mapstructure:"database_url"`

	// HTTP server port
	HTTPPort int `mapstructure:"http_port"`

	// Absolute path on the cluster under which user homes are created
	ClusterHome string `mapstructure:"cluster_home"`
	// Machine name passed to the facade on every call
	Machine string `mapstructure:"machine"`

	// Identity provider
	UserinfoURL    string        `mapstructure:"userinfo_url"`
	AllowedEmails  []string      `mapstructure:"allowed_emails"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// FirecREST facade
	FirecrestURL          string        `mapstructure:"firecrest_url"`
	FirecrestAuth         string        `mapstructure:"firecrest_auth"`
	FirecrestToken        string        `mapstructure:"firecrest_token"`
	FirecrestClientID     string        `mapstructure:"firecrest_client_id"`
	FirecrestClientSecret string        `mapstructure:"firecrest_client_secret"`
	FirecrestTokenURL     string        `mapstructure:"firecrest_token_url"`
	TaskPollInterval      time.Duration `mapstructure:"task_poll_interval"`

	// Job script handling
	JobScript    string `mapstructure:"job_script"`
	VerifyScript bool   `mapstructure:"verify_script"`

	// HTTP surface
	RateLimit          float64  `mapstructure:"rate_limit"`
	RateLimitBurst     int      `mapstructure:"rate_limit_burst"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	MaxUploadBytes     int64    `mapstructure:"max_upload_bytes"`

	// OpenTelemetry collector endpoint; empty disables tracing
	OTELEndpoint string `mapstructure:"otel_endpoint"`
	LogLevel     string `mapstructure:"log_level"`
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"database_url":            "DATABASE_URL",
	"http_port":               "PORT",
	"cluster_home":            "CLUSTER_HOME",
	"machine":                 "HPC_MACHINE_NAME",
	"userinfo_url":            "MP_USERINFO_URL",
	"allowed_emails":          "ALLOWED_EMAILS",
	"request_timeout":         "REQUEST_TIMEOUT",
	"firecrest_url":           "F7T_URL",
	"firecrest_auth":          "F7T_AUTH",
	"firecrest_token":         "F7T_TOKEN",
	"firecrest_client_id":     "F7T_CLIENT_ID",
	"firecrest_client_secret": "F7T_CLIENT_SECRET",
	"firecrest_token_url":     "F7T_TOKEN_URL",
	"task_poll_interval":      "F7T_TASK_POLL_INTERVAL",
	"job_script":              "JOB_SCRIPT",
	"verify_script":           "VERIFY_SCRIPT",
	"rate_limit":              "RATE_LIMIT",
	"rate_limit_burst":        "RATE_LIMIT_BURST",
	"cors_allowed_origins":    "CORS_ALLOWED_ORIGINS",
	"max_upload_bytes":        "MAX_UPLOAD_BYTES",
	"otel_endpoint":           "OTEL_EXPORTER_OTLP_ENDPOINT",
	"log_level":               "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 5253)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("task_poll_interval", time.Second)
	v.SetDefault("job_script", "submit.sh")
	v.SetDefault("verify_script", true)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("max_upload_bytes", 32<<20)
	v.SetDefault("log_level", "info")
}

// Load reads configuration from path (if non-empty) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Lists arrive from the environment as one comma separated string.
	cfg.AllowedEmails = splitList(cfg.AllowedEmails)
	cfg.CORSAllowedOrigins = splitList(cfg.CORSAllowedOrigins)

	if cfg.FirecrestAuth == "" {
		if cfg.FirecrestToken != "" {
			cfg.FirecrestAuth = AuthToken
		} else {
			cfg.FirecrestAuth = AuthClientCredentials
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func required(key, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required (env: %s)", key, envBindings[key])
	}
	return nil
}

func (c *Config) validate() error {
	if err := errors.Join(
		required("database_url", c.DatabaseURL),
		required("cluster_home", c.ClusterHome),
		required("machine", c.Machine),
		required("userinfo_url", c.UserinfoURL),
		required("firecrest_url", c.FirecrestURL),
	); err != nil {
		return err
	}

	if _, err := c.StoreDriver(); err != nil {
		return err
	}
	if !strings.HasPrefix(c.ClusterHome, "/") {
		return fmt.Errorf("cluster_home must be an absolute path, got %q", c.ClusterHome)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	switch c.FirecrestAuth {
	case AuthToken:
		if c.FirecrestToken == "" {
			return required("firecrest_token", c.FirecrestToken)
		}
	case AuthClientCredentials:
		if err := errors.Join(
			required("firecrest_client_id", c.FirecrestClientID),
			required("firecrest_client_secret", c.FirecrestClientSecret),
			required("firecrest_token_url", c.FirecrestTokenURL),
		); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown firecrest_auth %q (want %s or %s)", c.FirecrestAuth, AuthToken, AuthClientCredentials)
	}
	return nil
}

// StoreDriver returns "postgres" or "sqlite" depending on the database_url scheme.
func (c *Config) StoreDriver() (string, error) {
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid database_url: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres", nil
	case "sqlite":
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported database_url scheme %q", u.Scheme)
}

// SQLitePath returns the file path of a sqlite:// database_url.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(c.DatabaseURL, "sqlite://")
}
