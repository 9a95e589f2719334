// Package config loads service configuration from an optional YAML file
// with environment-variable fallbacks.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// HTTP
	ListenAddr string `yaml:"listen_addr"`

	// Provider
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	ModelPrimary  string `yaml:"model_primary"`
	ModelFallback string `yaml:"model_fallback"`

	// Durable store. Empty addr means the in-memory fallback.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Admission control
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowIPs       []string `yaml:"allow_ips"`
	TrustForwarded bool     `yaml:"trust_forwarded"`

	// Bot challenge
	TurnstileSecret string `yaml:"turnstile_secret"`

	// Alerting
	AlertWebhookURL    string   `yaml:"alert_webhook_url"`
	AlertWebhookSecret string   `yaml:"alert_webhook_secret"`
	AlertWebhookEvents []string `yaml:"alert_webhook_events"`
	EmailAPIURL        string   `yaml:"email_api_url"`
	EmailAPIKey        string   `yaml:"email_api_key"`
	EmailFrom          string   `yaml:"email_from"`
	EmailTo            string   `yaml:"email_to"`
	EmailEvents        []string `yaml:"email_events"`
}

// defaultOrigins are the origins the portfolio site is served from,
// plus the local dev server.
var defaultOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
	"https://leochui.tech",
	"https://www.leochui.tech",
}

// Load reads configuration from path (if non-empty) and fills gaps from
// the environment, then applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Environment fallbacks
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.ModelPrimary == "" {
		cfg.ModelPrimary = firstEnv("GEMINI_MODEL_PRIMARY", "GEMINI_MODEL")
	}
	if cfg.ModelFallback == "" {
		cfg.ModelFallback = os.Getenv("GEMINI_MODEL_FALLBACK")
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	}
	if cfg.RedisPassword == "" {
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}
	if len(cfg.AllowIPs) == 0 {
		cfg.AllowIPs = splitList(os.Getenv("RATE_LIMIT_ALLOW_IPS"))
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	}
	if cfg.TurnstileSecret == "" {
		cfg.TurnstileSecret = os.Getenv("TURNSTILE_SECRET")
	}
	if cfg.AlertWebhookURL == "" {
		cfg.AlertWebhookURL = os.Getenv("ALERT_WEBHOOK_URL")
	}
	if cfg.AlertWebhookSecret == "" {
		cfg.AlertWebhookSecret = os.Getenv("ALERT_WEBHOOK_SECRET")
	}
	if len(cfg.AlertWebhookEvents) == 0 {
		cfg.AlertWebhookEvents = splitList(os.Getenv("ALERT_WEBHOOK_EVENTS"))
	}
	if cfg.EmailAPIKey == "" {
		cfg.EmailAPIKey = os.Getenv("EMAIL_API_KEY")
	}
	if cfg.EmailFrom == "" {
		cfg.EmailFrom = os.Getenv("ALERT_EMAIL_FROM")
	}
	if cfg.EmailTo == "" {
		cfg.EmailTo = os.Getenv("ALERT_EMAIL_TO")
	}
	if len(cfg.EmailEvents) == 0 {
		cfg.EmailEvents = splitList(os.Getenv("ALERT_EMAIL_EVENTS"))
	}

	// Defaults
	if cfg.ListenAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.ListenAddr = ":" + port
		} else {
			cfg.ListenAddr = ":8080"
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = append([]string(nil), defaultOrigins...)
	}

	return &cfg, nil
}

// Validate checks that required settings are present. The provider key
// is the only hard requirement; everything else degrades gracefully.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("gemini_api_key is required")
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// splitList parses a comma- or whitespace-separated list.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
