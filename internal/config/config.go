// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	SiteURL        string // Public origin of this site; the content client and showcase use it.
	FrontendURL    string
	DBPath         string
	LogLevel       string
	AllowedOrigins []string
	Chat           ChatConfig
	Ghost          GhostConfig
	SMTP           SMTPConfig
	RateLimit      RateLimitConfig
	Redis          RedisConfig
}

// ChatConfig points at the external chat platform.
type ChatConfig struct {
	BaseURL string
	AskURL  string
	APIKey  string
	Timeout time.Duration
}

// GhostConfig holds Ghost Content API credentials.
type GhostConfig struct {
	URL string
	Key string
}

// SMTPConfig controls outbound email.
type SMTPConfig struct {
	Host       string
	Port       int
	PortRaw    string
	User       string
	Pass       string
	FromEmail  string
	ToEmail    string
	Secure     bool
	RequireTLS bool
	HeloName   string
	UseMock    bool
}

// RateLimitConfig limits form submissions per client.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RedisConfig enables the shared rate limiter when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Environment variable names for each concept, in precedence order.
var (
	chatBaseKeys = []string{"CHAT_API_BASE", "LIBRECHAT_API_BASE", "NEXT_PUBLIC_LIBRECHAT_API_BASE", "NEXT_PUBLIC_LIBRECHAT_URL"}
	chatAskKeys  = []string{"CHAT_ASK_URL", "LIBRECHAT_API_URL"}
)

// SMTPRequiredKeys are the variables the contact form needs before it sends anything.
var SMTPRequiredKeys = []string{"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_FROM_EMAIL", "SMTP_TO_EMAIL"}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")

	smtpPortRaw := getEnv("SMTP_PORT", "")
	smtpPort := 587
	if smtpPortRaw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(smtpPortRaw))
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: SMTP_PORT must be numeric: %w", err)
		}
		smtpPort = n
	}

	window, err := getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	siteURL, err := normalizeOptionalURL(getEnv("SITE_URL", "http://127.0.0.1:"+port))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: SITE_URL: %w", err)
	}
	chatBase, err := normalizeOptionalURL(firstEnv(chatBaseKeys...))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: chat base URL: %w", err)
	}
	ghostURL, err := normalizeOptionalURL(getEnv("GHOST_CONTENT_API_URL", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: GHOST_CONTENT_API_URL: %w", err)
	}

	cfg := &Config{
		Port:           port,
		SiteURL:        siteURL,
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/site.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		Chat: ChatConfig{
			BaseURL: chatBase,
			AskURL:  firstEnv(chatAskKeys...),
			APIKey:  getEnv("LIBRECHAT_API_KEY", ""),
			Timeout: 30 * time.Second,
		},
		Ghost: GhostConfig{
			URL: ghostURL,
			Key: getEnv("GHOST_CONTENT_API_KEY", ""),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      smtpPort,
			PortRaw:   smtpPortRaw,
			User:      getEnv("SMTP_USER", ""),
			Pass:      getEnv("SMTP_PASS", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			ToEmail:   getEnv("SMTP_TO_EMAIL", ""),
			// Implicit TLS defaults on for 465, STARTTLS is required by default on 587.
			Secure:     getEnvBool("SMTP_SECURE", smtpPort == 465),
			RequireTLS: getEnvBool("SMTP_REQUIRE_TLS", smtpPort == 587),
			HeloName:   getEnv("SMTP_NAME", ""),
			UseMock:    getEnvBool("USE_MOCK_EMAIL", false),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 5),
			Window:   window,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// Upstream credentials are optional here: the routes that need them
// fail with a 500 at request time instead of keeping the site down.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// MissingSMTP returns the names of required SMTP variables that are unset.
func (c *Config) MissingSMTP() []string {
	values := map[string]string{
		"SMTP_HOST":       c.SMTP.Host,
		"SMTP_PORT":       c.SMTP.PortRaw,
		"SMTP_USER":       c.SMTP.User,
		"SMTP_PASS":       c.SMTP.Pass,
		"SMTP_FROM_EMAIL": c.SMTP.FromEmail,
		"SMTP_TO_EMAIL":   c.SMTP.ToEmail,
	}
	var missing []string
	for _, key := range SMTPRequiredKeys {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeOptionalURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	u, err := EnsureAbsoluteURL(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(u, "/"), nil
}
