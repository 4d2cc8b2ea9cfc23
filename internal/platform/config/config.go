package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the gateway.
type Config struct {
	GatewayAddr   string
	APIServiceURL string // Full URL for proxy target (e.g. http://api:8081)
	AIServiceURL  string // Full URL for proxy target (e.g. http://ai:8082)

	// JWKSURL is the identity provider's key set endpoint. Empty together
	// with a non-production environment selects dev auth mode.
	JWKSURL string
	// TokenAudience is the expected aud claim on verified tokens.
	TokenAudience string
	// BypassToken grants the fixed test admin identity when presented as
	// the bearer credential. Empty disables the bypass.
	BypassToken string
	// Environment is the deployment environment name ("development",
	// "staging", "production").
	Environment string
	// FetchIdentityTokens enables service-to-service identity tokens on
	// outbound requests (managed runtime deployments).
	FetchIdentityTokens bool

	LogLevel  string
	RateLimit RateLimitConfig

	ProxyTimeout   time.Duration
	FileTimeout    time.Duration
	ConnectTimeout time.Duration
	AuthTimeout    time.Duration
}

// RateLimitConfig holds token bucket parameters for per-IP rate limiting.
type RateLimitConfig struct {
	Rate  float64
	Burst int
}

// Load reads configuration from environment variables, falling back to defaults.
func Load() Config {
	return Config{
		GatewayAddr:         envOr("GATEWAY_ADDR", ":8080"),
		APIServiceURL:       envOr("API_SERVICE_URL", "http://localhost:8081"),
		AIServiceURL:        envOr("AI_SERVICE_URL", "http://localhost:8082"),
		JWKSURL:             os.Getenv("JWKS_URL"),
		TokenAudience:       envOr("TOKEN_AUDIENCE", "stack"),
		BypassToken:         os.Getenv("TEST_BYPASS_TOKEN"),
		Environment:         envOr("ENVIRONMENT", "development"),
		FetchIdentityTokens: envBool("FETCH_IDENTITY_TOKENS", false),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		RateLimit: RateLimitConfig{
			Rate:  envFloat("RATE_LIMIT_RATE", 100),
			Burst: envInt("RATE_LIMIT_BURST", 20),
		},
		ProxyTimeout:   envDuration("PROXY_TIMEOUT", 30*time.Second),
		FileTimeout:    envDuration("PROXY_FILE_TIMEOUT", 60*time.Second),
		ConnectTimeout: envDuration("PROXY_CONNECT_TIMEOUT", 10*time.Second),
		AuthTimeout:    envDuration("AUTH_TIMEOUT", 5*time.Second),
	}
}

// DevMode reports whether the gateway should grant the fixed development
// identity instead of verifying tokens: no key source configured and not a
// production deployment.
func (c Config) DevMode() bool {
	return c.JWKSURL == "" && c.Environment == "development"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return f
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return b
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return d
	}
	return fallback
}
