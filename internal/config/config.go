// Package config loads and validates application configuration from environment variables.
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
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Chronicle settings.
	ChronicleBackend     string // "file", "sqlite", or "postgres".
	ChroniclePath        string // Directory (file) or database path (sqlite).
	ChronicleDatabaseURL string // Postgres connection string.
	ChronicleSecured     bool   // Writes without a WRITER handle fail.

	// Reasoner settings.
	ReasonerCloudURL     string
	ReasonerCloudKey     string
	ReasonerSovereignURL string
	ReasonerTimeout      time.Duration

	// Per-role model overrides; empty keeps the built-in registry entry.
	PrecheckModel      string
	ForgeModel         string
	ForgeBackstopModel string
	AdversaryModel     string
	FinalModel         string

	// Auth settings.
	AdminAPIKey       string
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiration     time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel           string
	EventBufferSize    int
	RateLimitEnabled   bool
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                 envInt("NEST_PORT", 8080),
		ReadTimeout:          envDuration("NEST_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:         envDuration("NEST_WRITE_TIMEOUT", 300*time.Second),
		MaxRequestBodyBytes:  int64(envInt("NEST_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
		ChronicleBackend:     envStr("CHRONICLE_BACKEND", "file"),
		ChroniclePath:        envStr("CHRONICLE_PATH", "data"),
		ChronicleDatabaseURL: envStr("CHRONICLE_DATABASE_URL", ""),
		ChronicleSecured:     envBool("CHRONICLE_SECURED", true),
		ReasonerCloudURL:     envStr("REASONER_CLOUD_URL", ""),
		ReasonerCloudKey:     envStr("REASONER_CLOUD_KEY", ""),
		ReasonerSovereignURL: envStr("REASONER_SOVEREIGN_URL", ""),
		ReasonerTimeout:      envDuration("REASONER_TIMEOUT", 120*time.Second),
		PrecheckModel:        envStr("PRECHECK_MODEL", ""),
		ForgeModel:           envStr("FORGE_MODEL", ""),
		ForgeBackstopModel:   envStr("FORGE_BACKSTOP_MODEL", ""),
		AdversaryModel:       envStr("ADVERSARY_MODEL", ""),
		FinalModel:           envStr("FINAL_MODEL", ""),
		AdminAPIKey:          envStr("NEST_ADMIN_API_KEY", ""),
		JWTPrivateKeyPath:    envStr("NEST_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:     envStr("NEST_JWT_PUBLIC_KEY", ""),
		JWTExpiration:        envDuration("NEST_JWT_EXPIRATION", 24*time.Hour),
		OTELEndpoint:         envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:         envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:          envStr("OTEL_SERVICE_NAME", "thenest"),
		LogLevel:             envStr("NEST_LOG_LEVEL", "info"),
		EventBufferSize:      envInt("NEST_EVENT_BUFFER_SIZE", 64),
		RateLimitEnabled:     envBool("NEST_RATE_LIMIT_ENABLED", true),
		RateLimitRPS:         envFloat("NEST_RATE_LIMIT_RPS", 10),
		RateLimitBurst:       envInt("NEST_RATE_LIMIT_BURST", 20),
		CORSAllowedOrigins:   envList("NEST_CORS_ALLOWED_ORIGINS", nil),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	switch c.ChronicleBackend {
	case "file", "sqlite":
		if c.ChroniclePath == "" {
			return fmt.Errorf("config: CHRONICLE_PATH is required for the %s backend", c.ChronicleBackend)
		}
	case "postgres":
		if c.ChronicleDatabaseURL == "" {
			return fmt.Errorf("config: CHRONICLE_DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown CHRONICLE_BACKEND %q (want file, sqlite, or postgres)", c.ChronicleBackend)
	}
	if c.ReasonerCloudKey != "" && c.ReasonerCloudURL == "" {
		return fmt.Errorf("config: REASONER_CLOUD_KEY set without REASONER_CLOUD_URL")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: NEST_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

// MockReasoner reports whether the deterministic mock is in effect.
func (c Config) MockReasoner() bool {
	return c.ReasonerCloudURL == ""
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
