// Package config gathers the environment-driven runtime knobs into one
// record loaded at startup. Some limits and intervals stay inline in their
// logic modules (the escalation engine's 120s schedule among them).
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	VanguardEnabled bool
	VanguardMode    string // SILENT_OBSERVER | CIRCUIT_BREAKER | FULL_SOVEREIGN

	RedisURL            string
	PostgresURL         string
	VanguardStorageMode string // "redis" | "postgres" | "memory"

	VanguardLLMEnabled   bool
	VanguardLLMTimeout   time.Duration
	VanguardSamplingRate float64

	PulseServiceEnabled bool
	WebsocketEnabled    bool

	// Rate limiter defaults.
	DefaultRateLimit  int
	DefaultRateWindow time.Duration
	AdminRateLimit    int
	AdminRateWindow   time.Duration

	// Idempotency defaults.
	IdempotencyTTL time.Duration

	// Pulse producer.
	PulsePollInterval time.Duration

	// Escalation engine.
	EscalationInterval time.Duration

	HTTPAddr string

	AdminAPIKey string
}

func Load() Config {
	return Config{
		VanguardEnabled:      boolEnv("VANGUARD_ENABLED", true),
		VanguardMode:         strEnv("VANGUARD_MODE", "SILENT_OBSERVER"),
		RedisURL:             strEnv("REDIS_URL", "localhost:6379"),
		PostgresURL:          strEnv("POSTGRES_URL", "postgres://localhost:5432/nexusvanguard"),
		VanguardStorageMode:  strEnv("VANGUARD_STORAGE_MODE", "redis"),
		VanguardLLMEnabled:   boolEnv("VANGUARD_LLM_ENABLED", false),
		VanguardLLMTimeout:   secondsEnv("VANGUARD_LLM_TIMEOUT_SEC", 10*time.Second),
		VanguardSamplingRate: floatEnv("VANGUARD_SAMPLING_RATE", 1.0),
		PulseServiceEnabled:  boolEnv("PULSE_SERVICE_ENABLED", true),
		WebsocketEnabled:     boolEnv("FEATURE_WEBSOCKET_ENABLED", true),

		DefaultRateLimit:  60,
		DefaultRateWindow: 60 * time.Second,
		AdminRateLimit:    30,
		AdminRateWindow:   60 * time.Second,

		IdempotencyTTL: 24 * time.Hour,

		PulsePollInterval: 10 * time.Second,

		EscalationInterval: 120 * time.Second,

		HTTPAddr: strEnv("HTTP_ADDR", ":8080"),

		AdminAPIKey: strEnv("VANGUARD_ADMIN_API_KEY", ""),
	}
}

func strEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func floatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func secondsEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}
