package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// JWT configuration for handshake verification
	JWTSecret string

	// Outbound dispatch (email/SMS gateway) configuration
	DispatchEndpoint string
	DispatchAPIKey   string
	DispatchRate     float64 // requests per second towards the gateway

	// Automation scheduler cadence
	TickInterval time.Duration

	// Job GC cadence; terminal jobs older than the retention window are purged
	GCInterval time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		DispatchEndpoint: getEnv("DISPATCH_ENDPOINT", ""),
		DispatchAPIKey:   getEnv("DISPATCH_API_KEY", ""),
		DispatchRate:     getFloatEnv("DISPATCH_RATE_PER_SEC", 5),

		TickInterval: getDurationEnv("AUTOMATION_TICK_INTERVAL", 60*time.Second),
		GCInterval:   getDurationEnv("JOB_GC_INTERVAL", 1*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
