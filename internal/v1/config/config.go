package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	Port      string // HTTP control plane (board/auth APIs, metrics, health)
	WsPort    string // WebSocket accept loop
	JWTSecret string

	// Storage
	DataDir    string // base directory for saved boards, images, timelapses
	SQLitePath string // user credential database

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  string

	// Session tuning
	ReplayLogSoftCap int           // oldest-out eviction threshold for room replay logs
	CleanupGrace     time.Duration // grace period before empty rooms are removed

	// Redis (optional broadcast mirror + rate limit store)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Tracing (optional)
	OtelCollectorAddr string

	// Rate Limits
	RateLimitAPIGlobal string
	RateLimitAPIBoards string
	RateLimitAPIAuth   string
	RateLimitWsIP      string
}

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: JWT_SECRET (minimum 32 characters)
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET is required")
	} else if len(cfg.JWTSecret) < 32 {
		errors = append(errors, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
	}

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errors = append(errors, "PORT is required")
	} else if !isValidPort(cfg.Port) {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Required: WS_PORT (valid port number, distinct listener for WebSocket)
	cfg.WsPort = os.Getenv("WS_PORT")
	if cfg.WsPort == "" {
		errors = append(errors, "WS_PORT is required")
	} else if !isValidPort(cfg.WsPort) {
		errors = append(errors, fmt.Sprintf("WS_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.WsPort))
	}

	// Storage locations
	cfg.DataDir = getEnvOrDefault("DATA_DIR", "saved_boards")
	cfg.SQLitePath = getEnvOrDefault("SQLITE_PATH", "data/users.db")

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	// Optional: REPLAY_LOG_SOFT_CAP (defaults to 10000 envelopes per room)
	capStr := getEnvOrDefault("REPLAY_LOG_SOFT_CAP", "10000")
	if cap, err := strconv.Atoi(capStr); err != nil || cap < 1 {
		errors = append(errors, fmt.Sprintf("REPLAY_LOG_SOFT_CAP must be a positive integer (got '%s')", capStr))
	} else {
		cfg.ReplayLogSoftCap = cap
	}

	// Optional: ROOM_CLEANUP_GRACE in seconds (defaults to 5)
	graceStr := getEnvOrDefault("ROOM_CLEANUP_GRACE", "5")
	if grace, err := strconv.Atoi(graceStr); err != nil || grace < 0 {
		errors = append(errors, fmt.Sprintf("ROOM_CLEANUP_GRACE must be a non-negative integer of seconds (got '%s')", graceStr))
	} else {
		cfg.CleanupGrace = time.Duration(grace) * time.Second
	}

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIBoards = getEnvOrDefault("RATE_LIMIT_API_BOARDS", "100-M")
	cfg.RateLimitAPIAuth = getEnvOrDefault("RATE_LIMIT_API_AUTH", "30-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidPort checks whether the string is a port number between 1 and 65535
func isValidPort(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port >= 1 && port <= 65535
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	if !isValidPort(parts[1]) {
		return false
	}

	// Validate host is not empty
	return parts[0] != ""
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"jwt_secret", redactSecret(cfg.JWTSecret),
		"port", cfg.Port,
		"ws_port", cfg.WsPort,
		"data_dir", cfg.DataDir,
		"sqlite_path", cfg.SQLitePath,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"replay_log_soft_cap", cfg.ReplayLogSoftCap,
		"room_cleanup_grace", cfg.CleanupGrace,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
