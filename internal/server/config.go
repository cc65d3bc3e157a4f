// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat server.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	// Port is the TCP port of the line protocol listener.
	Port int
	// WebSocketAddr is the HTTP listen address for the /ws endpoint.
	// Empty disables the WebSocket transport.
	WebSocketAddr  string
	AllowedOrigins []string
	MaxLineLength  int
	RateLimit      RateLimitConfig
	SendQueueSize  int

	// NotifyLastPeer sends a notice to the sole remaining peer after a departure.
	NotifyLastPeer bool
	// ShutdownWhenEmpty stops the server once the last registered peer leaves.
	ShutdownWhenEmpty bool
	// AnnouncePresence broadcasts join and leave notices to other peers.
	AnnouncePresence bool

	LogLevel string
}

const (
	defaultPort          = 6666
	defaultMaxLineLength = 4096
	defaultSendQueueSize = 256
	defaultRateBurst     = 10
	minPort              = 1
	maxPort              = 65535
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxLineLength: defaultMaxLineLength,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateBurst,
			RefillInterval: time.Second,
		},
		SendQueueSize:  defaultSendQueueSize,
		NotifyLastPeer: true,
		LogLevel:       "info",
	}
}

// Sanitize replaces out-of-range values with their defaults and returns the
// receiver for chaining.
func (cfg *Config) Sanitize() *Config {
	if cfg.Port < minPort || cfg.Port > maxPort {
		cfg.Port = defaultPort
	}

	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = defaultMaxLineLength
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultRateBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaultSendQueueSize
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("PEERCHAT_PORT"); port != "" {
		cfg.Port = parseIntValue(port, cfg.Port)
	}

	if addr := os.Getenv("PEERCHAT_WS_ADDR"); addr != "" {
		cfg.WebSocketAddr = addr
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxLen := os.Getenv("MAX_LINE_LENGTH"); maxLen != "" {
		cfg.MaxLineLength = parseIntValue(maxLen, cfg.MaxLineLength)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if v := os.Getenv("PEERCHAT_SHUTDOWN_WHEN_EMPTY"); v != "" {
		cfg.ShutdownWhenEmpty = parseBoolValue(v, cfg.ShutdownWhenEmpty)
	}

	if v := os.Getenv("PEERCHAT_NOTIFY_LAST_PEER"); v != "" {
		cfg.NotifyLastPeer = parseBoolValue(v, cfg.NotifyLastPeer)
	}

	if v := os.Getenv("PEERCHAT_ANNOUNCE_PRESENCE"); v != "" {
		cfg.AnnouncePresence = parseBoolValue(v, cfg.AnnouncePresence)
	}

	if level := os.Getenv("PEERCHAT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return &cfg
}

// ParsePort validates a port argument. It accepts decimal values in [1, 65535].
func ParsePort(value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, ErrInvalidPort
	}
	if port < minPort || port > maxPort {
		return 0, ErrInvalidPort
	}
	return port, nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseBoolValue(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
