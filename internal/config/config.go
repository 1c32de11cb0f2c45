// Package config provides configuration for the Bawaal client.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the client configuration.
type Config struct {
	// Backend endpoints
	APIBaseURL  string // REST base URL
	ChatBaseURL string // streaming endpoint, derived from APIBaseURL unless set

	// Auth settings
	Token string // static bearer token from the environment

	// Reconnect policy
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// Streaming settings
	StreamTimeout   time.Duration
	DialTimeout     time.Duration
	MaxMessageChars int

	// REST settings
	RequestTimeout time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	api := getEnv("API_BASE_URL", "http://localhost:8000")
	return &Config{
		APIBaseURL:         api,
		ChatBaseURL:        getEnv("CHAT_BASE_URL", DeriveChatURL(api)),
		Token:              getEnv("BAWAAL_TOKEN", ""),
		ReconnectBaseDelay: time.Duration(getEnvInt("RECONNECT_BASE_DELAY_MS", 3000)) * time.Millisecond,
		ReconnectMaxDelay:  time.Duration(getEnvInt("RECONNECT_MAX_DELAY_MS", 30000)) * time.Millisecond,
		StreamTimeout:      time.Duration(getEnvInt("STREAM_TIMEOUT_MS", 120000)) * time.Millisecond,
		DialTimeout:        time.Duration(getEnvInt("DIAL_TIMEOUT_MS", 15000)) * time.Millisecond,
		MaxMessageChars:    getEnvInt("MAX_MESSAGE_CHARS", 1000),
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_MS", 30000)) * time.Millisecond,
	}
}

// DeriveChatURL maps the REST base URL onto the streaming endpoint scheme,
// http -> ws and https -> wss.
func DeriveChatURL(apiBase string) string {
	switch {
	case strings.HasPrefix(apiBase, "https://"):
		return "wss://" + strings.TrimPrefix(apiBase, "https://")
	case strings.HasPrefix(apiBase, "http://"):
		return "ws://" + strings.TrimPrefix(apiBase, "http://")
	}
	return apiBase
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
