// Package config loads configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server holds bridge server configuration.
type Server struct {
	ListenAddr string

	// Bridge
	Secret          string
	AuthWindow      time.Duration
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	MaxPending      int

	// Server-local sandbox
	LocalRoot        string
	LocalTextLimit   int64
	LocalBinaryLimit int64

	// Auth token for mutating local-file endpoints
	APIToken string

	// Logging
	LogLevel  string
	LogFormat string
}

// Agent holds remote agent configuration.
type Agent struct {
	ServerURL      string
	Secret         string
	FilesRoot      string
	ReconnectDelay time.Duration
	TextLimit      int64
	BinaryLimit    int64

	LogLevel  string
	LogFormat string
}

// LoadServer reads server configuration from the environment with defaults.
func LoadServer() *Server {
	return &Server{
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
		Secret:           envOr("BRIDGE_SECRET", ""),
		AuthWindow:       envDuration("BRIDGE_AUTH_WINDOW", 10*time.Second),
		RequestTimeout:   envDuration("BRIDGE_REQUEST_TIMEOUT", 10*time.Second),
		DownloadTimeout:  envDuration("BRIDGE_DOWNLOAD_TIMEOUT", 60*time.Second),
		MaxPending:       envInt("BRIDGE_MAX_PENDING", 64),
		LocalRoot:        envOr("LOCAL_FILES_ROOT", "./files"),
		LocalTextLimit:   envInt64("LOCAL_TEXT_LIMIT", 1<<20),
		LocalBinaryLimit: envInt64("LOCAL_BINARY_LIMIT", 50*(1<<20)),
		APIToken:         envOr("API_TOKEN", ""),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
	}
}

// LoadAgent reads agent configuration from the environment with defaults.
func LoadAgent() *Agent {
	return &Agent{
		ServerURL:      envOr("BRIDGE_URL", "ws://localhost:8080/ws/agent"),
		Secret:         envOr("BRIDGE_SECRET", ""),
		FilesRoot:      envOr("FILES_ROOT", "."),
		ReconnectDelay: envDuration("RECONNECT_DELAY", 5*time.Second),
		TextLimit:      envInt64("TEXT_LIMIT", 5*(1<<20)),
		BinaryLimit:    envInt64("BINARY_LIMIT", 50*(1<<20)),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogFormat:      envOr("LOG_FORMAT", "console"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Plain numbers are read as seconds, matching the older deploy envs.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
