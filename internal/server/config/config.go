package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ccheshirecat/msgbus/internal/shared/logging"
)

const (
	defaultHTTPListen       = "127.0.0.1:7780"
	defaultDBPath           = "~/.msgbus/catalog.db"
	defaultMaxSubscriptions = 4096
)

// ServerConfig captures the runtime configuration required by the daemon.
type ServerConfig struct {
	HTTPListen       string
	DatabasePath     string
	TopicsFile       string
	MaxSubscriptions int
	LogLevel         slog.Level
	APIKey           string
	AllowCIDRs       []string
}

// FromEnv loads server configuration from environment variables, applying
// defaults when unset.
func FromEnv() (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPListen:   getenv("MSGBUS_HTTP_LISTEN", defaultHTTPListen),
		DatabasePath: expandPath(getenv("MSGBUS_DB_PATH", defaultDBPath)),
		TopicsFile:   expandPath(getenv("MSGBUS_TOPICS_FILE", "")),
		APIKey:       strings.TrimSpace(os.Getenv("MSGBUS_API_KEY")),
	}

	if _, _, err := net.SplitHostPort(cfg.HTTPListen); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid http listen address %q: %w", cfg.HTTPListen, err)
	}

	if cfg.DatabasePath == "" {
		return ServerConfig{}, fmt.Errorf("database path required")
	}

	maxSubs := getenv("MSGBUS_MAX_SUBSCRIPTIONS", strconv.Itoa(defaultMaxSubscriptions))
	n, err := strconv.Atoi(maxSubs)
	if err != nil || n < 0 {
		return ServerConfig{}, fmt.Errorf("invalid max subscriptions %q", maxSubs)
	}
	cfg.MaxSubscriptions = n

	level, err := logging.ParseLevel(os.Getenv("MSGBUS_LOG_LEVEL"))
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.LogLevel = level

	for _, raw := range strings.Split(os.Getenv("MSGBUS_API_ALLOW_CIDR"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if _, _, err := net.ParseCIDR(raw); err != nil {
			return ServerConfig{}, fmt.Errorf("invalid allow cidr %q: %w", raw, err)
		}
		cfg.AllowCIDRs = append(cfg.AllowCIDRs, raw)
	}

	if cfg.TopicsFile != "" && !fileExists(cfg.TopicsFile) {
		return ServerConfig{}, fmt.Errorf("topics file %s not found", cfg.TopicsFile)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
