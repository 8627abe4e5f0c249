// Package config loads server configuration from an optional YAML file
// overlaid with environment variables. Environment wins; both fall back
// to defaults suitable for a local single-node run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kamitools/kami/pkg/runtime"
)

// Transport selects how the MCP server is exposed.
type Transport string

const (
	// TransportStdio serves line-delimited JSON-RPC on stdin/stdout.
	TransportStdio Transport = "stdio"
	// TransportHTTP serves JSON-RPC on POST /mcp.
	TransportHTTP Transport = "http"
)

// Config is the full server configuration.
type Config struct {
	// Transport is "stdio" or "http".
	Transport Transport `yaml:"transport"`
	// ListenAddr is the HTTP bind address.
	ListenAddr string `yaml:"listen_addr"`
	// BearerToken, when set, is required on every /mcp request.
	BearerToken string `yaml:"bearer_token"`
	// JWTSecret, when set, switches /mcp auth to HS256 JWT validation.
	JWTSecret string `yaml:"jwt_secret"`
	// DatabasePath is the SQLite catalog location.
	DatabasePath string `yaml:"database_path"`
	// DatabaseURL, when set, selects the PostgreSQL catalog instead.
	DatabaseURL string `yaml:"database_url"`
	// LogLevel is DEBUG, INFO, WARN, or ERROR.
	LogLevel string `yaml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`
	// CacheSize bounds the compiled-component cache.
	CacheSize int `yaml:"cache_size"`
	// MaxConcurrent bounds parallel executions.
	MaxConcurrent int `yaml:"max_concurrent"`
	// RateLimitPerTool caps executions per tool per window (0 = off).
	RateLimitPerTool uint64 `yaml:"rate_limit_per_tool"`
	// RateLimitGlobal caps executions across tools per window (0 = off).
	RateLimitGlobal uint64 `yaml:"rate_limit_global"`
	// RateLimitWindow is the limiter window.
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	// SandboxDir is the root preopened for tools with fs access.
	SandboxDir string `yaml:"sandbox_dir"`
	// InheritStdio pipes guest stdout/stderr to the host (dev runs).
	InheritStdio bool `yaml:"inherit_stdio"`
}

// Default returns the local single-node defaults.
func Default() Config {
	return Config{
		Transport:       TransportStdio,
		ListenAddr:      "0.0.0.0:8080",
		DatabasePath:    defaultDatabasePath(),
		LogLevel:        "INFO",
		LogFormat:       "text",
		CacheSize:       32,
		MaxConcurrent:   4,
		RateLimitWindow: time.Minute,
	}
}

// Load reads path (when non-empty) and applies the environment on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Transport != TransportStdio && cfg.Transport != TransportHTTP {
		return Config{}, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	return cfg, nil
}

// RuntimeConfig projects the runtime-facing subset.
func (c Config) RuntimeConfig() runtime.Config {
	return runtime.Config{
		CacheSize:     c.CacheSize,
		MaxConcurrent: c.MaxConcurrent,
		RateLimit: runtime.RateLimitConfig{
			PerTool: c.RateLimitPerTool,
			Global:  c.RateLimitGlobal,
			Window:  c.RateLimitWindow,
		},
	}
}

func (c *Config) applyEnv() {
	setString := func(target *string, key string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setString((*string)(&c.Transport), "KAMI_TRANSPORT")
	setString(&c.ListenAddr, "KAMI_LISTEN_ADDR")
	setString(&c.BearerToken, "KAMI_BEARER_TOKEN")
	setString(&c.JWTSecret, "KAMI_JWT_SECRET")
	setString(&c.DatabasePath, "KAMI_DATABASE_PATH")
	setString(&c.DatabaseURL, "KAMI_DATABASE_URL")
	setString(&c.LogLevel, "KAMI_LOG_LEVEL")
	setString(&c.LogFormat, "KAMI_LOG_FORMAT")
	setString(&c.SandboxDir, "KAMI_SANDBOX_DIR")

	if v := os.Getenv("KAMI_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.CacheSize = n
		}
	}
	if v := os.Getenv("KAMI_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxConcurrent = n
		}
	}
	if v := os.Getenv("KAMI_INHERIT_STDIO"); v != "" {
		c.InheritStdio = v == "true" || v == "1"
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "kami.db"
	}
	return home + "/.kami/kami.db"
}
