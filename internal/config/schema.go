// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for toolgate.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	Gateway GatewayConfig  `yaml:"gateway"`
	Prompt  PromptConfig   `yaml:"prompt"`
	Sweep   SweepConfig    `yaml:"sweep"`
	Audit   AuditConfig    `yaml:"audit"`
	Tracing TracingConfig  `yaml:"tracing"`
	Servers []ServerConfig `yaml:"servers"`
}

// GatewayConfig holds HTTP gateway configuration.
type GatewayConfig struct {
	Bind            string        `yaml:"bind"`
	Auth            AuthConfig    `yaml:"auth"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestsPerMin limits authenticated API requests per client address.
	// 0 disables the limit.
	RequestsPerMin int `yaml:"requests_per_min"`
}

// AuthConfig configures authentication for the decision API.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// PromptConfig selects the human-decision layer.
type PromptConfig struct {
	// Mode is one of terminal, auto_approve, auto_deny, off.
	Mode string `yaml:"mode"`
}

// SweepConfig controls the expiry sweeper that denies stale confirmations.
type SweepConfig struct {
	// Schedule is a five-field cron expression. Empty disables the sweeper.
	Schedule string `yaml:"schedule"`

	// MaxAge is how long a confirmation may stay pending before the
	// sweeper denies it.
	MaxAge time.Duration `yaml:"max_age"`
}

// AuditConfig controls the decision journal.
type AuditConfig struct {
	// Path is the SQLite database file. Empty disables the journal.
	Path string `yaml:"path"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/HTTP collector endpoint (host:port).
	Endpoint string `yaml:"endpoint"`
}

// ServerConfig describes one remote tool server.
type ServerConfig struct {
	// Name uniquely identifies the server and keys its confirmations.
	Name string `yaml:"name"`

	// Transport is stdio or http.
	Transport string `yaml:"transport"`

	// Command and Args launch a stdio server.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`

	// URL is the endpoint of an http server.
	URL string `yaml:"url"`

	// Confirm lists tool names that require user confirmation.
	Confirm []string `yaml:"confirm,omitempty"`

	// ConfirmAll gates every tool on this server.
	ConfirmAll bool `yaml:"confirm_all"`
}

// Defaults fills zero values with sensible defaults.
func (c *Config) Defaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Gateway.defaults()
	if c.Prompt.Mode == "" {
		c.Prompt.Mode = "off"
	}
	if c.Sweep.Schedule != "" && c.Sweep.MaxAge <= 0 {
		c.Sweep.MaxAge = 10 * time.Minute
	}
}

func (g *GatewayConfig) defaults() {
	if g.Bind == "" {
		g.Bind = "127.0.0.1:8080"
	}
	if g.ReadTimeout <= 0 {
		g.ReadTimeout = 10 * time.Second
	}
	if g.WriteTimeout <= 0 {
		g.WriteTimeout = 30 * time.Second
	}
	if g.ShutdownTimeout <= 0 {
		g.ShutdownTimeout = 5 * time.Second
	}
}
