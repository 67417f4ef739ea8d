// Package config defines the webpilot runtime configuration and safety policy.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level webpilot configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Policy   Policy         `json:"policy" yaml:"policy"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP/WebSocket server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., "127.0.0.1:8815"
}

// ProviderConfig selects the planner model backend.
type ProviderConfig struct {
	Name   string `json:"name" yaml:"name"` // "openai", "anthropic", "gemini"
	Model  string `json:"model,omitempty" yaml:"model"`
	APIKey string `json:"-" yaml:"-"` // environment only, never serialized
}

// Policy bounds what tasks are allowed to do. It is constructed once at
// startup and threaded explicitly; callers must treat it as immutable.
type Policy struct {
	MaxSteps            int      `json:"max_steps" yaml:"max_steps"`
	MaxParallelTasks    int      `json:"max_parallel_tasks" yaml:"max_parallel_tasks"`
	MaxWaitMs           int      `json:"max_wait_ms" yaml:"max_wait_ms"`
	BlockedOrigins      []string `json:"blocked_origins" yaml:"blocked_origins"`
	RestrictedSelectors []string `json:"restricted_selectors" yaml:"restricted_selectors"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:0", // loopback, OS-assigned port
		},
		Provider: ProviderConfig{
			Name: "openai",
		},
		Policy:   DefaultPolicy(),
		LogLevel: "info",
	}
}

// DefaultPolicy returns the built-in safety policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxSteps:         16,
		MaxParallelTasks: 1,
		MaxWaitMs:        15000,
		BlockedOrigins: []string{
			"chrome://",
			"chrome-extension://",
			"file://",
			"about:",
			"javascript:",
			"data:",
		},
		RestrictedSelectors: []string{
			`input[type="password"]`,
			`[autocomplete="current-password"]`,
			`[autocomplete="new-password"]`,
			`[data-sensitive]`,
		},
	}
}

// Load reads a YAML config file, applies environment overrides, and returns
// the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// FromEnv builds a config from defaults plus environment overrides, for
// deployments that run without a config file.
func FromEnv() *Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg
}

// applyEnv overlays the enumerated AGENT_* environment variables and the
// provider API keys onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("AGENT_MODEL_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	// "google" is accepted as an alias for the Gemini provider.
	if c.Provider.Name == "google" {
		c.Provider.Name = "gemini"
	}
	if v := os.Getenv("AGENT_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("AGENT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port >= 0 {
			c.Server.Addr = fmt.Sprintf("127.0.0.1:%d", port)
		}
	}

	switch c.Provider.Name {
	case "openai":
		c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		c.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		c.Provider.APIKey = os.Getenv("GOOGLE_GENERATIVE_AI_API_KEY")
		if c.Provider.APIKey == "" {
			c.Provider.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

// OriginBlocked reports whether url begins with a blocked origin prefix.
func (p Policy) OriginBlocked(url string) bool {
	for _, prefix := range p.BlockedOrigins {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// SelectorRestricted reports whether selector is on the restricted list.
func (p Policy) SelectorRestricted(selector string) bool {
	for _, s := range p.RestrictedSelectors {
		if s == selector {
			return true
		}
	}
	return false
}

// ClampWait bounds a requested wait duration (milliseconds) to MaxWaitMs.
// Non-positive requests resolve to MaxWaitMs.
func (p Policy) ClampWait(ms int) int {
	if ms <= 0 || ms > p.MaxWaitMs {
		return p.MaxWaitMs
	}
	return ms
}
