// Package config provides hierarchical configuration loading for AgentLens.
// Precedence: defaults < YAML file < environment variables < CLI flags.
package config

import (
	"os"
	"path/filepath"
)

// Config holds all runtime configuration for the AgentLens service.
type Config struct {
	Server  Server  `yaml:"server"`
	MCP     MCP     `yaml:"mcp"`
	NATS    NATS    `yaml:"nats"`
	History History `yaml:"history"`
	Cache   Cache   `yaml:"cache"`
	Logging Logging `yaml:"logging"`
}

// Server holds the debug HTTP API configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// MCP holds the MCP endpoint configuration.
type MCP struct {
	Addr    string `yaml:"addr"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	APIKey  string `yaml:"api_key"`
}

// NATS holds NATS JetStream ingest configuration. The subscriber is
// optional; with Enabled false the service records only via HTTP.
type NATS struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// History holds tool call history persistence configuration.
type History struct {
	Path         string `yaml:"path"`            // JSONL log file location
	Cap          int    `yaml:"cap"`             // retained record count
	MaxLogSizeMB int64  `yaml:"max_log_size_mb"` // rotation threshold
}

// Cache holds snapshot cache configuration.
type Cache struct {
	L1MaxSizeMB int64 `yaml:"l1_max_size_mb"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		MCP: MCP{
			Addr:    ":3001",
			Name:    "agentlens",
			Version: "0.1.0",
		},
		NATS: NATS{
			URL:     "nats://localhost:4222",
			Enabled: false,
		},
		History: History{
			Path:         defaultHistoryPath(),
			Cap:          1000,
			MaxLogSizeMB: 64,
		},
		Cache: Cache{
			L1MaxSizeMB: 64,
		},
		Logging: Logging{
			Level:   "info",
			Service: "agentlens",
		},
	}
}

// defaultHistoryPath places the log under the user config directory,
// falling back to the working directory when it cannot be resolved.
func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tool-history.jsonl"
	}
	return filepath.Join(dir, "agentlens", "tool-history.jsonl")
}
