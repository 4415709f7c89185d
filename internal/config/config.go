// Package config handles YAML configuration loading with environment
// variable expansion and hot reload.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level wizard configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Policy    PolicyConfig    `yaml:"policy"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Sync      SyncConfig      `yaml:"sync"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// GatewayConfig holds completion gateway settings.
type GatewayConfig struct {
	LocalURL      string        `yaml:"local_url"`      // Ollama endpoint
	LocalTimeout  time.Duration `yaml:"local_timeout"`
	CloudURL      string        `yaml:"cloud_url"`      // OpenAI-compatible endpoint
	CloudKey      string        `yaml:"cloud_key"`      // usually ${WIZARD_KEY}
	CloudTimeout  time.Duration `yaml:"cloud_timeout"`
	GeneralModel  string        `yaml:"general_model"`
	CodeModel     string        `yaml:"code_model"`
	CloudModel    string        `yaml:"cloud_model"`
	DailyBudget   float64       `yaml:"daily_budget_usd"`
	MonthlyBudget float64       `yaml:"monthly_budget_usd"`
	RequestCap    int           `yaml:"daily_request_cap"` // 0 = uncapped
}

// PolicyConfig holds privacy policy settings.
type PolicyConfig struct {
	CloudEnabled bool `yaml:"cloud_enabled"`
	LocalOnly    bool `yaml:"local_only"` // hard kill switch, wins over cloud_enabled
}

// PairingConfig holds device pairing settings.
type PairingConfig struct {
	Address string        `yaml:"address"` // address advertised in QR payloads
	CodeTTL time.Duration `yaml:"code_ttl"`
}

// SyncConfig holds sync orchestrator settings.
type SyncConfig struct {
	DebounceSeconds int             `yaml:"debounce_seconds"`
	BatchSize       int             `yaml:"batch_size"`
	Providers       []ProviderEntry `yaml:"providers"`
}

// ProviderEntry is a sync provider definition in the config file.
type ProviderEntry struct {
	Key     string            `yaml:"key"` // "gmail", "jira", ...
	BaseURL string            `yaml:"base_url"`
	Options map[string]string `yaml:"options"`
	Enabled *bool             `yaml:"enabled"`
}

// IsEnabled reports whether the provider is enabled (defaults to true when nil).
func (p ProviderEntry) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// ListenAddr returns the address the HTTP server binds. Local-only mode
// pins the bind to loopback regardless of the configured address, so a
// local-only gateway is never reachable from the network.
func (c *Config) ListenAddr() string {
	if !c.Policy.LocalOnly {
		return c.Server.Addr
	}
	host, port, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return c.Server.Addr
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return c.Server.Addr
	}
	return net.JoinHostPort("127.0.0.1", port)
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment
// variables and applying environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    180 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			DSN: "wizard.db",
		},
		Gateway: GatewayConfig{
			LocalURL:      "http://localhost:11434",
			LocalTimeout:  120 * time.Second,
			CloudTimeout:  30 * time.Second,
			GeneralModel:  "llama3.2",
			CodeModel:     "qwen2.5-coder",
			CloudModel:    "gpt-4o-mini",
			DailyBudget:   5,
			MonthlyBudget: 50,
		},
		Policy: PolicyConfig{
			CloudEnabled: true,
		},
		Pairing: PairingConfig{
			CodeTTL: 5 * time.Minute,
		},
		Sync: SyncConfig{
			DebounceSeconds: 30,
			BatchSize:       50,
		},
	}
}

// applyEnv applies the environment overrides that must win over the file:
// WIZARD_LOCAL_ONLY forces local-only mode, WIZARD_KEY supplies the cloud
// key, VAULT_ROOT relocates the database next to the vault.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("WIZARD_LOCAL_ONLY"); ok {
		if b, err := strconv.ParseBool(v); err == nil && b {
			cfg.Policy.LocalOnly = true
			cfg.Policy.CloudEnabled = false
		}
	}
	if v := os.Getenv("WIZARD_KEY"); v != "" && cfg.Gateway.CloudKey == "" {
		cfg.Gateway.CloudKey = v
	}
	if root := os.Getenv("VAULT_ROOT"); root != "" && cfg.Database.DSN == "wizard.db" {
		cfg.Database.DSN = filepath.Join(root, ".wizard", "wizard.db")
	}
}
