package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
)

// Config holds the RadiologyAI service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Watch      WatchConfig      `yaml:"watch"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Index      IndexConfig      `yaml:"index"`
	Logging    LoggingConfig    `yaml:"logging"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// WatchConfig holds filesystem watch settings.
type WatchConfig struct {
	Dir       string `yaml:"dir"`
	QueueSize int    `yaml:"queue_size"`
}

// ExtractionConfig holds parsing provider and extraction pipeline settings.
type ExtractionConfig struct {
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	TimeoutSec    int     `yaml:"timeout_sec"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	MinConfidence float64 `yaml:"min_confidence"`
	CacheTTLHours int     `yaml:"cache_ttl_hours"`
	Workers       int     `yaml:"workers"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// GenerationConfig holds chat completion provider settings.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopK        int     `yaml:"top_k"`
}

// AlertsConfig holds alert broker settings.
type AlertsConfig struct {
	Threshold string `yaml:"threshold"` // minimum severity that produces an alert
	QueueSize int    `yaml:"queue_size"`
	Retention int    `yaml:"retention"`
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// MCPConfig holds MCP tool server settings.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"` // stdio, http (default: stdio)
	Addr      string `yaml:"addr"`      // http transport only
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Watch.QueueSize <= 0 {
		c.Watch.QueueSize = 256
	}
	if c.Extraction.TimeoutSec <= 0 {
		c.Extraction.TimeoutSec = 30
	}
	if c.Extraction.RatePerSecond <= 0 {
		c.Extraction.RatePerSecond = 2
	}
	if c.Extraction.Burst <= 0 {
		c.Extraction.Burst = 1
	}
	if c.Extraction.MinConfidence <= 0 {
		c.Extraction.MinConfidence = 0.7
	}
	if c.Extraction.CacheTTLHours <= 0 {
		c.Extraction.CacheTTLHours = 168
	}
	if c.Extraction.Workers <= 0 {
		c.Extraction.Workers = 4
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = "openai"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o-mini"
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 1024
	}
	if c.Generation.TopK <= 0 {
		c.Generation.TopK = 6
	}
	if c.Alerts.Threshold == "" {
		c.Alerts.Threshold = string(triage.SeverityOrange)
	}
	if c.Alerts.QueueSize <= 0 {
		c.Alerts.QueueSize = 64
	}
	if c.Alerts.Retention <= 0 {
		c.Alerts.Retention = 100
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.MCP.Transport == "" {
		c.MCP.Transport = "stdio"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Watch.Dir == "" {
		return fmt.Errorf("watch.dir is required")
	}
	if c.Extraction.MinConfidence > 1 {
		return fmt.Errorf("extraction.min_confidence must be at most 1, got %g", c.Extraction.MinConfidence)
	}
	if _, err := triage.ParseSeverity(c.Alerts.Threshold); err != nil {
		return fmt.Errorf("alerts.threshold: %w", err)
	}
	switch c.MCP.Transport {
	case "stdio", "http":
		// ok
	default:
		return fmt.Errorf("mcp.transport must be \"stdio\" or \"http\", got %q", c.MCP.Transport)
	}
	if c.MCP.Enabled && c.MCP.Transport == "http" && c.MCP.Addr == "" {
		return fmt.Errorf("mcp.addr is required for http transport")
	}
	return nil
}

// AlertThreshold returns the parsed alert severity threshold.
// Call only after Validate.
func (c *Config) AlertThreshold() triage.Severity {
	s, _ := triage.ParseSeverity(c.Alerts.Threshold)
	return s
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
