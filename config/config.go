package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the agents backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	JWTSecret   string   `mapstructure:"jwt_secret"` // empty disables auth
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StoreConfig describes the embedded DuckDB analytical store.
type StoreConfig struct {
	Path       string `mapstructure:"path"`
	ReadOnly   bool   `mapstructure:"read_only"`
	AllowWrite bool   `mapstructure:"allow_write"`
	RowLimit   int    `mapstructure:"row_limit"`
}

// TransportConfig selects and tunes the tool-server transport.
type TransportConfig struct {
	Mode     string        `mapstructure:"mode"` // stdio or tcp
	Command  string        `mapstructure:"command"`
	Args     []string      `mapstructure:"args"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PoolSize int           `mapstructure:"pool_size"`
}

// Addr returns the host:port pair for the persistent transport.
func (t TransportConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// ClassifierConfig tunes intent classification.
type ClassifierConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// LLMConfig configures the external summarization provider.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CacheConfig configures the optional redis insights cache.
type CacheConfig struct {
	Host    string        `mapstructure:"host"` // empty disables caching
	Port    int           `mapstructure:"port"`
	Pass    string        `mapstructure:"pass"`
	DB      int           `mapstructure:"db"`
	TTL     time.Duration `mapstructure:"ttl"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WorkflowConfig bounds orchestrator concurrency.
type WorkflowConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
}

// Load reads configuration from an optional file plus AGENTS_* env vars.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("agents")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8100")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:3100"})

	v.SetDefault("store.path", "data/db/agents.duckdb")
	v.SetDefault("store.read_only", false)
	v.SetDefault("store.allow_write", false)
	v.SetDefault("store.row_limit", 1000)

	v.SetDefault("transport.mode", "stdio")
	v.SetDefault("transport.command", "mcpd")
	v.SetDefault("transport.args", []string{"--transport", "stdio"})
	v.SetDefault("transport.host", "127.0.0.1")
	v.SetDefault("transport.port", 8200)
	v.SetDefault("transport.timeout", 30*time.Second)
	v.SetDefault("transport.pool_size", 1)

	v.SetDefault("classifier.threshold", 0.1)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 800)
	v.SetDefault("llm.timeout", 45*time.Second)

	v.SetDefault("cache.port", 6379)
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.timeout", 2*time.Second)

	v.SetDefault("workflow.max_workers", 4)
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "tcp":
	default:
		return fmt.Errorf("transport.mode must be stdio or tcp, got %q", c.Transport.Mode)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.RowLimit < 1 {
		return fmt.Errorf("store.row_limit must be >= 1")
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return fmt.Errorf("classifier.threshold must be in [0, 1]")
	}
	if c.Workflow.MaxWorkers < 1 {
		return fmt.Errorf("workflow.max_workers must be >= 1")
	}
	if c.Transport.PoolSize < 1 {
		return fmt.Errorf("transport.pool_size must be >= 1")
	}
	return nil
}
