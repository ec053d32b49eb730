package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/sqlpilot/internal/db"
)

// Config holds the full application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Agent     AgentConfig     `yaml:"agent" mapstructure:"agent"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DatabaseConfig points at the target database queried by the agent.
type DatabaseConfig struct {
	URL  string        `yaml:"url" mapstructure:"url"`
	Pool db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// StoreConfig configures the interaction log sink.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds API credentials and the per-tier model mapping.
// Each complexity tier routes to exactly one model.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	SimpleModel       string  `yaml:"simple_model" mapstructure:"simple_model"`
	MediumModel       string  `yaml:"medium_model" mapstructure:"medium_model"`
	HardModel         string  `yaml:"hard_model" mapstructure:"hard_model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// AgentConfig configures the retry orchestrator.
type AgentConfig struct {
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	KeywordsFile   string `yaml:"keywords_file" mapstructure:"keywords_file"`
	RulesFile      string `yaml:"rules_file" mapstructure:"rules_file"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// ServerConfig configures the JSON API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SQLPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sqlpilot.db")
	v.SetDefault("anthropic.simple_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.medium_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.hard_model", "claude-opus-4-6")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("agent.max_attempts", 3)
	v.SetDefault("agent.retry_backoff_ms", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
