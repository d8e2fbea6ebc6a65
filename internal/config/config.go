package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds application configuration
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	AI     AIConfig     `yaml:"ai" mapstructure:"ai"`
	Upload UploadConfig `yaml:"upload" mapstructure:"upload"`
	Gmail  GmailConfig  `yaml:"gmail" mapstructure:"gmail"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and locates the candidate database
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// AIConfig configures the mapping suggester backend
type AIConfig struct {
	Provider          string        `yaml:"provider" mapstructure:"provider"`
	Project           string        `yaml:"project" mapstructure:"project"`
	Location          string        `yaml:"location" mapstructure:"location"`
	CredentialsPath   string        `yaml:"credentials_path" mapstructure:"credentials_path"`
	Model             string        `yaml:"model" mapstructure:"model"`
	AnthropicKey      string        `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel    string        `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	Temperature       float32       `yaml:"temperature" mapstructure:"temperature"`
	MaxOutputTokens   int32         `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// UploadConfig bounds spreadsheet uploads
type UploadConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	MaxSizeMB  int64  `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	SampleRows int    `yaml:"sample_rows" mapstructure:"sample_rows"`
}

// GmailConfig locates the OAuth files for the Gmail source
type GmailConfig struct {
	CredentialsPath string `yaml:"credentials_path" mapstructure:"credentials_path"`
	TokenPath       string `yaml:"token_path" mapstructure:"token_path"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures the global zap logger
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AI providers
const (
	ProviderNone      = "none"
	ProviderVertex    = "vertex"
	ProviderAnthropic = "anthropic"
)

// Load reads config.yaml from the working directory (if present) and
// TALENT_* environment variables on top of the defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TALENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "talent.db")
	v.SetDefault("store.max_conns", 10)

	v.SetDefault("ai.provider", ProviderNone)
	v.SetDefault("ai.location", "us-central1")
	v.SetDefault("ai.model", "gemini-1.5-flash")
	v.SetDefault("ai.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.max_output_tokens", 1024)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.retry_backoff", time.Second)
	v.SetDefault("ai.requests_per_minute", 30)

	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_size_mb", 32)
	v.SetDefault("upload.sample_rows", 3)

	v.SetDefault("gmail.credentials_path", "credentials.json")
	v.SetDefault("gmail.token_path", "token.json")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}

	switch c.AI.Provider {
	case ProviderNone, "":
	case ProviderVertex:
		if c.AI.Project == "" {
			return eris.New("config: ai.project is required for the vertex provider")
		}
		if c.AI.Location == "" {
			return eris.New("config: ai.location is required for the vertex provider")
		}
		if c.AI.CredentialsPath != "" {
			if _, err := os.Stat(c.AI.CredentialsPath); err != nil {
				return eris.Wrap(err, "config: google credentials file not found")
			}
		}
	case ProviderAnthropic:
		if c.AI.AnthropicKey == "" {
			return eris.New("config: ai.anthropic_key is required for the anthropic provider")
		}
	default:
		return eris.Errorf("config: unknown ai provider %q", c.AI.Provider)
	}

	if c.AI.MaxRetries < 0 {
		return eris.New("config: ai.max_retries must not be negative")
	}
	if c.Upload.SampleRows <= 0 {
		return eris.New("config: upload.sample_rows must be positive")
	}
	return nil
}

// ValidateGmail checks that the Gmail OAuth client secrets exist
func (c *Config) ValidateGmail() error {
	if c.Gmail.CredentialsPath == "" {
		return eris.New("config: gmail.credentials_path is required")
	}
	if _, err := os.Stat(c.Gmail.CredentialsPath); err != nil {
		return eris.Wrap(err, "config: gmail credentials file not found")
	}
	return nil
}

// ApplyToEnv exports the Google credentials path for the Vertex AI SDK
func (c *Config) ApplyToEnv() {
	if c.AI.CredentialsPath != "" {
		os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", c.AI.CredentialsPath)
	}
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
