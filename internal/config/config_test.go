package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "talent.db", cfg.Store.DatabaseURL)
	assert.Equal(t, ProviderNone, cfg.AI.Provider)
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.Model)
	assert.InDelta(t, 0.1, cfg.AI.Temperature, 0.001)
	assert.Equal(t, int32(1024), cfg.AI.MaxOutputTokens)
	assert.Equal(t, 2, cfg.AI.MaxRetries)
	assert.Equal(t, time.Second, cfg.AI.RetryBackoff)
	assert.Equal(t, 3, cfg.Upload.SampleRows)
	assert.Equal(t, "uploads", cfg.Upload.Dir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/talent
ai:
  provider: anthropic
  anthropic_key: sk-test
  retry_backoff: 250ms
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/talent", cfg.Store.DatabaseURL)
	assert.Equal(t, ProviderAnthropic, cfg.AI.Provider)
	assert.Equal(t, 250*time.Millisecond, cfg.AI.RetryBackoff)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TALENT_STORE_DRIVER", "postgres")
	t.Setenv("TALENT_SERVER_PORT", "7000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Store:  StoreConfig{Driver: "sqlite", DatabaseURL: "x.db"},
			AI:     AIConfig{Provider: ProviderNone, MaxRetries: 2},
			Upload: UploadConfig{SampleRows: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }, "unknown store driver"},
		{"empty dsn", func(c *Config) { c.Store.DatabaseURL = "" }, "database_url is required"},
		{"vertex without project", func(c *Config) { c.AI.Provider = ProviderVertex; c.AI.Location = "us" }, "ai.project is required"},
		{"anthropic without key", func(c *Config) { c.AI.Provider = ProviderAnthropic }, "anthropic_key is required"},
		{"unknown provider", func(c *Config) { c.AI.Provider = "openai" }, "unknown ai provider"},
		{"negative retries", func(c *Config) { c.AI.MaxRetries = -1 }, "max_retries"},
		{"zero sample rows", func(c *Config) { c.Upload.SampleRows = 0 }, "sample_rows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateGmail(t *testing.T) {
	dir := t.TempDir()
	c := &Config{Gmail: GmailConfig{CredentialsPath: filepath.Join(dir, "missing.json")}}
	require.Error(t, c.ValidateGmail())

	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	c.Gmail.CredentialsPath = path
	assert.NoError(t, c.ValidateGmail())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}
