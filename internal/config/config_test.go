package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/config"
)

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Server.EnableStdio)
	assert.Equal(t, 0.6, cfg.Search.VectorWeight)
	assert.Equal(t, 0.4, cfg.Search.KeywordWeight)
	assert.Equal(t, 500*time.Millisecond, cfg.Search.PerArmTimeout)
	assert.Equal(t, 60, cfg.RateLimit.DefaultPerMinute)
	assert.Equal(t, 1024, cfg.Audit.QueueSize)
}

func TestLoad_EnvironmentVariableOverridesDefault(t *testing.T) {
	require.NoError(t, os.Setenv("RAG_SERVER_LISTEN_ADDRESS", ":9090"))
	t.Cleanup(func() { os.Unsetenv("RAG_SERVER_LISTEN_ADDRESS") })

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
}

func TestLoad_MissingConfigFileIsNotAnError(t *testing.T) {
	_, err := config.Load("/nonexistent/path/to/config.yaml")
	require.NoError(t, err)
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_address: \":7777\"\nrate_limit:\n  default_per_minute: 120\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.ListenAddress)
	assert.Equal(t, 120, cfg.RateLimit.DefaultPerMinute)
}
