package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/stepfly/internal/config"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Scheduler.Concurrency)
	require.Equal(t, time.Second, cfg.Scheduler.PollInterval)
	require.Equal(t, "fake", cfg.LLM.Provider)
	require.True(t, cfg.Tools.EnablePlugins)
}

func TestLoadBindsUnprefixedAPIKeyEnvVars(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-value")
	t.Setenv("OPENAI_API_KEY", "sk-oai-test-value")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "sk-ant-test-value", cfg.LLM.AnthropicAPIKey)
	require.Equal(t, "sk-oai-test-value", cfg.LLM.OpenAIAPIKey)
}

func TestLoadPrefixedEnvOverridesDefault(t *testing.T) {
	t.Setenv("STEPFLY_LLM_PROVIDER", "anthropic")
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestLoadReturnsErrorForMissingConfigFile(t *testing.T) {
	_, err := config.Load("/nonexistent/path/to/stepfly.yaml")
	require.Error(t, err)
}

func TestLoadFromFileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/stepfly.yaml"
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  concurrency: 7\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Scheduler.Concurrency)
}
