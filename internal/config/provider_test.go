package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	path := writeConfigFile(t, validYAML)

	provider, err := NewProvider(path)
	require.NoError(t, err)

	assert.Equal(t, path, provider.Path())
	cfg := provider.Snapshot()
	require.NotNil(t, cfg)
	assert.Equal(t, "gpt-4o", cfg.Models.Default)
}

func TestNewProvider_LoadFailure(t *testing.T) {
	_, err := NewProvider("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestProvider_Reload(t *testing.T) {
	path := writeConfigFile(t, validYAML)
	provider, err := NewProvider(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`
openai:
  base_url: "http://localhost:9000"
models:
  default: "gpt-5"
`), 0o644))

	require.NoError(t, provider.Reload())
	cfg := provider.Snapshot()
	assert.Equal(t, "gpt-5", cfg.Models.Default)
	assert.Equal(t, "http://localhost:9000", cfg.OpenAI.BaseURL)
}

func TestProvider_ReloadFailureKeepsPrevious(t *testing.T) {
	path := writeConfigFile(t, validYAML)
	provider, err := NewProvider(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("openai: [broken"), 0o644))

	require.Error(t, provider.Reload())
	cfg := provider.Snapshot()
	assert.Equal(t, "gpt-4o", cfg.Models.Default)
}
