package config

import (
	"os"
	"path/filepath"
	"testing"

	"refactchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, "http://127.0.0.1:8001", cfg.LSPBaseURL())
	assert.Equal(t, models.ToolUseAgent, cfg.ToolUse())
	assert.Equal(t, 15, cfg.Chat.MaxToolIterations)
	assert.Equal(t, 3, cfg.LSP.MaxRetries)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadExpandsEnvAndFillsDefaults(t *testing.T) {
	t.Setenv("REFACT_TEST_KEY", "sk-from-env")
	path := writeConfig(t, `
lsp:
  port: 8488
cloud:
  api_key: ${REFACT_TEST_KEY}
chat:
  tool_use: explore
  model: gpt-4o-mini
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Cloud.APIKey)
	assert.Equal(t, 8488, cfg.LSP.Port)
	assert.Equal(t, "127.0.0.1", cfg.LSP.Address)
	assert.Equal(t, models.ToolUseExplore, cfg.ToolUse())
	assert.Equal(t, "gpt-4o-mini", cfg.Chat.Model)
	assert.Equal(t, 4096, cfg.Chat.MaxNewTokens)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "chat:\n  tool_use: yolo\n"))
	assert.ErrorContains(t, err, "tool_use")

	_, err = Load(writeConfig(t, "lsp:\n  port: 70000\n"))
	assert.ErrorContains(t, err, "lsp.port")

	_, err = Load(writeConfig(t, "lsp: [\n"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := defaultConfig()
	cfg.Cloud.APIKey = "sk-saved"
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
