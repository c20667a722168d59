package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meysamhadeli/codgrade/retrieval"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigs_Defaults(t *testing.T) {
	cfg, err := LoadConfigs(nil, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.MaxConcurrency)
	assert.Equal(t, "heuristic", cfg.Retrieval.Mode)
	assert.Equal(t, "javac", cfg.Toolchain.Javac)
	assert.Equal(t, 60*time.Second, cfg.ToolchainTimeout())
	require.NotNil(t, cfg.AIProviderConfig)
	assert.Equal(t, "openai", cfg.AIProviderConfig.Provider)

	opts, err := cfg.Retrieval.Options()
	require.NoError(t, err)
	assert.Equal(t, retrieval.DefaultOptions(), opts)
}

func TestLoadConfigs_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	content := `
log_level: debug
max_concurrency: 4
retrieval:
  window: 5
  max_chars: 2000
toolchain:
  junit_launcher: /opt/junit/console.jar
  classpath: [/opt/junit/api.jar]
  timeout: 30s
ai_provider_config:
  provider: ollama
  model: qwen2.5-coder
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codgrade-config.yml"), []byte(content), 0o644))
	t.Setenv("CODGRADE_RETRIEVAL_MODE", "active")

	root := &cobra.Command{Use: "codgrade"}
	InitFlags(root)
	require.NoError(t, root.PersistentFlags().Set("max_concurrency", "2"))

	cfg, err := LoadConfigs(root, dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.MaxConcurrency)
	assert.Equal(t, "/opt/junit/console.jar", cfg.Toolchain.JUnitLauncher)
	assert.Equal(t, []string{"/opt/junit/api.jar"}, cfg.Toolchain.Classpath)
	assert.Equal(t, 30*time.Second, cfg.Toolchain.Timeout)
	assert.Equal(t, "ollama", cfg.AIProviderConfig.Provider)
	assert.Equal(t, "qwen2.5-coder", cfg.AIProviderConfig.Model)

	opts, err := cfg.Retrieval.Options()
	require.NoError(t, err)
	assert.Equal(t, retrieval.ModeActive, opts.Mode)
	assert.Equal(t, 5, opts.Window)
	assert.Equal(t, 2000, opts.MaxChars)
}

func TestLoadConfigs_UnknownRetrievalMode(t *testing.T) {
	t.Setenv("CODGRADE_RETRIEVAL_MODE", "psychic")
	_, err := LoadConfigs(nil, t.TempDir())
	assert.Error(t, err)
}
