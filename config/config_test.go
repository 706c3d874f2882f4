package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
embedding:
  model: text-embedding-3-small
  dimensions: 1536
scheduler:
  interval: 5s
server:
  listen: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, ":9090", cfg.Server.Listen)

	// Untouched fields keep defaults.
	assert.Equal(t, "http://localhost:6333", cfg.Vector.URL)
	assert.Equal(t, 60, cfg.Gateway.FusionConstant)
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	t.Setenv("CORPUS_EMBEDDING_TOKEN", "tok-123")
	t.Setenv("CORPUS_QDRANT_API_KEY", "qk-456")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cfg.Embedding.Token)
	assert.Equal(t, "qk-456", cfg.Vector.APIKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  batch_size: 0
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateStoragePath(t *testing.T) {
	cfg := Default()
	cfg.Storage.Path = ""
	assert.Error(t, cfg.Validate())

	cfg.Storage.InMemory = true
	assert.NoError(t, cfg.Validate())
}
