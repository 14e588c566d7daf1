package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout.Duration())
	assert.Equal(t, 0.85, cfg.Chunker.SimilarityThreshold)
	assert.Equal(t, 1000, cfg.Chunker.WindowSize)
	assert.Equal(t, 100, cfg.Chunker.WindowOverlap)
	assert.Equal(t, 0.95, cfg.Facts.DedupThreshold)
	assert.Equal(t, 10, cfg.Facts.RebuildEvery)
	assert.Equal(t, 7, cfg.Conversation.HistoryDays)
	assert.Equal(t, 10, cfg.Conversation.HistoryLimit)
	assert.Equal(t, []string{".txt", ".md"}, cfg.Ingest.Extensions)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
data_dir: /var/lib/recalld
embedding:
  base_url: http://embed.internal:8080
  model: bge-small
  dimension: 384
  timeout: 5s
chunker:
  similarity_threshold: 0.8
facts:
  rebuild_every: 25
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/recalld", cfg.DataDir)
	assert.Equal(t, "http://embed.internal:8080", cfg.Embedding.BaseURL)
	assert.Equal(t, "bge-small", cfg.Embedding.Model)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout.Duration())
	assert.Equal(t, 0.8, cfg.Chunker.SimilarityThreshold)
	assert.Equal(t, 25, cfg.Facts.RebuildEvery)
	// Unset sections still receive defaults.
	assert.Equal(t, 0.95, cfg.Facts.DedupThreshold)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding:\n  model: from-file\n"), 0o600))

	t.Setenv("RECALLD_EMBEDDING__MODEL", "from-env")
	t.Setenv("RECALLD_DATA_DIR", "/tmp/recalld-env")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Embedding.Model)
	assert.Equal(t, "/tmp/recalld-env", cfg.DataDir)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding:\n  dimension: -3\n"), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - ["), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}
