package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "collector.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "videos", cfg.Store.Table)
	assert.Equal(t, "https://api.clipstream.example", cfg.Source.BaseURL)
	assert.Equal(t, "clipstream", cfg.Source.Platform)
	assert.InDelta(t, 5.0, cfg.Source.RPS, 0.001)
	assert.Equal(t, 100, cfg.Collect.MaxPages)
	assert.Equal(t, 500, cfg.Collect.SlotScan)
	assert.Equal(t, 5000, cfg.Collect.KeyScan)
	assert.Equal(t, 50, cfg.Collect.ChunkSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: notion
notion:
  token: secret-token
  database_id: abc123
collect:
  max_pages: 7
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "notion", cfg.Store.Driver)
	assert.Equal(t, "secret-token", cfg.Notion.Token)
	assert.Equal(t, "abc123", cfg.Notion.DatabaseID)
	assert.Equal(t, 7, cfg.Collect.MaxPages)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 50, cfg.Collect.ChunkSize)
}

func TestLoadFromEnv(t *testing.T) {
	chTempDir(t)
	t.Setenv("COLLECTOR_STORE_DRIVER", "postgres")
	t.Setenv("COLLECTOR_SOURCE_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "env-key", cfg.Source.Key)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	require.Error(t, InitLogger(LogConfig{Level: "not-a-level", Format: "json"}))
}

func TestLoadPresets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	doc := `
presets:
  minimal: [share_url, caption, views]
  commerce:
    - share_url
    - is_commercial
    - products
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p, err := LoadPresets(path)
	require.NoError(t, err)

	fields, err := p.Resolve("minimal")
	require.NoError(t, err)
	assert.Equal(t, []string{"share_url", "caption", "views"}, fields)

	_, err = p.Resolve("nope")
	require.Error(t, err)

	// Empty name means no selection at all.
	fields, err = p.Resolve("")
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestLoadPresets_MissingFileIsEmpty(t *testing.T) {
	p, err := LoadPresets(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, p.Presets)

	_, err = p.Resolve("anything")
	require.Error(t, err)
}
