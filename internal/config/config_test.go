package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// These tests set process env and cannot run in parallel.

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("BANKCAT_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	data := filepath.Join(home, ".local", "share", "bankcat")
	require.Equal(t, data, cfg.Data.Dir)
	require.Equal(t, filepath.Join(data, "categories", "categories.json"), cfg.Documents.Categories)
	require.Equal(t, filepath.Join(data, "categories", "categorization_rules.json"), cfg.Documents.Rules)
	require.Equal(t, filepath.Join(data, "bankcat.db"), cfg.Database.Path)
	require.Equal(t, 0.7, cfg.ML.ConfidenceThreshold)
	require.Equal(t, 0.2, cfg.ML.TestSize)
	require.EqualValues(t, 42, cfg.ML.RandomState)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "bankcat.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[data]
dir = "/srv/bankcat"

[model]
path = "/models/m.gob"

[ml]
confidence_threshold = 0.9
`), 0o600))
	t.Setenv("BANKCAT_CONFIG", path)
	t.Setenv("BANKCAT_LOG_LEVEL", "debug")
	t.Setenv("BANKCAT_ML_INCLUDE_AUTOMATED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/srv/bankcat", cfg.Data.Dir)
	require.Equal(t, "/models/m.gob", cfg.Model.Path)
	require.Equal(t, filepath.Join("/srv/bankcat", "backups"), cfg.Backup.Dir)
	require.Equal(t, 0.9, cfg.ML.ConfidenceThreshold)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.ML.IncludeAutomated)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[data\ndir ="), 0o600))
	t.Setenv("BANKCAT_CONFIG", path)

	_, err := Load()
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("BANKCAT_CONFIG", filepath.Join(dir, "conf", "config.toml"))

	cfg := Config{Data: DataConfig{Dir: filepath.Join(dir, "data")}}
	cfg.ML.ConfidenceThreshold = 0.8
	cfg.ML.TestSize = 0.25
	cfg.Log.Level = "warn"
	require.NoError(t, Save(cfg))

	got, err := Load()
	require.NoError(t, err)
	require.Equal(t, cfg.Data.Dir, got.Data.Dir)
	require.Equal(t, 0.8, got.ML.ConfidenceThreshold)
	require.Equal(t, 0.25, got.ML.TestSize)
	require.Equal(t, "warn", got.Log.Level)
	require.Equal(t, filepath.Join(dir, "data", "exports"), got.Import.Dir)
}
