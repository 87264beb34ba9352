package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
job:
  input_data: "[]"
  checkpoint_path: checkpoint.json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Job.Concurrency)
	assert.Equal(t, 3, cfg.Job.GetMaxRetries())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "simple", cfg.LogFormat)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadAcceptsInvalidJobButValidateRejectsIt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job:\n  concurrency: 1\n"), 0o644))

	_, err := Load(path)
	require.NoError(t, err) // Load itself does not call Validate

	cfg, _ := Load(path)
	assert.Error(t, cfg.Validate())
}
