package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoPostCommandRequiresDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9000\"\n"), 0o600))

	err := executeContext(context.Background(), "autopost", "--config", path, "--env-file", filepath.Join(dir, "missing.env"))
	assert.ErrorContains(t, err, "requires a database")
}

func TestAutoPostCommandRunsSweep(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "database:\n  type: sqlite\n  file_path: " + filepath.Join(dir, "edge.db") + "\n  auto_migrate: true\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	err := executeContext(context.Background(), "autopost", "--config", path, "--env-file", filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}

func TestLoadConfigRejectsBadExtension(t *testing.T) {
	err := executeContext(context.Background(), "serve", "--config", "config.json")
	assert.ErrorContains(t, err, "only .yaml and .yml")
}
