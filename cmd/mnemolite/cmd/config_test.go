package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit_WritesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cmd := newConfigCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"init"})

	err := cmd.Execute()

	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "mnemolite.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "search:")
	assert.Contains(t, string(data), "workers:")
	assert.Contains(t, buf.String(), "mnemolite.yaml")
}

func TestConfigInit_RefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "mnemolite.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	cmd := newConfigCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"init"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// The existing file is untouched.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestConfigInit_ForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "mnemolite.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	cmd := newConfigCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"init", "--force"})

	err := cmd.Execute()

	require.NoError(t, err)
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "search:")
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
