package setup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), BinaryName)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
	return path
}

func TestRegister_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client", "config.json")
	binary := fakeBinary(t)

	written, err := Register(Options{ConfigPath: path, BinaryPath: binary, DataDir: "/data/mvi"})
	require.NoError(t, err)
	assert.Equal(t, path, written)

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	entry := cfg.MCPServers[ServerName]
	assert.Equal(t, binary, entry.Command)
	assert.Equal(t, "/data/mvi", entry.Env["MVI_DATA_DIR"])
}

func TestRegister_PreservesOtherEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	existing := `{"theme":"dark","mcpServers":{"other":{"command":"/bin/other"}}}`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0644))

	_, err := Register(Options{ConfigPath: path, BinaryPath: fakeBinary(t), Env: map[string]string{"MVI_LOG_LEVEL": "debug"}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "dark", raw["theme"])

	servers := raw["mcpServers"].(map[string]any)
	assert.Contains(t, servers, "other")
	assert.Contains(t, servers, ServerName)
	assert.Equal(t, "debug", servers[ServerName].(map[string]any)["env"].(map[string]any)["MVI_LOG_LEVEL"])
}

func TestLoadClientConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))

	_, err := LoadClientConfig(path)
	assert.Error(t, err)
}

func TestInspectAndUnregister(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	status, err := Inspect(path)
	require.NoError(t, err)
	assert.False(t, status.Registered)

	missingData := filepath.Join(t.TempDir(), "not-yet")
	_, err = Register(Options{ConfigPath: path, BinaryPath: fakeBinary(t), DataDir: missingData})
	require.NoError(t, err)

	status, err = Inspect(path)
	require.NoError(t, err)
	assert.True(t, status.Registered)
	assert.Equal(t, missingData, status.DataDir)
	require.Len(t, status.Issues, 1)
	assert.Contains(t, status.Issues[0], "will be created")

	removed, err := Unregister(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = Unregister(path)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestInspect_MissingBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := Register(Options{ConfigPath: path, BinaryPath: "/nonexistent/" + BinaryName})
	require.NoError(t, err)

	status, err := Inspect(path)
	require.NoError(t, err)
	require.Len(t, status.Issues, 1)
	assert.Contains(t, status.Issues[0], "not found")
}
