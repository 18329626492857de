package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readConfig(t *testing.T, path string) map[string]any {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded map[string]any
	require.NoError(t, json.Unmarshal(content, &loaded))
	return loaded
}

func TestSetupCmd_Run(t *testing.T) {
	t.Run("SetupQwenLocal", func(t *testing.T) {
		g, out := testGlobals(t)
		dir := t.TempDir()

		cmd := &SetupCmd{Qwen: true, Local: true, Format: "json", FilePath: dir}
		require.NoError(t, cmd.Run(g))

		assert.FileExists(t, filepath.Join(dir, "mcp.json"))
		assert.Contains(t, out.String(), "Created local Qwen MCP config")
	})

	t.Run("SetupQwenGlobal", func(t *testing.T) {
		tmpHome := t.TempDir()
		t.Setenv("HOME", tmpHome)
		g, _ := testGlobals(t)

		cmd := &SetupCmd{Qwen: true, Global: true, Format: "json"}
		require.NoError(t, cmd.Run(g))

		assert.FileExists(t, filepath.Join(tmpHome, ".qwen", "global", "mcp.json"))
	})

	t.Run("SetupClaude", func(t *testing.T) {
		g, _ := testGlobals(t)
		dir := t.TempDir()

		cmd := &SetupCmd{Claude: true, Format: "json", FilePath: dir}
		require.NoError(t, cmd.Run(g))

		config := readConfig(t, filepath.Join(dir, "settings.json"))
		servers := config["mcpServers"].(map[string]any)
		notemap := servers["notemap"].(map[string]any)
		assert.Equal(t, "notemap", notemap["command"])
		assert.Equal(t, []any{"mcp", "--store", g.Store}, notemap["args"])
	})

	t.Run("SetupCursorAndClaude", func(t *testing.T) {
		g, out := testGlobals(t)
		dir := t.TempDir()

		cmd := &SetupCmd{Cursor: true, Claude: true, Format: "text", FilePath: dir}
		require.NoError(t, cmd.Run(g))

		assert.FileExists(t, filepath.Join(dir, "mcp.json"))
		assert.FileExists(t, filepath.Join(dir, "settings.json"))
		assert.Contains(t, out.String(), "Claude")
		assert.Contains(t, out.String(), "Cursor")

		content, err := os.ReadFile(filepath.Join(dir, "mcp.json"))
		require.NoError(t, err)
		assert.Contains(t, string(content), "# MCP Configuration for notemap")
	})

	t.Run("SetupDefault", func(t *testing.T) {
		g, out := testGlobals(t)

		cmd := &SetupCmd{Format: "json"}
		require.NoError(t, cmd.Run(g))

		var config map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &config))
		assert.Contains(t, config, "mcpServers")
	})

	t.Run("SetupDefaultText", func(t *testing.T) {
		g, out := testGlobals(t)

		cmd := &SetupCmd{Format: "text"}
		require.NoError(t, cmd.Run(g))
		assert.Contains(t, out.String(), "# Add this to your MCP client configuration:")
		assert.Contains(t, out.String(), `mcpServers: {"notemap"`)
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		g, _ := testGlobals(t)

		cmd := &SetupCmd{Qwen: true, Format: "invalid"}
		assert.Error(t, cmd.Run(g))
	})
}

func TestGenerateMCPConfig(t *testing.T) {
	t.Parallel()

	config := generateMCPConfig("/data/.notemap")

	servers := config["mcpServers"].(map[string]any)
	notemap := servers["notemap"].(map[string]any)
	assert.Equal(t, "notemap", notemap["command"])
	assert.Equal(t, []string{"mcp", "--store", "/data/.notemap"}, notemap["args"])
}

func TestConfigPaths(t *testing.T) {
	t.Parallel()

	t.Run("GetLocalConfigPath", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		assert.Equal(t, filepath.Join(tmpDir, ".qwen", "mcp.json"), getLocalConfigPath(tmpDir, "qwen"))
	})

	t.Run("GetClientConfigDir", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, ".qwen", getClientConfigDir("qwen"))
		assert.Equal(t, ".claude", getClientConfigDir("claude"))
		assert.Equal(t, ".cursor", getClientConfigDir("cursor"))
		assert.Equal(t, ".qwen", getClientConfigDir("unknown"))
	})
}

func TestWriteConfig(t *testing.T) {
	t.Parallel()

	t.Run("WriteJSONConfig", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), "config.json")

		require.NoError(t, writeConfig(configPath, generateMCPConfig("/data"), "json"))
		assert.Contains(t, readConfig(t, configPath), "mcpServers")
	})

	t.Run("WriteConfigCreatesDirectory", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), "nested", "dir", "config.json")

		require.NoError(t, writeConfig(configPath, map[string]any{"test": "value"}, "json"))
		assert.FileExists(t, configPath)
	})
}
