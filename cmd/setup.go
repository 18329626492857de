package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// mcpClient describes where an MCP client looks for its configuration.
type mcpClient struct {
	name      string
	label     string
	configDir string
	localFile string
}

var mcpClients = []mcpClient{
	{name: "qwen", label: "Qwen", configDir: ".qwen", localFile: "mcp.json"},
	{name: "claude", label: "Claude", configDir: ".claude", localFile: "settings.json"},
	{name: "cursor", label: "Cursor", configDir: ".cursor", localFile: "mcp.json"},
}

// SetupCmd configures MCP for various AI clients.
type SetupCmd struct {
	Qwen     bool   `help:"Configure for Qwen CLI"`
	Claude   bool   `help:"Configure for Claude Code"`
	Cursor   bool   `help:"Configure for Cursor"`
	Local    bool   `help:"Create project-local configuration"`
	Global   bool   `help:"Create global configuration"`
	Format   string `help:"Output format (json|text)" enum:"json,text" default:"json"`
	FilePath string `help:"Custom directory for the local configuration"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(g *Globals) error {
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Format)
	}

	storeDir, err := filepath.Abs(g.Store)
	if err != nil {
		return fmt.Errorf("resolving store path: %w", err)
	}
	config := generateMCPConfig(storeDir)

	selected := c.selected()
	if len(selected) == 0 {
		return c.outputDefaultConfig(g, config)
	}

	if !c.Local && !c.Global {
		c.Local = true
	}

	for _, client := range selected {
		if err := c.setup(g, client, config); err != nil {
			return err
		}
	}
	return nil
}

func (c *SetupCmd) selected() []mcpClient {
	want := map[string]bool{
		"qwen":   c.Qwen,
		"claude": c.Claude,
		"cursor": c.Cursor,
	}
	var out []mcpClient
	for _, client := range mcpClients {
		if want[client.name] {
			out = append(out, client)
		}
	}
	return out
}

func (c *SetupCmd) outputDefaultConfig(g *Globals, config map[string]any) error {
	w := g.out()
	if c.Format == "json" {
		jsonBytes, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(jsonBytes))
		return nil
	}

	fmt.Fprintln(w, "# Add this to your MCP client configuration:")
	fmt.Fprintln(w)
	for key, value := range config {
		fmt.Fprintf(w, "%s: %s\n", key, toJSON(value))
	}
	return nil
}

func (c *SetupCmd) setup(g *Globals, client mcpClient, config map[string]any) error {
	green := color.New(color.FgGreen)

	if c.Global {
		globalPath := getGlobalConfigPath(client.name)
		if err := writeConfig(globalPath, config, c.Format); err != nil {
			return err
		}
		green.Fprintf(g.out(), "✓ Created global %s MCP config at %s\n", client.label, globalPath)
	}

	if c.Local {
		localPath := getLocalConfigPath(".", client.name)
		if c.FilePath != "" {
			localPath = filepath.Join(c.FilePath, client.localFile)
		}
		if err := writeConfig(localPath, config, c.Format); err != nil {
			return err
		}
		green.Fprintf(g.out(), "✓ Created local %s MCP config at %s\n", client.label, localPath)
	}
	return nil
}

// generateMCPConfig points an MCP client at "notemap mcp" over storeDir.
func generateMCPConfig(storeDir string) map[string]any {
	return map[string]any{
		"mcpServers": map[string]any{
			"notemap": map[string]any{
				"command": "notemap",
				"args":    []string{"mcp", "--store", storeDir},
			},
		},
	}
}

func getLocalConfigPath(basePath, client string) string {
	return filepath.Join(basePath, getClientConfigDir(client), "mcp.json")
}

func getGlobalConfigPath(client string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, getClientConfigDir(client), "global", "mcp.json")
}

func getClientConfigDir(client string) string {
	for _, c := range mcpClients {
		if c.name == client {
			return c.configDir
		}
	}
	return mcpClients[0].configDir
}

func writeConfig(configPath string, config map[string]any, format string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	var content []byte
	if format == "json" {
		var err error
		content, err = json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		content = append(content, '\n')
	} else {
		var sb strings.Builder
		sb.WriteString("# MCP Configuration for notemap\n")
		sb.WriteString("# Generated by notemap setup\n\n")
		for key, value := range config {
			fmt.Fprintf(&sb, "%s: %s\n", key, toJSON(value))
		}
		content = []byte(sb.String())
	}

	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// CleanCmd deletes the note store.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(g *Globals) error {
	w := g.out()
	if _, err := os.Stat(g.Store); os.IsNotExist(err) {
		return fmt.Errorf("no store found at %s. Nothing to clean", g.Store)
	}

	if !c.Force {
		fmt.Fprintf(w, "Delete store at %s? [y/N] ", g.Store)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(w, "Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(g.Store); err != nil {
		return fmt.Errorf("deleting store: %w", err)
	}

	color.New(color.FgGreen).Fprintf(w, "Deleted %s\n", g.Store)
	return nil
}
