package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// mcpServerKey names this server inside the client's mcpServers map.
const mcpServerKey = "geoquery"

// credentialEnv is copied into the client config when set, so the client
// starts the server with working credentials.
var credentialEnv = []string{
	"SMITHERY_API_KEY",
	"SMITHERY_PROFILE_ID",
	"MAPBOX_ACCESS_TOKEN",
	"MCP_SERVER_URL",
	"GEOQUERY_TOOLS",
}

func validateConfigPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.New("config path is empty")
	}
	if !strings.EqualFold(filepath.Ext(p), ".json") {
		return fmt.Errorf("config path %q must end in .json", p)
	}
	if slices.Contains(strings.Split(filepath.ToSlash(p), "/"), "..") {
		return fmt.Errorf("config path %q must not contain ..", p)
	}
	return nil
}

// generateClientConfig creates or updates a Claude Desktop client config
// file, keeping every entry it does not own.
func generateClientConfig(outputPath string) error {
	if err := validateConfigPath(outputPath); err != nil {
		return err
	}
	logger := slog.Default()

	execPath, err := os.Executable()
	if err != nil {
		execPath = os.Args[0]
	}
	absExecPath, err := filepath.Abs(execPath)
	if err != nil {
		absExecPath = execPath
	}

	entry := map[string]any{
		"command": absExecPath,
		"args":    []string{"mcp"},
	}
	env := map[string]string{}
	for _, k := range credentialEnv {
		if v := os.Getenv(k); v != "" {
			env[k] = v
		}
	}
	if len(env) > 0 {
		entry["env"] = env
	}

	cfg := map[string]any{}
	if data, err := os.ReadFile(outputPath); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			logger.Warn("existing config is not valid JSON, will create new", "error", err)
			cfg = map[string]any{}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read existing config: %w", err)
	}

	servers, ok := cfg["mcpServers"].(map[string]any)
	if !ok {
		servers = map[string]any{}
		cfg["mcpServers"] = servers
	}
	servers[mcpServerKey] = entry

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	// credentials may be inside
	if err := os.WriteFile(outputPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(outputPath, 0o600)
}
