package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load reads config.toml from the data directory, creating a default
// file on first run. Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	dataDir := cfg.DataDir()
	if err := EnsureDir(dataDir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	configPath := filepath.Join(dataDir, "config.toml")
	if !FileExists(configPath) {
		if err := writeDefaultConfig(configPath); err != nil {
			return nil, fmt.Errorf("failed to create config: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the config back to config.toml with secure permissions
// (0600 - the file can contain an API key).
func Save(cfg *Config) error {
	dataDir := cfg.DataDir()
	if err := EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	configPath := filepath.Join(dataDir, "config.toml")
	f, err := os.OpenFile(configPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

func writeDefaultConfig(configPath string) error {
	content := `# pfagent configuration

# Backend: "anthropic", "openai" (or any OpenAI-compatible endpoint via
# base_url), or "ollama" (local, no API key required).
provider = "ollama"

# base_url = "http://localhost:11434"
# model = "llama3.1"
# api_key = ""
# api_key_file = "~/.config/pfagent/api_key"

# Abort the execution loop on the first failed tool call.
strict_execution = false

# How many recent messages are replayed to the model (0 = none).
memory_limit = 10

max_tool_steps = 6
planner_max_steps = 6
max_retries = 2
retry_backoff_ms = 300

# Remote tool servers. Transport "http" speaks GET /tools + POST /call;
# "sse" connects to an MCP server over SSE.
# [[tool_server]]
# name = "notes"
# url = "http://localhost:8090"
# api_key = ""
# transport = "http"
`
	return os.WriteFile(configPath, []byte(content), 0600)
}
