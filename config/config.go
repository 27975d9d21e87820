package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ToolServer describes one configured remote tool server.
// Transport "http" is the plain tool-server contract (GET /tools,
// POST /call); "sse" is an MCP server reached over SSE.
type ToolServer struct {
	Name      string `toml:"name"`
	URL       string `toml:"url"`
	APIKey    string `toml:"api_key,omitempty"`
	Transport string `toml:"transport,omitempty"`
}

// Config holds all engine settings. Loaded from config.toml in the data
// directory; a default file is created on first run.
type Config struct {
	Provider        string `toml:"provider"`
	BaseURL         string `toml:"base_url,omitempty"`
	Model           string `toml:"model,omitempty"`
	APIKey          string `toml:"api_key,omitempty"`
	APIKeyFile      string `toml:"api_key_file,omitempty"`
	StrictExecution bool   `toml:"strict_execution"`
	MemoryLimit     int    `toml:"memory_limit"`
	MaxToolSteps    int    `toml:"max_tool_steps"`
	PlannerMaxSteps int    `toml:"planner_max_steps"`
	MaxRetries      int    `toml:"max_retries"`
	RetryBackoffMS  int    `toml:"retry_backoff_ms"`
	DataDirectory   string `toml:"data_directory,omitempty"`

	ToolServers []ToolServer `toml:"tool_server"`
}

var Debug = false
var DebugLog *log.Logger

// Default budgets. MemoryLimit 0 is meaningful (no history replayed), so
// defaults are applied only for fields left at their zero value where
// zero has no meaning.
func DefaultConfig() *Config {
	return &Config{
		Provider:        "ollama",
		MemoryLimit:     10,
		MaxToolSteps:    6,
		PlannerMaxSteps: 6,
		MaxRetries:      2,
		RetryBackoffMS:  300,
	}
}

// Credential resolves the API key: inline value first, then key file,
// then the PFAGENT_API_KEY environment variable.
func (c *Config) Credential() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyFile != "" {
		data, err := os.ReadFile(ExpandPath(c.APIKeyFile))
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return os.Getenv("PFAGENT_API_KEY")
}

// RequiresCredential reports whether the configured backend needs an API
// key. Local inference servers tolerate an absent credential.
func (c *Config) RequiresCredential() bool {
	return c.Provider != "ollama"
}

func (c *Config) DataDir() string {
	if c.DataDirectory != "" {
		return ExpandPath(c.DataDirectory)
	}
	return DefaultDataDir()
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PFAGENT_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("PFAGENT_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("PFAGENT_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("PFAGENT_DATA_DIR"); v != "" {
		c.DataDirectory = v
	}
}

func CheckDebug() bool {
	debug := os.Getenv("PFAGENT_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens debug.log in the data directory when PFAGENT_DEBUG
// is set. 0600 because the log can contain message content.
func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
}
