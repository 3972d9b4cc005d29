package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the user's persistent configuration preferences.
type Config struct {
	Provider     string `json:"provider,omitempty"`       // openai or anthropic
	APIKey       string `json:"api_key,omitempty"`        // Key for the selected completion provider
	Model        string `json:"model,omitempty"`          // Default model name
	BaseURL      string `json:"base_url,omitempty"`       // Optional override for OpenAI-compatible APIs
	SearchAPIKey string `json:"search_api_key,omitempty"` // Key for the search provider; optional
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}

	return &Manager{
		configDir: filepath.Join(configDir, "parley"),
	}, nil
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk.
// If the file does not exist, it returns an empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600),
// since it may contain API keys.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables onto the loaded configuration.
// Environment always wins over the file, so stale saved keys never shadow an
// explicitly exported one.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PARLEY_PROVIDER"); v != "" {
		c.Provider = v
	}
	switch c.Provider {
	case "anthropic":
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			c.APIKey = v
		}
		if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
			c.Model = v
		}
	default:
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			c.APIKey = v
		}
		if v := os.Getenv("OPENAI_MODEL"); v != "" {
			c.Model = v
		}
		if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
			c.BaseURL = v
		}
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		c.SearchAPIKey = v
	}
}
