package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"refactchat/internal/models"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LSP struct {
		Address    string `yaml:"address"`
		Port       int    `yaml:"port"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"lsp"`
	Cloud struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key,omitempty"`
	} `yaml:"cloud"`
	Chat struct {
		Model             string `yaml:"model,omitempty"`
		ToolUse           string `yaml:"tool_use"`
		MaxNewTokens      int    `yaml:"max_new_tokens"`
		MaxToolIterations int    `yaml:"max_tool_iterations"`
		SystemPrompt      string `yaml:"system_prompt,omitempty"`
	} `yaml:"chat"`
	History struct {
		Path string `yaml:"path,omitempty"`
	} `yaml:"history"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file,omitempty"`
	} `yaml:"log"`
}

// Dir is <UserConfigDir>/refactchat.
func Dir() string {
	configDir, err := os.UserConfigDir()
	if err != nil || configDir == "" {
		configDir = os.ExpandEnv("$HOME/.config")
	}
	return filepath.Join(configDir, "refactchat")
}

func ConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads path, or the default location when path is empty. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path with owner-only permissions, since it may hold the
// API key.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) Validate() error {
	if c.LSP.Port <= 0 || c.LSP.Port > 65535 {
		return fmt.Errorf("lsp.port %d out of range", c.LSP.Port)
	}
	if _, err := models.ParseToolUse(c.Chat.ToolUse); err != nil {
		return fmt.Errorf("chat.tool_use: %w", err)
	}
	return nil
}

func (c *Config) LSPBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.LSP.Address, c.LSP.Port)
}

func (c *Config) ToolUse() models.ToolUse {
	tu, err := models.ParseToolUse(c.Chat.ToolUse)
	if err != nil {
		return models.ToolUseAgent
	}
	return tu
}

func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(Dir(), "history.db")
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LSP.Address == "" {
		cfg.LSP.Address = "127.0.0.1"
	}
	if cfg.LSP.Port == 0 {
		cfg.LSP.Port = 8001
	}
	if cfg.LSP.MaxRetries == 0 {
		cfg.LSP.MaxRetries = 3
	}
	if cfg.Cloud.URL == "" {
		cfg.Cloud.URL = "https://www.smallcloud.ai/v1"
	}
	if cfg.Chat.ToolUse == "" {
		cfg.Chat.ToolUse = string(models.ToolUseAgent)
	}
	if cfg.Chat.MaxNewTokens == 0 {
		cfg.Chat.MaxNewTokens = 4096
	}
	if cfg.Chat.MaxToolIterations == 0 {
		cfg.Chat.MaxToolIterations = 15
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
