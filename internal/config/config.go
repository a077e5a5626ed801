package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/sokinpui/chatdoc/internal/llm"
	"github.com/sokinpui/chatdoc/internal/textproc"
)

const (
	appName        = "chatdoc"
	configFileName = "config.yaml"
)

// Config is the user configuration.
type Config struct {
	Providers    []ProviderConfig `yaml:"providers" json:"providers"`
	DefaultModel string           `yaml:"default_model" json:"default_model"`
	Rules        []RuleConfig     `yaml:"rules" json:"rules"`
	Editor       EditorConfig     `yaml:"editor" json:"editor"`
	Log          LogConfig        `yaml:"log" json:"log"`
}

// ProviderConfig is one OpenAI-compatible endpoint. The key is read from
// APIKey, or from the environment variable named by APIKeyEnv.
type ProviderConfig struct {
	ID        string        `yaml:"id" json:"id"`
	Name      string        `yaml:"name" json:"name"`
	URL       string        `yaml:"url" json:"url"`
	APIKey    string        `yaml:"api_key" json:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env" json:"api_key_env"`
	Models    []ModelConfig `yaml:"models" json:"models"`
}

type ModelConfig struct {
	ID         string         `yaml:"id" json:"id"`
	Name       string         `yaml:"name" json:"name"`
	Alias      string         `yaml:"alias" json:"alias"`
	Parameters map[string]any `yaml:"parameters" json:"parameters"`
}

// EditorConfig controls what Send writes back into the document.
type EditorConfig struct {
	ThinkingBlockName string `yaml:"thinking_block_name" json:"thinking_block_name"`
	ThinkingAsNote    bool   `yaml:"thinking_as_note" json:"thinking_as_note"`
}

type LogConfig struct {
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Editor: EditorConfig{
			ThinkingBlockName: textproc.ThinkingBlockName,
			ThinkingAsNote:    true,
		},
	}
}

// DefaultPath returns the configuration file under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Load reads path. A missing file yields Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses data as YAML, or as JSON with comments when ext is .json or
// .jsonc. Unset fields keep their defaults.
func Decode(data []byte, ext string) (*Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Editor.ThinkingBlockName == "" {
		cfg.Editor.ThinkingBlockName = textproc.ThinkingBlockName
	}
	return cfg, nil
}

// LLMProviders converts the provider section for the LLM service, resolving
// keys from the environment where configured.
func (c *Config) LLMProviders() []llm.Provider {
	out := make([]llm.Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		key := p.APIKey
		if key == "" && p.APIKeyEnv != "" {
			key = os.Getenv(p.APIKeyEnv)
		}
		models := make([]llm.Model, 0, len(p.Models))
		for _, m := range p.Models {
			name := m.Name
			if name == "" {
				name = m.ID
			}
			models = append(models, llm.Model{
				ID:         m.ID,
				Name:       name,
				Alias:      m.Alias,
				Parameters: m.Parameters,
			})
		}
		out = append(out, llm.Provider{
			ID:     p.ID,
			Name:   p.Name,
			URL:    p.URL,
			APIKey: key,
			Models: models,
		})
	}
	return out
}
