// Package config loads the room configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Character describes the AI character hosting the room.
type Character struct {
	Name         string `yaml:"name"`
	Persona      string `yaml:"persona"`
	SystemPrompt string `yaml:"system_prompt"`
	Language     string `yaml:"language"` // BCP-47-ish code for display translation, e.g. "ja"
}

// LLM points at an OpenAI-compatible chat completions backend.
type LLM struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Room holds admission and history tuning.
type Room struct {
	MaxVisitors      int  `yaml:"max_visitors"`
	Open             bool `yaml:"open"`
	HistoryLimit     int  `yaml:"history_limit"`
	VisitorTTLSecs   int  `yaml:"visitor_ttl_seconds"`
	SceneWindowSecs  int  `yaml:"scene_window_seconds"`
	SceneWindowLimit int  `yaml:"scene_window_limit"`
}

// Agent tunes the outbound conversation loop.
type Agent struct {
	MaxTurns    int `yaml:"max_turns"`
	PacingSecs  int `yaml:"pacing_seconds"`
	TimeoutSecs int `yaml:"timeout_seconds"`
}

// Server is the HTTP listen address.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Discovery points at an optional room discovery service.
type Discovery struct {
	URL              string `yaml:"url"`
	PublicURL        string `yaml:"public_url"`
	AnnounceInterval int    `yaml:"announce_interval_seconds"`
}

// Config is the full room configuration.
type Config struct {
	InstanceID string    `yaml:"instance_id"`
	DBPath     string    `yaml:"db_path"`
	Character  Character `yaml:"character"`
	LLM        LLM       `yaml:"llm"`
	Room       Room      `yaml:"room"`
	Agent      Agent     `yaml:"agent"`
	Server     Server    `yaml:"server"`
	Discovery  Discovery `yaml:"discovery"`
}

// DefaultPath resolves the config file path: explicit flag value, then
// $ROOMVERSE_CONFIG, then ~/.roomverse/config.yaml.
func DefaultPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("ROOMVERSE_CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".roomverse", "config.yaml")
}

// Load reads and validates the config file. A missing instance id is
// generated and written back so the room keeps a stable identity.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if cfg.Character.Name == "" {
		return nil, fmt.Errorf("config: character.name is required")
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("persist instance id: %w", err)
		}
	}

	return cfg, nil
}

// Save writes the config back to disk, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		home, _ := os.UserHomeDir()
		c.DBPath = filepath.Join(home, ".roomverse", "room.db")
	}
	if c.Room.MaxVisitors <= 0 {
		c.Room.MaxVisitors = 5
	}
	if c.Room.HistoryLimit <= 0 {
		c.Room.HistoryLimit = 100
	}
	if c.Room.VisitorTTLSecs <= 0 {
		c.Room.VisitorTTLSecs = 600
	}
	if c.Room.SceneWindowSecs <= 0 {
		c.Room.SceneWindowSecs = 300
	}
	if c.Room.SceneWindowLimit <= 0 {
		c.Room.SceneWindowLimit = 10
	}
	if c.Agent.MaxTurns <= 0 {
		c.Agent.MaxTurns = 6
	}
	if c.Agent.PacingSecs <= 0 {
		c.Agent.PacingSecs = 5
	}
	if c.Agent.TimeoutSecs <= 0 {
		c.Agent.TimeoutSecs = 30
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port <= 0 {
		c.Server.Port = 8000
	}
	if c.Discovery.AnnounceInterval <= 0 {
		c.Discovery.AnnounceInterval = 60
	}
}

// VisitorTTL returns the visitor expiry as a duration.
func (c *Config) VisitorTTL() time.Duration {
	return time.Duration(c.Room.VisitorTTLSecs) * time.Second
}
