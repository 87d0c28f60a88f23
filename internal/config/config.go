package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all feedback tool configuration.
type Config struct {
	// Storage layout and locking
	Store StoreConfig `yaml:"store"`

	// Defaults applied by the CLI when flags are omitted
	Defaults DefaultsConfig `yaml:"defaults"`

	// Filesystem access policy
	Security SecurityConfig `yaml:"security"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// SecurityConfig lists the areas the store may read and write.
// An empty list disables the path guard.
type SecurityConfig struct {
	AllowedAreas []string `yaml:"allowed_areas"`
}

// DefaultsConfig holds CLI defaults.
type DefaultsConfig struct {
	Author      string `yaml:"author"`
	ListLimit   int    `yaml:"list_limit"`
	ExportLimit int    `yaml:"export_limit"`
	CleanupDays int    `yaml:"cleanup_days"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Dir:         "~/Agentic/feedback",
			LockTimeout: "5s",
			CacheTTL:    "10m",
		},

		Defaults: DefaultsConfig{
			Author:      "AI Agent",
			ListLimit:   100,
			ExportLimit: 1000,
			CleanupDays: 90,
		},

		Security: SecurityConfig{
			AllowedAreas: []string{"~/Agentic"},
		},

		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// DefaultPath is where Load looks when no --config flag is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".agentic", "feedback.yaml")
	}
	return filepath.Join(home, "Agentic", "config", "feedback.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. A .env file next to the config is loaded into the environment
// before overrides are applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("FEEDBACK_DIR"); dir != "" {
		c.Store.Dir = dir
	}
	if level := os.Getenv("FEEDBACK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if author := os.Getenv("FEEDBACK_AUTHOR"); author != "" {
		c.Defaults.Author = author
	}
	if areas := os.Getenv("FEEDBACK_ALLOWED_AREAS"); areas != "" {
		var list []string
		for _, a := range strings.Split(areas, ",") {
			if a = strings.TrimSpace(a); a != "" {
				list = append(list, a)
			}
		}
		c.Security.AllowedAreas = list
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.Dir) == "" {
		return fmt.Errorf("store.dir must be set")
	}
	if _, err := time.ParseDuration(c.Store.LockTimeout); err != nil {
		return fmt.Errorf("invalid store.lock_timeout %q: %w", c.Store.LockTimeout, err)
	}
	if _, err := time.ParseDuration(c.Store.CacheTTL); err != nil {
		return fmt.Errorf("invalid store.cache_ttl %q: %w", c.Store.CacheTTL, err)
	}
	if c.Defaults.ListLimit < 1 {
		return fmt.Errorf("defaults.list_limit must be >= 1")
	}
	if c.Defaults.ExportLimit < 1 {
		return fmt.Errorf("defaults.export_limit must be >= 1")
	}
	if c.Defaults.CleanupDays < 0 {
		return fmt.Errorf("defaults.cleanup_days must be >= 0")
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("invalid logging.level %q (valid: debug, info, warn, error)", c.Logging.Level)
	}
	return nil
}

// ResolvedDir returns Store.Dir with a leading "~" expanded.
func (c *Config) ResolvedDir() string {
	return expandHome(c.Store.Dir)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
