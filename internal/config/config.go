package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProgressConfig controls the progress file watcher.
type ProgressConfig struct {
	// PollInterval is the fallback re-read interval.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Notify enables filesystem change notification.
	Notify bool `yaml:"notify"`
	// DefaultPath is offered as the suggested progress file when it exists.
	DefaultPath string `yaml:"default_path,omitempty"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Format string `yaml:"format"` // "text" or "json"
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
}

// Config holds questcompanion configuration.
type Config struct {
	Addr        string         `yaml:"addr"`
	DataDir     string         `yaml:"data_dir,omitempty"`
	SettingsDir string         `yaml:"settings_dir,omitempty"`
	Progress    ProgressConfig `yaml:"progress"`
	Log         LogConfig      `yaml:"log"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Addr:        "127.0.0.1:8233",
		SettingsDir: Home(),
		Progress: ProgressConfig{
			PollInterval: 60 * time.Second,
			Notify:       true,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Home returns the settings directory, respecting QUESTCOMPANION_HOME.
func Home() string {
	if h := os.Getenv("QUESTCOMPANION_HOME"); h != "" {
		return h
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".questcompanion")
	}
	return filepath.Join(dir, "questcompanion")
}

// Load reads the YAML file at path over the defaults. An empty path or a
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.Progress.PollInterval <= 0 {
		return fmt.Errorf("progress.poll_interval must be positive, got %s", c.Progress.PollInterval)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Save writes cfg as YAML to path.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
