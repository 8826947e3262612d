package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/xde-mcp/cmdgate/internal/types"
)

// Env holds the settings read from the process environment.
type Env struct {
	// ProjectDir is the agent's project root.
	// Env: CLAUDE_PROJECT_DIR
	ProjectDir string `envconfig:"CLAUDE_PROJECT_DIR"`

	// KillSwitch disables the gate entirely when truthy.
	// Env: DYAD_DISABLE_CLAUDE_CODE_HOOKS
	KillSwitch string `envconfig:"DYAD_DISABLE_CLAUDE_CODE_HOOKS"`

	// ConfigPath overrides the config file location.
	// Env: CMDGATE_CONFIG
	ConfigPath string `envconfig:"CMDGATE_CONFIG"`

	// LogLevel overrides log.level.
	// Env: CMDGATE_LOG_LEVEL
	LogLevel string `envconfig:"CMDGATE_LOG_LEVEL"`
}

// LoadEnv reads the environment overlay.
func LoadEnv() (*Env, error) {
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return nil, fmt.Errorf("failed to load settings from environment: %w", err)
	}
	return &e, nil
}

// Disabled reports whether the kill-switch is set.
// Accepts "true", "1" and "yes", case-insensitively.
func (e *Env) Disabled() bool {
	switch strings.ToLower(strings.TrimSpace(e.KillSwitch)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ConfigFile returns the config path to load.
func (e *Env) ConfigFile() string {
	if e.ConfigPath != "" {
		return e.ConfigPath
	}
	return DefaultConfigPath()
}

// Apply overlays the environment onto cfg. CLAUDE_PROJECT_DIR takes
// precedence over project_dir; the working directory is the last fallback.
func (e *Env) Apply(cfg *Config) error {
	if e.Disabled() {
		cfg.Disabled = true
	}
	if e.LogLevel != "" {
		cfg.Log.Level = types.LogLevel(strings.ToLower(e.LogLevel))
	}
	if e.ProjectDir != "" {
		cfg.ProjectDir = e.ProjectDir
	}
	if cfg.ProjectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("cannot determine project directory: %w", err)
		}
		cfg.ProjectDir = wd
	}
	abs, err := filepath.Abs(cfg.ProjectDir)
	if err != nil {
		return fmt.Errorf("project directory %q: %w", cfg.ProjectDir, err)
	}
	cfg.ProjectDir = abs
	return nil
}

// Resolve loads the environment, the config file it points to, applies
// the overlay and validates the result.
func Resolve() (*Config, *Env, error) {
	return ResolveFile("")
}

// ResolveFile is Resolve with an explicit config path. An empty path
// falls back to the environment and then the default location.
func ResolveFile(path string) (*Config, *Env, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		path = env.ConfigFile()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, env, err
	}
	if err := env.Apply(cfg); err != nil {
		return nil, env, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, env, err
	}
	return cfg, env, nil
}
