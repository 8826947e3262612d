package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/xde-mcp/cmdgate/internal/logger"
	"github.com/xde-mcp/cmdgate/internal/types"
)

var cfgLog = logger.New("config")

// Config represents the cmdgate configuration
type Config struct {
	// ProjectDir is the containment root, used when $CLAUDE_PROJECT_DIR
	// is unset. Empty means the working directory.
	ProjectDir string `yaml:"project_dir"`
	// BoundaryDir is the reserved subdirectory (relative to ProjectDir)
	// that interpreter scripts must live in.
	BoundaryDir string `yaml:"boundary_dir" validate:"required"`
	// Disabled turns the whole gate off. Also set by the kill-switch env var.
	Disabled bool `yaml:"disabled"`

	Log         LogConfig         `yaml:"log"`
	Audit       AuditConfig       `yaml:"audit"`
	Rules       RulesConfig       `yaml:"rules"`
	SafePipes   []string          `yaml:"safe_pipes" validate:"dive,required"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Server      ServerConfig      `yaml:"server"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level   types.LogLevel `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	NoColor bool           `yaml:"no_color"`
}

// AuditConfig controls the JSONL decision trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// RulesConfig holds rule engine settings
type RulesConfig struct {
	UserFile       string `yaml:"user_file"`       // optional extra rule table
	DisableBuiltin bool   `yaml:"disable_builtin"` // disable embedded builtin rules
}

// InterpreterConfig holds interpreter grammar settings
type InterpreterConfig struct {
	// Modules lists the modules allowed after -m. Each needs an argument validator.
	Modules []string `yaml:"modules" validate:"dive,required"`
}

// ServerConfig holds settings for the serve subcommand
type ServerConfig struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
	Watch  bool   `yaml:"watch"`
}

// DefaultSafePipes are text filters that cannot execute code from their input.
var DefaultSafePipes = []string{"jq", "head", "tail", "grep", "wc", "sort", "uniq", "cut", "tr"}

// DefaultConfigPath returns the default config file path (~/.cmdgate/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".cmdgate", "config.yaml")
}

func defaultAuditPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./cmdgate-audit.jsonl"
	}
	return filepath.Join(home, ".cmdgate", "audit.jsonl")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BoundaryDir: ".claude",
		Log: LogConfig{
			Level: types.LogLevelWarn,
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    defaultAuditPath(),
		},
		SafePipes: append([]string(nil), DefaultSafePipes...),
		Interpreter: InterpreterConfig{
			Modules: []string{"pytest"},
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:9095",
			Watch:  true,
		},
	}
}

// BoundaryPath returns the absolute reserved directory for interpreter scripts.
func (c *Config) BoundaryPath() string {
	return filepath.Join(c.ProjectDir, c.BoundaryDir)
}

var programName = regexp.MustCompile(`^[A-Za-z0-9_.+-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks all Config fields and returns a multi-error report.
// Call this AFTER env and CLI overrides have been applied, not during Load().
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config validation failed: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, describeFieldError(fe))
		}
	}

	if c.BoundaryDir != "" {
		if filepath.IsAbs(c.BoundaryDir) {
			errs = append(errs, fmt.Sprintf("boundary_dir: must be relative to project_dir (got %q)", c.BoundaryDir))
		}
		for _, part := range strings.Split(filepath.ToSlash(c.BoundaryDir), "/") {
			if part == ".." {
				errs = append(errs, fmt.Sprintf("boundary_dir: must not contain '..' (got %q)", c.BoundaryDir))
				break
			}
		}
	}
	if c.ProjectDir != "" && !filepath.IsAbs(c.ProjectDir) {
		errs = append(errs, fmt.Sprintf("project_dir: must be absolute (got %q)", c.ProjectDir))
	}

	for i, p := range c.SafePipes {
		if p != "" && !programName.MatchString(p) {
			errs = append(errs, fmt.Sprintf("safe_pipes[%d]: %q is not a plain program name", i, p))
		}
	}
	for i, m := range c.Interpreter.Modules {
		if m != "" && !programName.MatchString(m) {
			errs = append(errs, fmt.Sprintf("interpreter.modules[%d]: %q is not a plain module name", i, m))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for i, e := range errs {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e)
	}
	return errors.New(sb.String())
}

func describeFieldError(fe validator.FieldError) string {
	// Namespace is "Config.server.listen"; drop the root type name.
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: must not be empty", field)
	case "required_if":
		return fmt.Sprintf("%s: required when %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s] (got %q)", field, fe.Param(), fe.Value())
	case "hostname_port":
		return fmt.Sprintf("%s: must be host:port (got %q)", field, fe.Value())
	}
	return fmt.Sprintf("%s: failed %q check", field, fe.Tag())
}

// isUnknownFieldError returns true if the error is from yaml.Decoder.KnownFields(true)
// rejecting a field that doesn't exist in the struct.
func isUnknownFieldError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found in type")
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	// Try strict decode to warn about unknown fields (typos like "safe_pipe:")
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if isUnknownFieldError(err) {
			cfgLog.Warn("config has unknown fields (ignored): %v", err)
			cfg = DefaultConfig()
			if err2 := yaml.Unmarshal(data, cfg); err2 != nil {
				return nil, fmt.Errorf("config parse error: %w", err2)
			}
		} else if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config parse error: %w", err)
		}
	}

	if strings.HasPrefix(cfg.Audit.Path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Audit.Path = filepath.Join(home, cfg.Audit.Path[2:])
		}
	}

	return cfg, nil
}
