package rules

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Loader handles loading rules from embedded files and the user rule file
type Loader struct {
	userFile string
}

// NewLoader creates a new rule loader
func NewLoader(userFile string) *Loader {
	return &Loader{userFile: userFile}
}

// DefaultUserRulesFile returns the default user rule file
func DefaultUserRulesFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cmdgate", "rules.yaml")
	}
	return filepath.Join(home, ".cmdgate", "rules.yaml")
}

// UserFile returns the user rule file path
func (l *Loader) UserFile() string {
	return l.userFile
}

// LoadBuiltin loads all embedded rule tables
func (l *Loader) LoadBuiltin() ([]Rule, error) {
	var allRules []Rule

	log.Trace("Loading builtin rules from embedded filesystem")

	err := fs.WalkDir(builtinFS, "builtin", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}

		data, err := builtinFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		rules, err := parseRuleSet(data, path, SourceBuiltin)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		log.Trace("  Loaded %d rules from %s", len(rules), path)
		allRules = append(allRules, rules...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Trace("Total builtin rules loaded: %d", len(allRules))
	return allRules, nil
}

// LoadUser loads the user rule file. A missing file yields no rules.
func (l *Loader) LoadUser() ([]Rule, error) {
	if l.userFile == "" {
		log.Trace("User rule file not configured, skipping")
		return nil, nil
	}

	data, err := os.ReadFile(l.userFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Trace("User rule file %s does not exist", l.userFile)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	rules, err := parseRuleSet(data, l.userFile, SourceUser)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.userFile, err)
	}
	log.Trace("Loaded %d user rules from %s", len(rules), l.userFile)
	return rules, nil
}

// ValidateYAML validates rule YAML content as a user file
func (l *Loader) ValidateYAML(data []byte) error {
	_, err := parseRuleSet(data, "inline", SourceUser)
	return err
}

// decodeRuleSet decodes strictly so misspelled keys are caught.
func decodeRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return &rs, nil
}

// parseRuleSet decodes and validates a rule file.
func parseRuleSet(data []byte, path string, source string) ([]Rule, error) {
	rs, err := decodeRuleSet(data)
	if err != nil {
		return nil, err
	}
	if err := rs.Validate(source); err != nil {
		return nil, err
	}

	for i := range rs.Rules {
		rule := &rs.Rules[i]
		rule.FilePath = path

		status := "enabled"
		if !rule.IsEnabled() {
			status = "DISABLED"
		}
		log.Trace("    Rule %s/%s: %s (class=%s)", rule.Grammar, rule.Name, status, rule.Class)
	}
	return rs.Rules, nil
}
