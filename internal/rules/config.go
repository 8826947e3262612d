package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StringOrArray handles YAML fields that accept string or []string
type StringOrArray []string

func (s *StringOrArray) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			return fmt.Errorf("empty pattern not allowed")
		}
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var arr []string
		if err := node.Decode(&arr); err != nil {
			return err
		}
		if len(arr) == 0 {
			return fmt.Errorf("empty pattern list not allowed")
		}
		for i, v := range arr {
			if v == "" {
				return fmt.Errorf("pattern[%d]: empty pattern not allowed", i)
			}
		}
		*s = arr
		return nil
	default:
		return fmt.Errorf("must be string or array, got %v", node.Kind)
	}
}

// RuleSet is the top-level YAML structure of a rule file. Grammar is the
// default for rules that do not name one.
type RuleSet struct {
	Version int    `yaml:"version"`
	Grammar string `yaml:"grammar,omitempty"`
	Rules   []Rule `yaml:"rules"`
}

// Validate validates all rules in the set. source is stamped on every
// rule first so source-dependent checks apply.
func (rs *RuleSet) Validate(source string) error {
	names := make(map[string]bool)
	for i := range rs.Rules {
		rule := &rs.Rules[i]
		rule.Source = source
		if rule.Grammar == "" {
			rule.Grammar = rs.Grammar
		}
		if rule.Grammar == "" {
			return fmt.Errorf("rule[%d] %q: grammar is required", i, rule.Name)
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule[%d] %q: %w", i, rule.Name, err)
		}
		if names[rule.Name] {
			return fmt.Errorf("duplicate rule name: %s", rule.Name)
		}
		names[rule.Name] = true
	}
	return nil
}
