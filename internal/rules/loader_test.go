package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xde-mcp/cmdgate/internal/types"
)

func TestLoadBuiltin(t *testing.T) {
	rules, err := NewLoader("").LoadBuiltin()
	if err != nil {
		t.Fatalf("LoadBuiltin: %v", err)
	}
	perGrammar := map[string]int{}
	for _, r := range rules {
		perGrammar[r.Grammar]++
		if r.Source != SourceBuiltin {
			t.Errorf("rule %s source = %q, want builtin", r.Name, r.Source)
		}
		if _, err := compileRule(r); err != nil {
			t.Errorf("builtin rule does not compile: %v", err)
		}
	}
	if perGrammar["gh"] == 0 || perGrammar["python"] == 0 {
		t.Errorf("rules per grammar = %v, want both gh and python", perGrammar)
	}
}

func TestLoadUserMissingFile(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	rules, err := l.LoadUser()
	if err != nil || rules != nil {
		t.Errorf("LoadUser() = %v, %v; want nil, nil", rules, err)
	}
}

func TestParseRuleSet(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		source  string
		wantErr string
	}{
		{"valid", `
grammar: gh
rules:
  - name: no-merge
    class: deny
    subcommand: pr merge
    message: no
`, SourceUser, ""},
		{"empty file", ``, SourceUser, ""},
		{"unknown key", `
grammar: gh
rules:
  - name: x
    class: deny
    subcommnad: pr merge
    message: no
`, SourceUser, "subcommnad"},
		{"no grammar", `
rules:
  - name: x
    class: deny
    subcommand: pr merge
    message: no
`, SourceUser, "grammar is required"},
		{"user allow-write", `
grammar: gh
rules:
  - name: x
    class: allow-write
    subcommand: repo delete
    message: yes
`, SourceUser, "builtin only"},
		{"builtin allow-write", `
grammar: gh
rules:
  - name: x
    class: allow-write
    subcommand: repo delete
    message: yes
`, SourceBuiltin, ""},
		{"two conditions", `
grammar: gh
rules:
  - name: x
    class: deny
    subcommand: pr merge
    when: malformed
    message: no
`, SourceUser, "cannot mix"},
		{"methods without endpoint", `
grammar: gh
rules:
  - name: x
    class: deny
    when: malformed
    methods: [POST]
    message: no
`, SourceUser, "methods requires endpoint"},
		{"unknown predicate", `
grammar: gh
rules:
  - name: x
    class: deny
    when: sometimes
    message: no
`, SourceUser, "unknown predicate"},
		{"duplicate", `
grammar: gh
rules:
  - {name: x, class: deny, when: malformed, message: a}
  - {name: x, class: ask, when: unsafe-env, message: b}
`, SourceUser, "duplicate rule name"},
		{"empty pattern", `
grammar: gh
rules:
  - name: x
    class: deny
    subcommand: ""
    message: no
`, SourceUser, "empty pattern"},
		{"bad class", `
grammar: gh
rules:
  - name: x
    class: block
    when: malformed
    message: no
`, SourceUser, "unknown class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRuleSet([]byte(tt.yaml), "test.yaml", tt.source)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestStringOrArray(t *testing.T) {
	rules, err := parseRuleSet([]byte(`
grammar: gh
rules:
  - name: list
    class: deny
    subcommand: [pr merge, 'issue {pin,unpin}']
    message: no
`), "test.yaml", SourceUser)
	if err != nil {
		t.Fatal(err)
	}
	if got := rules[0].Subcommand; len(got) != 2 || got[1] != "issue {pin,unpin}" {
		t.Errorf("Subcommand = %q", got)
	}
	if rules[0].Class != types.ClassDeny || rules[0].FilePath != "test.yaml" {
		t.Errorf("rule = %+v", rules[0])
	}
}

func TestValidateYAML(t *testing.T) {
	l := NewLoader("")
	if err := l.ValidateYAML([]byte("grammar: python\nrules:\n  - {name: a, class: ask, when: passthrough, message: m}\n")); err != nil {
		t.Errorf("ValidateYAML: %v", err)
	}
	if err := l.ValidateYAML([]byte("rules: [")); err == nil {
		t.Error("expected YAML syntax error")
	}
}

func TestLoadUserFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(file, []byte("grammar: gh\nrules:\n  - {name: a, class: ask, subcommand: pr merge, message: m}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	rules, err := NewLoader(file).LoadUser()
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].Source != SourceUser || rules[0].Grammar != "gh" {
		t.Errorf("rules = %+v", rules)
	}
}
