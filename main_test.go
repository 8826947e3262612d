package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xde-mcp/cmdgate/internal/audit"
	"github.com/xde-mcp/cmdgate/internal/config"
	"github.com/xde-mcp/cmdgate/internal/logger"
	"github.com/xde-mcp/cmdgate/internal/rules"
	"github.com/xde-mcp/cmdgate/internal/tui"
	"github.com/xde-mcp/cmdgate/internal/types"
)

// isolate points every config source at empty temp directories.
func isolate(t *testing.T) (home, project string) {
	t.Helper()
	home = t.TempDir()
	project = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("CLAUDE_PROJECT_DIR", project)
	t.Setenv("CMDGATE_CONFIG", filepath.Join(home, "missing.yaml"))
	t.Setenv("CMDGATE_LOG_LEVEL", "")
	t.Setenv("DYAD_DISABLE_CLAUDE_CODE_HOOKS", "")
	t.Cleanup(func() { logger.SetOutput(nil) })
	return home, project
}

func bashPayload(cmd string) string {
	b, _ := json.Marshal(map[string]any{
		"tool_name":  "Bash",
		"tool_input": map[string]any{"command": cmd},
	})
	return string(b)
}

func TestHookMain(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		payload  string
		killSwch string
		want     string // substring of stdout; empty means no output
	}{
		{"read allowed", nil, bashPayload("gh pr view 12"), "", `"permissionDecision":"allow"`},
		{"delete denied", nil, bashPayload("gh api -X DELETE repos/o/r"), "", `"permissionDecision":"deny"`},
		{"injection denied", nil, bashPayload("gh pr view 1; rm -rf ~"), "", `shell metacharacters`},
		{"unrelated command", nil, bashPayload("ls -la"), "", ""},
		{"other tool", nil, `{"tool_name":"Read","tool_input":{"file_path":"x"}}`, "", ""},
		{"garbage input", nil, `{not json`, "", ""},
		{"kill switch", nil, bashPayload("gh api -X DELETE repos/o/r"), "Yes", ""},
		{"permission request allow", []string{"--event", "permission-request"}, bashPayload("gh pr view 12"), "", `"behavior":"allow"`},
		{"unknown event", []string{"--event", "post-tool-use"}, bashPayload("gh pr view 12"), "", ""},
		{"bad flag", []string{"--bogus"}, bashPayload("gh pr view 12"), "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv("DYAD_DISABLE_CLAUDE_CODE_HOOKS", tt.killSwch)

			var out, errOut bytes.Buffer
			hookMain(tt.args, strings.NewReader(tt.payload), &out, &errOut)

			if tt.want == "" {
				if out.Len() != 0 {
					t.Fatalf("expected no output, got %q", out.String())
				}
				return
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Fatalf("output %q does not contain %q", out.String(), tt.want)
			}
			if !json.Valid(bytes.TrimSpace(out.Bytes())) {
				t.Errorf("output is not a single JSON document: %q", out.String())
			}
		})
	}
}

func TestHookMainWritesAudit(t *testing.T) {
	home, _ := isolate(t)
	trailPath := filepath.Join(home, "trail", "audit.jsonl")
	cfgPath := filepath.Join(home, "config.yaml")
	writeFile(t, cfgPath, "audit:\n  enabled: true\n  path: "+trailPath+"\n")

	var out, errOut bytes.Buffer
	hookMain([]string{"--config", cfgPath}, strings.NewReader(bashPayload("gh api -X DELETE repos/o/r")), &out, &errOut)
	hookMain([]string{"--config", cfgPath}, strings.NewReader(bashPayload("ls")), &out, &errOut)

	records, err := audit.Read(trailPath, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audited decision, got %d", len(records))
	}
	if records[0].Verdict != types.VerdictDeny || records[0].Command != "gh api -X DELETE repos/o/r" {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestCheckMain(t *testing.T) {
	isolate(t)

	var out bytes.Buffer
	if code := checkMain([]string{"--json", "gh api repos/o/r/pulls"}, &out); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	var d rules.Decision
	if err := json.Unmarshal(out.Bytes(), &d); err != nil {
		t.Fatalf("bad JSON %q: %v", out.String(), err)
	}
	if d.Verdict != types.VerdictAllow || d.Grammar != "gh" {
		t.Errorf("unexpected decision: %+v", d)
	}

	out.Reset()
	if code := checkMain([]string{"--json", "--explain", "gh", "api", "-X", "POST", "repos/o/r/hooks"}, &out); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	var explained struct {
		Verdict types.Verdict `json:"verdict"`
		Facts   *rules.Facts  `json:"facts"`
	}
	if err := json.Unmarshal(out.Bytes(), &explained); err != nil {
		t.Fatalf("bad JSON %q: %v", out.String(), err)
	}
	if explained.Verdict != types.VerdictDeny {
		t.Errorf("verdict = %s, want deny", explained.Verdict)
	}
	if explained.Facts == nil || explained.Facts.REST == nil || explained.Facts.REST.Method != "POST" {
		t.Errorf("facts not explained: %+v", explained.Facts)
	}

	if code := checkMain(nil, &out); code != 2 {
		t.Errorf("missing command: exit code = %d, want 2", code)
	}
}

func TestCheckMainPlain(t *testing.T) {
	isolate(t)
	tui.SetPlainMode(true)
	t.Cleanup(func() { tui.SetPlainMode(false) })

	var out bytes.Buffer
	checkMain([]string{"gh pr view 12"}, &out)
	for _, want := range []string{"allow", "grammar", "gh", "rule", "read-subcommands"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q missing %q", out.String(), want)
		}
	}
}

func TestScanMain(t *testing.T) {
	isolate(t)
	tui.SetPlainMode(true)
	t.Cleanup(func() { tui.SetPlainMode(false) })

	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"clean", []string{"gh pr view 1 | jq .title"}, 0, "no injection found"},
		{"separator", []string{"gh pr view 1; id"}, 1, "statement separator"},
		{"quoted separator", []string{"gh pr view 1 --jq 'a;b'"}, 0, "no injection found"},
		{"python profile", []string{"--grammar", "python", "python x.py && id"}, 1, "command chaining"},
		{"unknown grammar", []string{"--grammar", "ruby", "ruby x.rb"}, 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if code := scanMain(tt.args, &out); code != tt.code {
				t.Fatalf("exit code = %d, want %d (output %q)", code, tt.code, out.String())
			}
			if tt.want != "" && !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q missing %q", out.String(), tt.want)
			}
		})
	}
}

func testEngine(t *testing.T) *rules.Engine {
	t.Helper()
	_, project := isolate(t)
	cfg := config.DefaultConfig()
	cfg.ProjectDir = project
	engine, err := newEngine(cfg)
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	return engine
}

func TestNewRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := testEngine(t)
	trail, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer trail.Close()
	router := newRouter(engine, trail, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK, "OK"},
		{"classify", http.MethodPost, "/api/classify", `{"command":"gh pr view 3"}`, http.StatusOK, `"verdict":"allow"`},
		{"classify empty", http.MethodPost, "/api/classify", `{}`, http.StatusBadRequest, "command is required"},
		{"hook deny", http.MethodPost, "/api/hook", bashPayload("gh api -X DELETE repos/o/r"), http.StatusOK, `"permissionDecision":"deny"`},
		{"hook no opinion", http.MethodPost, "/api/hook", bashPayload("make test"), http.StatusNoContent, ""},
		{"hook bad event", http.MethodPost, "/api/hook?event=nope", bashPayload("ls"), http.StatusBadRequest, "unknown event"},
		{"rules", http.MethodGet, "/api/rules", "", http.StatusOK, `"total"`},
		{"stats", http.MethodGet, "/api/stats", "", http.StatusOK, `"verdicts"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %q)", w.Code, tt.status, w.Body.String())
			}
			if tt.want != "" && !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body %q missing %q", w.Body.String(), tt.want)
			}
			if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("missing security headers, got %q", got)
			}
		})
	}

	records, err := audit.Read(trail.Path(), 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected classify and hook decisions to be audited, got %d records", len(records))
	}
}

func TestWriteRules(t *testing.T) {
	tui.SetPlainMode(true)
	t.Cleanup(func() { tui.SetPlainMode(false) })

	disabled := false
	all := []rules.Rule{
		{Name: "read-subcommands", Grammar: "gh", Class: types.ClassAllowRead, Source: "builtin"},
		{Name: "pr-merge", Grammar: "gh", Class: types.ClassAsk, Message: "confirm merges", Source: "user", FilePath: "/x/rules.yaml"},
		{Name: "inline-code", Grammar: "python", Class: types.ClassDeny, Source: "builtin", Enabled: &disabled},
	}

	var out bytes.Buffer
	if err := writeRules(&out, all, "gh", false); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if strings.Contains(text, "inline-code") {
		t.Errorf("grammar filter leaked python rule:\n%s", text)
	}
	// Ask sorts before allow-read.
	if strings.Index(text, "pr-merge") > strings.Index(text, "read-subcommands") {
		t.Errorf("rules not in evaluation order:\n%s", text)
	}
	if !strings.Contains(text, "rules.yaml") || !strings.Contains(text, "confirm merges") {
		t.Errorf("missing source or message:\n%s", text)
	}

	out.Reset()
	if err := writeRules(&out, all, "", true); err != nil {
		t.Fatal(err)
	}
	var resp struct {
		Total int          `json:"total"`
		Rules []rules.Rule `json:"rules"`
	}
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Total != 3 || len(resp.Rules) != 3 {
		t.Errorf("total = %d, rules = %d", resp.Total, len(resp.Rules))
	}
}

func TestWriteAudit(t *testing.T) {
	tui.SetPlainMode(true)
	t.Cleanup(func() { tui.SetPlainMode(false) })

	records := []audit.Record{
		{ID: "a", Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Verdict: types.VerdictDeny, Rule: "api-destructive-method", Command: "gh api -X DELETE x"},
	}

	var out bytes.Buffer
	writeAudit(&out, records, false)
	if !strings.Contains(out.String(), "deny") || !strings.Contains(out.String(), "(api-destructive-method)") {
		t.Errorf("unexpected text output %q", out.String())
	}

	out.Reset()
	writeAudit(&out, records, true)
	var r audit.Record
	if err := json.Unmarshal(out.Bytes(), &r); err != nil || r.ID != "a" {
		t.Errorf("unexpected JSON output %q (%v)", out.String(), err)
	}
}

func TestLoadConfigRejectsBadLogLevel(t *testing.T) {
	isolate(t)
	if _, err := loadConfig(&commonFlags{logLevel: "loud"}); err == nil {
		t.Fatal("expected error for unknown log level")
	}
	cfg, err := loadConfig(&commonFlags{logLevel: "debug"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BoundaryDir != ".claude" {
		t.Errorf("BoundaryDir = %q", cfg.BoundaryDir)
	}
	logger.SetGlobalLevel(logger.LevelWarn)
}

func TestGrammarNames(t *testing.T) {
	names := grammarNames()
	if len(names) != 2 || names[0] != "gh" || names[1] != "python" {
		t.Errorf("grammarNames() = %v", names)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}
