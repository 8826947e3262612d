package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xde-mcp/cmdgate/internal/types"
)

// These tests modify global state (plainMode, Stdout) and must not run in parallel.

func enablePlainMode(t *testing.T) {
	t.Helper()
	SetPlainMode(true)
	t.Cleanup(func() { SetPlainMode(false) })
}

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := Stdout, Stderr
	Stdout, Stderr = &out, &errOut
	t.Cleanup(func() { Stdout, Stderr = oldOut, oldErr })
	return &out, &errOut
}

func TestPrintPlain(t *testing.T) {
	enablePlainMode(t)
	out, errOut := captureOutput(t)

	PrintSuccess("done")
	PrintWarning("careful")
	PrintInfo("note")
	PrintError("broken")

	want := "[cmdgate] OK: done\n[cmdgate] WARNING: careful\n[cmdgate] note\n"
	if out.String() != want {
		t.Errorf("stdout = %q, want %q", out.String(), want)
	}
	if errOut.String() != "[cmdgate] ERROR: broken\n" {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestBadgesPlain(t *testing.T) {
	enablePlainMode(t)
	tests := []struct {
		got, want string
	}{
		{SeverityBadge("error"), "[ERROR]"},
		{SeverityBadge("warning"), "[WARNING]"},
		{SeverityBadge("custom"), "[custom]"},
		{VerdictBadge(types.VerdictDeny), "deny"},
		{VerdictBadge(types.VerdictNoOpinion), "no-opinion"},
		{Prefix(), "[cmdgate]"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestBadgesStyled(t *testing.T) {
	SetPlainMode(false)
	t.Cleanup(func() { SetPlainMode(false) })
	if got := VerdictBadge(types.VerdictAllow); !strings.Contains(got, IconCheck) {
		t.Errorf("VerdictBadge(allow) = %q, want check icon", got)
	}
	if got := SeverityBadge("info"); !strings.Contains(got, "INFO") {
		t.Errorf("SeverityBadge(info) = %q", got)
	}
}

func TestFields(t *testing.T) {
	SetPlainMode(true)
	t.Cleanup(func() { SetPlainMode(false) })

	got := Fields([]Field{{"rule", "read"}, {"grammar", "gh"}, {"reason", ""}}, "  ")
	want := "  rule:    read\n  grammar: gh\n"
	if got != want {
		t.Errorf("Fields = %q, want %q", got, want)
	}
	if Fields(nil, "") != "" {
		t.Error("no fields should render empty")
	}
}
