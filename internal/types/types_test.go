package types

import "testing"

func TestVerdictValid(t *testing.T) {
	for _, v := range []Verdict{VerdictAllow, VerdictDeny, VerdictAsk, VerdictNoOpinion} {
		if !v.Valid() {
			t.Errorf("Verdict(%q).Valid() = false, want true", v)
		}
	}
	if Verdict("maybe").Valid() {
		t.Error("arbitrary string should not be valid")
	}
	if VerdictNoOpinion.IsDecisive() {
		t.Error("no-opinion must not produce a decision")
	}
}

func TestRuleClassOrder(t *testing.T) {
	tests := []struct {
		class   RuleClass
		tier    int
		verdict Verdict
	}{
		{ClassAllowWrite, 0, VerdictAllow},
		{ClassDeny, 1, VerdictDeny},
		{ClassAsk, 1, VerdictAsk},
		{ClassAllowRead, 2, VerdictAllow},
		{RuleClass("bogus"), 3, VerdictNoOpinion},
	}
	for _, tt := range tests {
		if got := tt.class.Tier(); got != tt.tier {
			t.Errorf("%s.Tier() = %d, want %d", tt.class, got, tt.tier)
		}
		if got := tt.class.Verdict(); got != tt.verdict {
			t.Errorf("%s.Verdict() = %s, want %s", tt.class, got, tt.verdict)
		}
	}
}

func TestParseHookEvent(t *testing.T) {
	tests := []struct {
		input string
		want  HookEvent
	}{
		{"", HookEventPreToolUse},
		{"pre-tool-use", HookEventPreToolUse},
		{"PermissionRequest", HookEventPermissionRequest},
		{"permission-request", HookEventPermissionRequest},
		{"stop", ""},
	}
	for _, tt := range tests {
		if got := ParseHookEvent(tt.input); got != tt.want {
			t.Errorf("ParseHookEvent(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLogLevelValid(t *testing.T) {
	valid := []LogLevel{LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, ""}
	for _, l := range valid {
		if !l.Valid() {
			t.Errorf("LogLevel(%q).Valid() = false, want true", l)
		}
	}
	invalid := []LogLevel{"invalid", "verbose", "fatal", "warning"}
	for _, l := range invalid {
		if l.Valid() {
			t.Errorf("LogLevel(%q).Valid() = true, want false", l)
		}
	}
}
