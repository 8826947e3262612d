// Package types defines common type-safe enums used across the codebase.
package types

// Verdict is the outcome of classifying one command.
type Verdict string

const (
	// VerdictAllow auto-approves the command.
	VerdictAllow Verdict = "allow"
	// VerdictDeny blocks the command.
	VerdictDeny Verdict = "deny"
	// VerdictAsk forces an interactive confirmation.
	VerdictAsk Verdict = "ask"
	// VerdictNoOpinion defers to the surrounding permission system.
	VerdictNoOpinion Verdict = "no-opinion"
)

// Valid returns true if the Verdict is a known valid value.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictAllow, VerdictDeny, VerdictAsk, VerdictNoOpinion:
		return true
	}
	return false
}

// IsDecisive returns true if the verdict produces a decision object.
func (v Verdict) IsDecisive() bool {
	return v == VerdictAllow || v == VerdictDeny || v == VerdictAsk
}

// RuleClass groups rules by their precedence tier.
type RuleClass string

const (
	ClassAllowWrite RuleClass = "allow-write"
	ClassDeny       RuleClass = "deny"
	ClassAsk        RuleClass = "ask"
	ClassAllowRead  RuleClass = "allow-read"
)

// Valid returns true if the RuleClass is a known valid value.
func (c RuleClass) Valid() bool {
	switch c {
	case ClassAllowWrite, ClassDeny, ClassAsk, ClassAllowRead:
		return true
	}
	return false
}

// Tier returns the evaluation order of the class. Ask rules share the deny tier.
func (c RuleClass) Tier() int {
	switch c {
	case ClassAllowWrite:
		return 0
	case ClassDeny, ClassAsk:
		return 1
	case ClassAllowRead:
		return 2
	}
	return 3
}

// Verdict returns the verdict produced when a rule of this class matches.
func (c RuleClass) Verdict() Verdict {
	switch c {
	case ClassAllowWrite, ClassAllowRead:
		return VerdictAllow
	case ClassDeny:
		return VerdictDeny
	case ClassAsk:
		return VerdictAsk
	}
	return VerdictNoOpinion
}

// HookEvent is the hook event whose output format is emitted.
type HookEvent string

const (
	HookEventPreToolUse        HookEvent = "PreToolUse"
	HookEventPermissionRequest HookEvent = "PermissionRequest"
)

// Valid returns true if the HookEvent is a known valid value.
func (e HookEvent) Valid() bool {
	return e == HookEventPreToolUse || e == HookEventPermissionRequest
}

// ParseHookEvent maps a CLI spelling to a HookEvent.
// Unknown values return an empty HookEvent.
func ParseHookEvent(s string) HookEvent {
	switch s {
	case "pre-tool-use", "PreToolUse", "":
		return HookEventPreToolUse
	case "permission-request", "PermissionRequest":
		return HookEventPermissionRequest
	}
	return ""
}

// LogLevel represents a logging verbosity level.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Valid returns true if the LogLevel is a known valid value.
// Empty is valid and means "use the default".
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
		return true
	}
	return false
}
