package rules

import (
	"fmt"
	"os"
	"strings"

	"github.com/xde-mcp/cmdgate/internal/tui"
	"github.com/xde-mcp/cmdgate/internal/types"
)

// LintSeverity represents the severity of a lint issue.
type LintSeverity string

// Lint severity levels.
const (
	LintError   LintSeverity = "error"
	LintWarning LintSeverity = "warning"
	LintInfo    LintSeverity = "info"
)

// LintIssue represents a problem found in a rule.
type LintIssue struct {
	RuleName string
	Field    string
	Severity LintSeverity
	Message  string
}

// LintResult contains all issues found during linting.
type LintResult struct {
	Issues []LintIssue
	Errors int
	Warns  int
}

// Linter validates rule tables for common mistakes.
type Linter struct {
	grammars map[string]bool
}

// NewLinter creates a linter that accepts the given grammar names.
func NewLinter(grammars []string) *Linter {
	return &Linter{grammars: set(grammars...)}
}

// LintRules validates rules in evaluation context and returns all issues
// found. Rules must be given in file order, builtin before user.
func (l *Linter) LintRules(rules []Rule) LintResult {
	result := LintResult{}
	seenNames := make(map[string]bool)
	// grammar + subcommand pattern -> tier of the first rule using it
	seenPatterns := make(map[string]int)

	for _, rule := range rules {
		key := rule.Grammar + "/" + rule.Name
		if seenNames[key] {
			result.add(LintIssue{
				RuleName: rule.Name,
				Field:    "name",
				Severity: LintWarning,
				Message:  "duplicate rule name",
			})
		}
		seenNames[key] = true

		for _, issue := range l.lintRule(rule) {
			result.add(issue)
		}

		for _, p := range rule.Subcommand {
			pkey := rule.Grammar + "/" + p
			tier, seen := seenPatterns[pkey]
			if seen && tier <= rule.Class.Tier() {
				result.add(LintIssue{
					RuleName: rule.Name,
					Field:    "subcommand",
					Severity: LintWarning,
					Message:  fmt.Sprintf("pattern %q is shadowed by an earlier rule", p),
				})
			}
			if !seen || rule.Class.Tier() < tier {
				seenPatterns[pkey] = rule.Class.Tier()
			}
		}
	}
	return result
}

func (r *LintResult) add(issue LintIssue) {
	r.Issues = append(r.Issues, issue)
	switch issue.Severity {
	case LintError:
		r.Errors++
	case LintWarning:
		r.Warns++
	case LintInfo:
		// info items don't increment counters
	}
}

func (l *Linter) lintRule(rule Rule) []LintIssue {
	var issues []LintIssue
	name := rule.Name
	if name == "" {
		name = "(unnamed)"
	}
	issue := func(field string, sev LintSeverity, format string, args ...any) {
		issues = append(issues, LintIssue{
			RuleName: name,
			Field:    field,
			Severity: sev,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if !l.grammars[rule.Grammar] {
		issue("grammar", LintError, "unknown grammar %q", rule.Grammar)
	}

	// Shape and pattern compilation, including allow-write in user files.
	if _, err := compileRule(rule); err != nil {
		issue("rule", LintError, "%s", strings.TrimPrefix(err.Error(), fmt.Sprintf("rule %q: ", rule.Name)))
	}

	for _, m := range rule.Methods {
		if readMethods[strings.ToUpper(m)] {
			issue("methods", LintWarning, "method %s is already allowed by the read rules", strings.ToUpper(m))
		}
	}

	for _, ph := range placeholder.FindAllString(rule.Message, -1) {
		if !knownPlaceholders[ph] {
			issue("message", LintWarning, "unknown placeholder %s", ph)
		}
	}

	if rule.Class == types.ClassAllowRead && rule.When != "" &&
		rule.When != WhenReadMethod && rule.When != WhenGraphQLQuery && rule.When != WhenPassthrough {
		issue("when", LintWarning, "allow-read rule uses write-side predicate %q", rule.When)
	}

	if !rule.IsEnabled() {
		issue("enabled", LintInfo, "rule is disabled")
	}
	return issues
}

// LintFile loads and lints a user rule file. Only shape errors that stop
// decoding are returned as an error; everything else is an issue.
func (l *Linter) LintFile(path string) (LintResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LintResult{}, fmt.Errorf("failed to read file: %w", err)
	}
	rs, err := decodeRuleSet(data)
	if err != nil {
		return LintResult{}, err
	}
	rules := make([]Rule, len(rs.Rules))
	for i, rule := range rs.Rules {
		rule.Source = SourceUser
		rule.FilePath = path
		if rule.Grammar == "" {
			rule.Grammar = rs.Grammar
		}
		rules[i] = rule
	}
	return l.LintRules(rules), nil
}

// LintBuiltin lints the embedded rule tables.
func (l *Linter) LintBuiltin() (LintResult, error) {
	rules, err := NewLoader("").LoadBuiltin()
	if err != nil {
		return LintResult{}, fmt.Errorf("failed to load builtin rules: %w", err)
	}
	return l.LintRules(rules), nil
}

// FormatIssues returns a human-readable string of all issues.
func (r LintResult) FormatIssues(showInfo bool) string {
	if len(r.Issues) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, issue := range r.Issues {
		if issue.Severity == LintInfo && !showInfo {
			continue
		}

		var icon, styledLine string
		if tui.IsPlainMode() {
			switch issue.Severity {
			case LintError:
				icon = "X"
			case LintWarning:
				icon = "!"
			case LintInfo:
				icon = "i"
			default:
				icon = "?"
			}
			styledLine = fmt.Sprintf("  %s [%s] %s: %s - %s\n",
				icon, issue.Severity, issue.RuleName, issue.Field, issue.Message)
		} else {
			switch issue.Severity {
			case LintError:
				icon = tui.StyleError.Render(tui.IconCross)
			case LintWarning:
				icon = tui.StyleWarning.Render(tui.IconWarning)
			case LintInfo:
				icon = tui.StyleInfo.Render(tui.IconInfo)
			default:
				icon = "?"
			}
			styledLine = fmt.Sprintf("  %s %s %s: %s - %s\n",
				icon, tui.SeverityBadge(string(issue.Severity)), tui.StyleBold.Render(issue.RuleName), issue.Field, issue.Message)
		}
		sb.WriteString(styledLine)
	}
	return sb.String()
}
