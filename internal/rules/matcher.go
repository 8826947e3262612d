package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// maxRegexLen limits user-defined regex pattern length to bound compilation cost.
const maxRegexLen = 4096

// compileRegex compiles a regex with a length limit.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > maxRegexLen {
		return nil, fmt.Errorf("regex pattern too long (%d > %d chars)", len(pattern), maxRegexLen)
	}
	return regexp.Compile(pattern)
}

// sanitizePattern rejects patterns containing null bytes or control characters.
func sanitizePattern(pattern string) error {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == 0 {
			return fmt.Errorf("pattern contains null byte at position %d", i)
		}
		if pattern[i] < 0x20 && pattern[i] != '\t' {
			return fmt.Errorf("pattern contains control character 0x%02x at position %d", pattern[i], i)
		}
	}
	return nil
}

// subcommandPattern matches the first n leading words joined by spaces.
type subcommandPattern struct {
	words int
	g     glob.Glob
}

// endpointPattern is a "re:" regex or a '/'-separated glob.
type endpointPattern struct {
	re *regexp.Regexp
	g  glob.Glob
}

func (p endpointPattern) match(path string) bool {
	if p.re != nil {
		return p.re.MatchString(path)
	}
	return p.g.Match(path)
}

// CompiledRule is a rule with pre-compiled matchers
type CompiledRule struct {
	Rule        Rule
	subcommands []subcommandPattern
	endpoints   []endpointPattern
	methods     map[string]bool
	mutations   map[string]bool
	when        func(*Facts) bool
}

// compileRule validates and compiles a single rule's patterns.
func compileRule(rule Rule) (CompiledRule, error) {
	if err := rule.Validate(); err != nil {
		return CompiledRule{}, fmt.Errorf("rule %q: %w", rule.Name, err)
	}
	cr := CompiledRule{Rule: rule}

	for i, p := range rule.Subcommand {
		if err := sanitizePattern(p); err != nil {
			return CompiledRule{}, fmt.Errorf("rule %q subcommand[%d]: %w", rule.Name, i, err)
		}
		g, err := glob.Compile(p, ' ')
		if err != nil {
			return CompiledRule{}, fmt.Errorf("rule %q subcommand glob %q: %w", rule.Name, p, err)
		}
		cr.subcommands = append(cr.subcommands, subcommandPattern{words: len(strings.Fields(p)), g: g})
	}

	for i, p := range rule.Endpoint {
		if err := sanitizePattern(p); err != nil {
			return CompiledRule{}, fmt.Errorf("rule %q endpoint[%d]: %w", rule.Name, i, err)
		}
		if strings.HasPrefix(p, "re:") {
			re, err := compileRegex(p[3:])
			if err != nil {
				return CompiledRule{}, fmt.Errorf("rule %q endpoint regex %q: %w", rule.Name, p, err)
			}
			cr.endpoints = append(cr.endpoints, endpointPattern{re: re})
			continue
		}
		g, err := glob.Compile(strings.TrimPrefix(p, "/"), '/')
		if err != nil {
			return CompiledRule{}, fmt.Errorf("rule %q endpoint glob %q: %w", rule.Name, p, err)
		}
		cr.endpoints = append(cr.endpoints, endpointPattern{g: g})
	}

	if len(rule.Methods) > 0 {
		cr.methods = make(map[string]bool, len(rule.Methods))
		for _, m := range rule.Methods {
			if !methodShape.MatchString(m) {
				return CompiledRule{}, fmt.Errorf("rule %q: invalid method %q", rule.Name, m)
			}
			cr.methods[strings.ToUpper(m)] = true
		}
	}
	if len(rule.Mutations) > 0 {
		cr.mutations = set(rule.Mutations...)
	}
	if rule.When != "" {
		cr.when = predicates[rule.When]
	}
	return cr, nil
}

// Matches reports whether the rule's condition holds for f.
func (cr *CompiledRule) Matches(f *Facts) bool {
	switch {
	case cr.when != nil:
		return cr.when(f)
	case len(cr.subcommands) > 0:
		for _, p := range cr.subcommands {
			if len(f.Words) >= p.words && p.g.Match(strings.Join(f.Words[:p.words], " ")) {
				return true
			}
		}
		return false
	case len(cr.endpoints) > 0:
		if !restCall(f) || f.REST.Endpoint == "" {
			return false
		}
		if cr.methods != nil && !cr.methods[f.REST.EffectiveMethod()] {
			return false
		}
		path := endpointPath(f.REST.Endpoint)
		for _, p := range cr.endpoints {
			if p.match(path) {
				return true
			}
		}
		return false
	case cr.mutations != nil:
		return mutationsAllowed(f, cr.mutations)
	}
	return false
}

// endpointPath drops the leading slash and query string.
func endpointPath(endpoint string) string {
	path, _, _ := strings.Cut(endpoint, "?")
	return strings.TrimPrefix(path, "/")
}

// mutationsAllowed holds only when every root field of every mutation
// operation is allow-listed and unaliased.
func mutationsAllowed(f *Facts, allowed map[string]bool) bool {
	r := f.REST
	if r == nil || !r.GraphQL || r.Operation != OperationMutation || r.Problem != "" || len(r.Mutations) == 0 {
		return false
	}
	for _, field := range r.Mutations {
		if field.Alias != "" || !allowed[field.Name] {
			return false
		}
	}
	return true
}

var placeholder = regexp.MustCompile(`\{[a-z]+\}`)

var knownPlaceholders = map[string]bool{
	"{method}": true, "{endpoint}": true, "{script}": true,
	"{module}": true, "{boundary}": true, "{detail}": true,
}

// renderMessage fills the message placeholders from f.
func renderMessage(msg string, f *Facts, boundary string) string {
	if !strings.Contains(msg, "{") {
		return msg
	}
	var method, endpoint, script, module string
	if f.REST != nil {
		method = f.REST.EffectiveMethod()
		endpoint = f.REST.Endpoint
	}
	if f.Interp != nil {
		script = f.Interp.Script
		module = f.Interp.Module
	}
	out := strings.NewReplacer(
		"{method}", method,
		"{endpoint}", endpoint,
		"{script}", script,
		"{module}", module,
		"{boundary}", boundary,
		"{detail}", factDetail(f),
	).Replace(msg)
	return strings.Join(strings.Fields(out), " ")
}

// factDetail is the most specific explanation the parsers recorded.
func factDetail(f *Facts) string {
	switch {
	case f.Malformed != "":
		return f.Malformed
	case f.UnsafeEnv != "":
		return f.UnsafeEnv
	}
	if r := f.REST; r != nil {
		if r.Problem != "" {
			return r.Problem
		}
		for _, field := range r.Mutations {
			if field.Alias != "" {
				return fmt.Sprintf("%s aliased as %s", field.Name, field.Alias)
			}
		}
		if len(r.Mutations) > 0 {
			names := make([]string, len(r.Mutations))
			for i, field := range r.Mutations {
				names[i] = field.Name
			}
			return strings.Join(names, ", ")
		}
	}
	if it := f.Interp; it != nil {
		switch {
		case it.ScriptProblem != "":
			return it.ScriptProblem
		case it.ModuleProblem != "":
			return it.ModuleProblem
		}
	}
	return ""
}
