package rules

import (
	"errors"
	"fmt"

	"github.com/xde-mcp/cmdgate/internal/types"
)

// Rule is one entry of a grammar's ordered rule table.
type Rule struct {
	Name    string          `yaml:"name" json:"name"`
	Grammar string          `yaml:"grammar,omitempty" json:"grammar"`
	Class   types.RuleClass `yaml:"class" json:"class"`
	Message string          `yaml:"message" json:"message"`
	Enabled *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"` // default true

	// Conditions. Exactly one of Subcommand, Endpoint, Mutations and When
	// is set; Methods narrows Endpoint.
	Subcommand StringOrArray `yaml:"subcommand,omitempty" json:"subcommand,omitempty"`
	Endpoint   StringOrArray `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Methods    []string      `yaml:"methods,omitempty" json:"methods,omitempty"`
	Mutations  []string      `yaml:"mutations,omitempty" json:"mutations,omitempty"`
	When       Predicate     `yaml:"when,omitempty" json:"when,omitempty"`

	// Runtime fields
	Source   string `yaml:"-" json:"source,omitempty"`
	FilePath string `yaml:"-" json:"file_path,omitempty"`
	HitCount int64  `yaml:"-" json:"hit_count,omitempty"`
}

// Rule sources
const (
	SourceBuiltin = "builtin"
	SourceUser    = "user"
	SourceCLI     = "cli"
)

// IsEnabled returns whether the rule is enabled (default true)
func (r *Rule) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

func (r *Rule) conditionCount() int {
	n := 0
	if len(r.Subcommand) > 0 {
		n++
	}
	if len(r.Endpoint) > 0 {
		n++
	}
	if len(r.Mutations) > 0 {
		n++
	}
	if r.When != "" {
		n++
	}
	return n
}

// Validate checks the rule's shape. Pattern compilation is checked
// separately by compileRule.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return errors.New("rule name is required")
	}
	if r.Message == "" {
		return errors.New("rule message is required")
	}
	if !r.Class.Valid() {
		return fmt.Errorf("unknown class %q (valid: allow-write, deny, ask, allow-read)", r.Class)
	}
	switch n := r.conditionCount(); {
	case n == 0:
		return errors.New("rule needs one of subcommand, endpoint, mutations, when")
	case n > 1:
		return errors.New("rule cannot mix subcommand/endpoint/mutations/when")
	}
	if len(r.Methods) > 0 && len(r.Endpoint) == 0 {
		return errors.New("methods requires endpoint")
	}
	if r.When != "" && !r.When.Valid() {
		return fmt.Errorf("unknown predicate %q", r.When)
	}
	if len(r.Mutations) > 0 && r.Class != types.ClassAllowWrite {
		return errors.New("mutations rules must be allow-write")
	}
	if r.Source == SourceUser && r.Class == types.ClassAllowWrite {
		return errors.New("allow-write rules are builtin only")
	}
	return nil
}

// Predicate names a structural test over parsed facts.
type Predicate string

const (
	WhenDestructiveMethod     Predicate = "destructive-method"
	WhenImplicitWrite         Predicate = "implicit-write"
	WhenReadMethod            Predicate = "read-method"
	WhenGraphQLQuery          Predicate = "graphql-query"
	WhenGraphQLMutation       Predicate = "graphql-mutation"
	WhenMalformed             Predicate = "malformed"
	WhenUnsafeEnv             Predicate = "unsafe-env"
	WhenInteractive           Predicate = "interactive"
	WhenStdinScript           Predicate = "stdin-script"
	WhenInlineCode            Predicate = "inline-code"
	WhenModuleExec            Predicate = "module-exec"
	WhenModuleAllowed         Predicate = "module-allowed"
	WhenScriptOutsideBoundary Predicate = "script-outside-boundary"
	WhenScriptInsideBoundary  Predicate = "script-inside-boundary"
	WhenPassthrough           Predicate = "passthrough"
)

var predicates = map[Predicate]func(*Facts) bool{
	WhenDestructiveMethod: func(f *Facts) bool {
		return restCall(f) && !readMethods[f.REST.EffectiveMethod()]
	},
	WhenImplicitWrite: func(f *Facts) bool {
		return restCall(f) && f.REST.Method == "" && f.REST.HasPayload
	},
	WhenReadMethod: func(f *Facts) bool {
		return restCall(f) && readMethods[f.REST.EffectiveMethod()]
	},
	WhenGraphQLQuery: func(f *Facts) bool {
		return f.REST != nil && f.REST.GraphQL && f.REST.Operation == OperationQuery && f.REST.Problem == ""
	},
	WhenGraphQLMutation: func(f *Facts) bool {
		return f.REST != nil && f.REST.GraphQL && f.REST.Operation == OperationMutation
	},
	WhenMalformed: func(f *Facts) bool { return f.Malformed != "" },
	WhenUnsafeEnv: func(f *Facts) bool { return f.UnsafeEnv != "" },
	WhenInteractive: func(f *Facts) bool {
		return f.Interp != nil && (f.Interp.Interactive || f.Interp.Stdin)
	},
	WhenStdinScript: func(f *Facts) bool { return f.Interp != nil && f.Interp.Stdin },
	WhenInlineCode:  func(f *Facts) bool { return f.Interp != nil && f.Interp.InlineCode },
	WhenModuleExec: func(f *Facts) bool {
		return f.Interp != nil && f.Interp.ModuleFlag && !moduleAccepted(f.Interp)
	},
	WhenModuleAllowed: func(f *Facts) bool {
		return f.Interp != nil && f.Interp.ModuleFlag && moduleAccepted(f.Interp)
	},
	WhenScriptOutsideBoundary: func(f *Facts) bool {
		return f.Interp != nil && f.Interp.Script != "" && !f.Interp.ScriptContained
	},
	WhenScriptInsideBoundary: func(f *Facts) bool {
		return f.Interp != nil && f.Interp.Script != "" && f.Interp.ScriptContained
	},
	WhenPassthrough: func(f *Facts) bool { return f.Interp != nil && f.Interp.Passthrough },
}

var readMethods = map[string]bool{"GET": true, "HEAD": true}

func restCall(f *Facts) bool {
	return f.REST != nil && !f.REST.GraphQL
}

func moduleAccepted(it *InterpreterFacts) bool {
	return it.ModuleAllowed && it.ModuleProblem == ""
}

// Valid reports whether p names a known predicate.
func (p Predicate) Valid() bool {
	_, ok := predicates[p]
	return ok
}

// Predicates returns the known predicate names.
func Predicates() []Predicate {
	out := make([]Predicate, 0, len(predicates))
	for p := range predicates {
		out = append(out, p)
	}
	return out
}
