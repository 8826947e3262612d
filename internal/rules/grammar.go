package rules

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/xde-mcp/cmdgate/internal/shell"
)

// GrammarKind selects which argument parser a Grammar uses.
type GrammarKind string

const (
	// KindRESTCLI is a sub-command CLI with a REST/GraphQL passthrough command.
	KindRESTCLI GrammarKind = "rest-cli"
	// KindInterpreter is a script interpreter invocation.
	KindInterpreter GrammarKind = "interpreter"
)

// Grammar describes one target program family. The classifier core is
// shared; everything program-specific lives in this value.
type Grammar struct {
	Name    string
	Display string
	Kind    GrammarKind
	// Programs are glob patterns over the program's base name.
	Programs []string
	// InputRedirects adds <, << and <<< to the scanned metacharacters.
	InputRedirects bool
	// ScanExempt lists first sub-command words whose double-quoted
	// arguments are trusted by the scanner.
	ScanExempt []string
	// UnsafeEnv are glob patterns of NAME=value prefixes that can change
	// which code runs (PATH, pagers, interpreter search paths).
	UnsafeEnv []string

	REST        *RESTGrammar
	Interpreter *InterpreterGrammar
}

// FlagRole says what a value-taking flag feeds.
type FlagRole string

const (
	RoleNone    FlagRole = ""
	RoleMethod  FlagRole = "method"
	RoleField   FlagRole = "field"
	RoleInput   FlagRole = "input"
	RoleGeneric FlagRole = "value"
)

// FlagTable lists the flags of one command. Value maps flags that consume
// an argument to their role; Bool lists flags that stand alone.
type FlagTable struct {
	Value map[string]FlagRole
	Bool  map[string]bool
}

// RESTGrammar holds the REST passthrough command's tables.
type RESTGrammar struct {
	// Command is the sub-command that takes an endpoint ("api").
	Command string
	// GraphQLEndpoint switches to GraphQL inspection.
	GraphQLEndpoint string
	Flags           FlagTable
}

// InterpreterGrammar holds an interpreter's option tables.
type InterpreterGrammar struct {
	// ShortValue are short options whose argument is the rest of the
	// cluster or the next token.
	ShortValue string
	// ShortModule and ShortCode select module and inline-code execution.
	ShortModule byte
	ShortCode   byte
	// ShortInteractive drops into a REPL after the script.
	ShortInteractive byte
	// ShortPassthrough print information and exit.
	ShortPassthrough string
	LongPassthrough  map[string]bool
	LongValue        map[string]bool
	// Modules are the argument validators for modules that may be allowed.
	Modules map[string]*ModuleSpec
}

// ModuleSpec describes a module's own command line for validation.
type ModuleSpec struct {
	PathOptions     map[string]bool
	ValueOptions    map[string]bool
	RejectedOptions map[string]bool
	// NodeIDSeparator strips test selectors ("::name") from positional paths.
	NodeIDSeparator string
}

// programSet is a shell.ProgramMatcher over several globs.
type programSet []glob.Glob

func (ps programSet) Match(name string) bool {
	for _, g := range ps {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func compileGlobs(patterns []string) (programSet, error) {
	set := make(programSet, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		set = append(set, g)
	}
	return set, nil
}

// compiledGrammar is a Grammar with its matchers and scanner built.
type compiledGrammar struct {
	*Grammar
	programs  programSet
	unsafeEnv programSet
	scanner   *shell.Scanner
}

func compileGrammar(g *Grammar, safePipes []string) (*compiledGrammar, error) {
	programs, err := compileGlobs(g.Programs)
	if err != nil {
		return nil, fmt.Errorf("grammar %s: %w", g.Name, err)
	}
	unsafeEnv, err := compileGlobs(g.UnsafeEnv)
	if err != nil {
		return nil, fmt.Errorf("grammar %s: %w", g.Name, err)
	}
	return &compiledGrammar{
		Grammar:   g,
		programs:  programs,
		unsafeEnv: unsafeEnv,
		scanner: shell.NewScanner(shell.Profile{
			SafePipes:      safePipes,
			InputRedirects: g.InputRedirects,
		}),
	}, nil
}

// scanExempt reports whether the invocation's first sub-command word is exempt.
func (g *compiledGrammar) scanExempt(inv *shell.Invocation) bool {
	words := strings.Fields(inv.Args)
	if len(words) == 0 {
		return false
	}
	for _, w := range g.ScanExempt {
		if words[0] == w {
			return true
		}
	}
	return false
}

// unsafeAssignment returns the first environment prefix matching UnsafeEnv.
func (g *compiledGrammar) unsafeAssignment(inv *shell.Invocation) string {
	for _, a := range inv.Env {
		name, _, _ := strings.Cut(a, "=")
		if g.unsafeEnv.Match(name) {
			return name
		}
	}
	return ""
}

// parse dispatches to the grammar kind's argument parser.
func (g *compiledGrammar) parse(inv *shell.Invocation, ctx *parseContext) *Facts {
	var f *Facts
	switch g.Kind {
	case KindRESTCLI:
		f = parseRESTCLI(g.Grammar, inv)
	case KindInterpreter:
		f = parseInterpreter(g.Grammar, inv, ctx)
	default:
		f = &Facts{Unrecognized: "unknown grammar kind " + string(g.Kind)}
	}
	f.Grammar = g.Name
	f.UnsafeEnv = g.unsafeAssignment(inv)
	return f
}

// leadingWords returns the arguments before the first flag.
func leadingWords(args []string) []string {
	for i, a := range args {
		if strings.HasPrefix(a, "-") {
			return args[:i]
		}
	}
	return args
}

// Program-executing variables shared by both grammars.
var commonUnsafeEnv = []string{"PATH", "LD_*", "DYLD_*", "BASH_ENV", "ENV", "HOME", "XDG_CONFIG_HOME"}

// GHGrammar describes the GitHub CLI.
func GHGrammar() *Grammar {
	return &Grammar{
		Name:       "gh",
		Display:    "gh",
		Kind:       KindRESTCLI,
		Programs:   []string{"gh"},
		ScanExempt: []string{"pr"},
		UnsafeEnv: append([]string{
			"BROWSER", "GH_BROWSER", "*PAGER", "*EDITOR", "VISUAL",
			"GIT_*", "GH_CONFIG_DIR", "GH_HOST", "SSH_ASKPASS",
		}, commonUnsafeEnv...),
		REST: &RESTGrammar{
			Command:         "api",
			GraphQLEndpoint: "graphql",
			Flags: FlagTable{
				Value: map[string]FlagRole{
					"--method": RoleMethod, "-X": RoleMethod,
					"--input":     RoleInput,
					"--field":     RoleField, "-F": RoleField,
					"--raw-field": RoleField, "-f": RoleField,
					"--jq": RoleGeneric, "-q": RoleGeneric,
					"--template": RoleGeneric, "-t": RoleGeneric,
					"--header": RoleGeneric, "-H": RoleGeneric,
					"--preview": RoleGeneric, "-p": RoleGeneric,
					"--hostname": RoleGeneric,
					"--cache":    RoleGeneric,
				},
				Bool: map[string]bool{
					"--paginate": true, "--silent": true, "--verbose": true,
					"--include": true, "-i": true, "--slurp": true,
				},
			},
		},
	}
}

// PythonGrammar describes the CPython command line.
func PythonGrammar() *Grammar {
	return &Grammar{
		Name:           "python",
		Display:        "Python",
		Kind:           KindInterpreter,
		Programs:       []string{"python", "python3", "python3.[0-9]*"},
		InputRedirects: true,
		UnsafeEnv:      append([]string{"PYTHON*", "PYTEST_*"}, commonUnsafeEnv...),
		Interpreter: &InterpreterGrammar{
			ShortValue:       "WX",
			ShortModule:      'm',
			ShortCode:        'c',
			ShortInteractive: 'i',
			ShortPassthrough: "Vh?",
			LongPassthrough: map[string]bool{
				"--version": true, "--help": true, "--help-env": true,
				"--help-xoptions": true, "--help-all": true,
			},
			LongValue: map[string]bool{"--check-hash-based-pycs": true},
			Modules: map[string]*ModuleSpec{
				"pytest": PytestSpec(),
			},
		},
	}
}

// PytestSpec describes the pytest options that matter for containment.
func PytestSpec() *ModuleSpec {
	return &ModuleSpec{
		PathOptions: set(
			"--rootdir", "--confcutdir", "--basetemp", "-c", "--config-file",
			"--junitxml", "--junit-xml", "--ignore", "--deselect",
			"--log-file", "--resultlog", "--cov-config",
		),
		ValueOptions: set(
			"-k", "-m", "--maxfail", "--tb", "-r", "--durations", "-n",
			"--ignore-glob", "--log-level", "--log-cli-level", "--timeout",
			"--color", "--capture", "-W", "--cov", "--cov-report", "--dist",
			"--import-mode", "--junit-prefix", "--durations-min",
		),
		RejectedOptions: set("--pyargs", "-p", "-o", "--override-ini"),
		NodeIDSeparator: "::",
	}
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
