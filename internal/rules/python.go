package rules

import (
	"errors"
	"strings"

	"github.com/xde-mcp/cmdgate/internal/shell"
)

// parseContext carries the read-only environment an interpreter parse needs.
type parseContext struct {
	env         []string
	containment *Containment
	// boundary is the absolute directory scripts must live in.
	boundary string
	// modules are the module names enabled by configuration.
	modules map[string]bool
}

func parseInterpreter(g *Grammar, inv *shell.Invocation, ctx *parseContext) *Facts {
	it := &InterpreterFacts{}
	f := &Facts{Interp: it}

	args, err := shell.Expand(inv.Target, ctx.env)
	if err != nil {
		if errors.Is(err, shell.ErrMalformed) {
			f.Malformed = "unparseable command syntax"
		} else {
			f.Malformed = err.Error()
		}
		return f
	}
	args = args[1:]
	if len(args) == 0 {
		it.Interactive = true
		return f
	}

	ig := g.Interpreter
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			if i+1 >= len(args) {
				it.Interactive = true
				return f
			}
			setScript(it, args[i+1], ctx)
			return f
		case a == "-":
			it.Stdin = true
			return f
		case strings.HasPrefix(a, "--"):
			name, _, hasValue := strings.Cut(a, "=")
			if ig.LongPassthrough[name] {
				it.Passthrough = true
				return f
			}
			if ig.LongValue[name] && !hasValue {
				i++
			}
		case strings.HasPrefix(a, "-"):
			c := readCluster(ig, a)
			switch {
			case c.code:
				it.InlineCode = true
				return f
			case c.module:
				it.ModuleFlag = true
				name := c.moduleName
				if name == "" {
					if i+1 >= len(args) {
						it.ModuleProblem = "missing module name"
						return f
					}
					i++
					name = args[i]
				}
				it.Module = name
				spec, known := ig.Modules[name]
				if known && ctx.modules[name] {
					it.ModuleAllowed = true
					it.ModuleProblem = validateModuleArgs(spec, args[i+1:], ctx)
				}
				return f
			case c.interactive:
				it.Interactive = true
				return f
			case c.passthrough:
				it.Passthrough = true
				return f
			case c.consumesNext:
				i++
			}
		default:
			setScript(it, a, ctx)
			return f
		}
	}
	it.Passthrough = true
	return f
}

func setScript(it *InterpreterFacts, path string, ctx *parseContext) {
	it.Script = path
	if err := ctx.containment.Check(ctx.boundary, path); err != nil {
		it.ScriptProblem = err.Error()
		return
	}
	it.ScriptContained = true
}

type cluster struct {
	code, module, interactive, passthrough bool
	moduleName                             string
	consumesNext                           bool
}

// readCluster decodes a short-option cluster like the interpreter's
// getopt: letters are flags until one takes an argument, which is the
// rest of the cluster or, when that is empty, the next token.
func readCluster(ig *InterpreterGrammar, a string) cluster {
	var c cluster
	for j := 1; j < len(a); j++ {
		ch := a[j]
		rest := a[j+1:]
		switch {
		case ch == ig.ShortCode:
			c.code = true
			return c
		case ch == ig.ShortModule:
			c.module = true
			c.moduleName = rest
			return c
		case strings.IndexByte(ig.ShortValue, ch) >= 0:
			c.consumesNext = rest == ""
			return c
		case ch == ig.ShortInteractive:
			c.interactive = true
		case strings.IndexByte(ig.ShortPassthrough, ch) >= 0:
			c.passthrough = true
		}
	}
	return c
}
