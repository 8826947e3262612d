package shell

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// ErrMalformed is returned when a command line cannot be parsed as bash.
var ErrMalformed = errors.New("malformed command")

// ErrUnexpandable is returned when an argument needs an expansion that
// cannot be evaluated without running something.
var ErrUnexpandable = errors.New("argument cannot be expanded statically")

// Parse parses src as a bash command line and returns the leftmost simple
// command of its first statement. Later pipeline stages and list members
// are not returned; the scanner is responsible for them.
func Parse(src string) (*syntax.CallExpr, error) {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(src), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(file.Stmts) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrMalformed)
	}
	call := leftmostCall(file.Stmts[0])
	if call == nil || len(call.Args) == 0 {
		return nil, fmt.Errorf("%w: not a simple command", ErrMalformed)
	}
	return call, nil
}

func leftmostCall(st *syntax.Stmt) *syntax.CallExpr {
	if st == nil {
		return nil
	}
	switch c := st.Cmd.(type) {
	case *syntax.CallExpr:
		return c
	case *syntax.BinaryCmd:
		return leftmostCall(c.X)
	}
	return nil
}

// Fields parses src and returns the literal text of each argument word
// with quotes removed. Parameter expansions are kept as $NAME / ${NAME}
// and command substitutions as $(…); nothing is evaluated.
func Fields(src string) ([]string, error) {
	call, err := Parse(src)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		out = append(out, Literal(w))
	}
	return out, nil
}

// Literal reconstructs the text of a word after quote removal.
func Literal(w *syntax.Word) string {
	if w == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(unescape(p.Value, false))
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				switch ip := inner.(type) {
				case *syntax.Lit:
					sb.WriteString(unescape(ip.Value, true))
				case *syntax.ParamExp:
					writeParam(&sb, ip)
				case *syntax.CmdSubst:
					sb.WriteString("$(…)")
				}
			}
		case *syntax.ParamExp:
			writeParam(&sb, p)
		case *syntax.CmdSubst:
			sb.WriteString("$(…)")
		}
	}
	return sb.String()
}

func writeParam(sb *strings.Builder, p *syntax.ParamExp) {
	if p.Param == nil {
		return
	}
	if p.Short {
		sb.WriteString("$")
		sb.WriteString(p.Param.Value)
		return
	}
	sb.WriteString("${")
	sb.WriteString(p.Param.Value)
	sb.WriteString("}")
}

// unescape performs bash backslash removal. Inside double quotes only
// $ ` " \ and newline are escapable.
func unescape(s string, inDouble bool) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		next := s[i+1]
		switch {
		case next == '\n':
			i++
		case !inDouble || strings.IndexByte("$`\"\\", next) >= 0:
			sb.WriteByte(next)
			i++
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// Expand parses src and expands its argument words the way bash would
// before exec: tilde, brace and parameter expansion against env, field
// splitting and quote removal. Pathname globbing is not performed.
// Command and process substitution fail with ErrUnexpandable.
func Expand(src string, env []string) ([]string, error) {
	call, err := Parse(src)
	if err != nil {
		return nil, err
	}
	cfg := &expand.Config{Env: expand.ListEnviron(env...)}
	var out []string
	for _, w := range call.Args {
		if hasSubst(w) {
			return nil, fmt.Errorf("%w: %s", ErrUnexpandable, Literal(w))
		}
		fields, err := expand.Fields(cfg, w)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpandable, err)
		}
		out = append(out, fields...)
	}
	return out, nil
}

// hasSubst checks if a word contains command, process or arithmetic substitution.
func hasSubst(w *syntax.Word) bool {
	found := false
	syntax.Walk(w, func(node syntax.Node) bool {
		switch node.(type) {
		case *syntax.CmdSubst, *syntax.ProcSubst, *syntax.ArithmExp:
			found = true
		}
		return !found
	})
	return found
}
