package rules

import (
	"fmt"
	"strings"
)

type optionKind int

const (
	optUnknown optionKind = iota
	optPath
	optValue
	optRejected
)

// minAbbrev is the shortest long-option prefix treated as an abbreviation
// of a path or rejected option.
const minAbbrev = 5

func (s *ModuleSpec) kindOf(name string) optionKind {
	switch {
	case s.RejectedOptions[name]:
		return optRejected
	case s.PathOptions[name]:
		return optPath
	case s.ValueOptions[name]:
		return optValue
	}
	if !strings.HasPrefix(name, "--") || len(name) < minAbbrev {
		return optUnknown
	}
	kind := optUnknown
	for opt := range s.RejectedOptions {
		if strings.HasPrefix(opt, name) {
			return optRejected
		}
	}
	for opt := range s.PathOptions {
		if strings.HasPrefix(opt, name) {
			kind = optPath
		}
	}
	return kind
}

// validateModuleArgs walks an allowed module's arguments. Path options
// and bare targets must stay inside the project; rejected options fail
// outright; other flags are skipped. It returns the first problem, or "".
func validateModuleArgs(spec *ModuleSpec, args []string, ctx *parseContext) string {
	positionalOnly := false
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case positionalOnly:
		case a == "--":
			positionalOnly = true
			continue
		case strings.HasPrefix(a, "--"):
			name, value, hasValue := strings.Cut(a, "=")
			kind := spec.kindOf(name)
			if kind == optRejected {
				return fmt.Sprintf("option %s loads code by name", name)
			}
			if kind == optPath || kind == optValue {
				if !hasValue {
					if i+1 >= len(args) {
						return fmt.Sprintf("option %s needs a value", name)
					}
					i++
					value = args[i]
				}
				if kind == optPath {
					if problem := checkProjectPath(spec, value, ctx); problem != "" {
						return problem
					}
				}
			}
			continue
		case strings.HasPrefix(a, "-") && len(a) > 1:
			for j := 1; j < len(a); j++ {
				name := "-" + a[j:j+1]
				kind := spec.kindOf(name)
				if kind == optRejected {
					return fmt.Sprintf("option %s loads code by name", name)
				}
				if kind != optPath && kind != optValue {
					continue
				}
				value := strings.TrimPrefix(a[j+1:], "=")
				if j+1 == len(a) {
					if i+1 >= len(args) {
						return fmt.Sprintf("option %s needs a value", name)
					}
					i++
					value = args[i]
				}
				if kind == optPath {
					if problem := checkProjectPath(spec, value, ctx); problem != "" {
						return problem
					}
				}
				break
			}
			continue
		}
		if problem := checkProjectPath(spec, a, ctx); problem != "" {
			return problem
		}
	}
	return ""
}

func checkProjectPath(spec *ModuleSpec, value string, ctx *parseContext) string {
	target := value
	if spec.NodeIDSeparator != "" {
		target, _, _ = strings.Cut(value, spec.NodeIDSeparator)
	}
	if target == "" {
		return fmt.Sprintf("empty path in %q", value)
	}
	if err := ctx.containment.Check(ctx.containment.Project(), target); err != nil {
		return err.Error()
	}
	return ""
}
