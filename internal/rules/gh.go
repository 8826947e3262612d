package rules

import (
	"errors"
	"regexp"
	"strings"

	"github.com/xde-mcp/cmdgate/internal/shell"
)

var (
	endpointShape = regexp.MustCompile(`^/?[a-zA-Z][a-zA-Z0-9_/{}.-]*(?:\?[^\s]*)?$`)
	methodShape   = regexp.MustCompile(`^[A-Za-z]+$`)
)

func parseRESTCLI(g *Grammar, inv *shell.Invocation) *Facts {
	f := &Facts{}
	args, err := shell.Fields(inv.Target)
	if err != nil {
		f.Malformed = malformedReason(err)
		return f
	}
	args = args[1:]
	f.Words = leadingWords(args)

	if g.REST != nil && len(args) > 0 && args[0] == g.REST.Command {
		rest, unrecognized := parseRESTRequest(g.REST, args[1:])
		f.REST = rest
		f.Unrecognized = unrecognized
	}
	return f
}

func malformedReason(err error) string {
	if errors.Is(err, shell.ErrMalformed) {
		return "unparseable command syntax"
	}
	return err.Error()
}

// parseRESTRequest walks the passthrough command's arguments with the
// CLI's own flag rules: --flag value, --flag=value, -Xvalue and -X value,
// short clusters, last method wins.
func parseRESTRequest(rg *RESTGrammar, args []string) (*RESTFacts, string) {
	r := &RESTFacts{Operation: OperationUnknown}
	var positional []string
	var documents []string
	fromFile := false

	apply := func(role FlagRole, value string) string {
		switch role {
		case RoleMethod:
			if !methodShape.MatchString(value) {
				return "unrecognized method " + value
			}
			r.Method = strings.ToUpper(value)
		case RoleInput:
			r.HasPayload = true
			fromFile = true
		case RoleField:
			r.HasPayload = true
			key, val, _ := strings.Cut(value, "=")
			if key == "query" {
				if strings.HasPrefix(val, "@") {
					fromFile = true
				} else {
					documents = append(documents, val)
				}
			}
		}
		return ""
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			positional = append(positional, args[i+1:]...)
			i = len(args)
		case strings.HasPrefix(a, "--"):
			name, value, hasValue := strings.Cut(a, "=")
			if rg.Flags.Bool[name] {
				continue
			}
			role, ok := rg.Flags.Value[name]
			if !ok {
				return r, "unrecognized flag " + name
			}
			if !hasValue {
				if i+1 >= len(args) {
					return r, "flag " + name + " needs a value"
				}
				i++
				value = args[i]
			}
			if problem := apply(role, value); problem != "" {
				return r, problem
			}
		case strings.HasPrefix(a, "-") && len(a) > 1:
			// Short cluster: bool letters, then at most one value letter
			// taking the rest of the cluster or the next argument.
			for j := 1; j < len(a); j++ {
				name := "-" + a[j:j+1]
				if rg.Flags.Bool[name] {
					continue
				}
				role, ok := rg.Flags.Value[name]
				if !ok {
					return r, "unrecognized flag " + name
				}
				value := strings.TrimPrefix(a[j+1:], "=")
				if j+1 == len(a) {
					if i+1 >= len(args) {
						return r, "flag " + name + " needs a value"
					}
					i++
					value = args[i]
				}
				if problem := apply(role, value); problem != "" {
					return r, problem
				}
				break
			}
		default:
			positional = append(positional, a)
		}
	}

	if len(positional) > 1 {
		return r, "more than one endpoint"
	}
	if len(positional) == 1 && endpointShape.MatchString(positional[0]) {
		r.Endpoint = positional[0]
	}

	if strings.TrimPrefix(r.Endpoint, "/") == rg.GraphQLEndpoint {
		r.GraphQL = true
		switch {
		case fromFile:
			r.Problem = "GraphQL document read from a file"
		case len(documents) == 0:
			inspectGraphQL(r, []string{strings.Join(args, " ")})
		default:
			inspectGraphQL(r, documents)
		}
	}
	return r, ""
}
