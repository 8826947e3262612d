package rules

import (
	"github.com/xde-mcp/cmdgate/internal/logger"
	"github.com/xde-mcp/cmdgate/internal/types"
)

var log = logger.New("rules")

// Decision is the classifier's answer for one command.
type Decision struct {
	Verdict types.Verdict `json:"verdict"`
	Reason  string        `json:"reason,omitempty"`
	Rule    string        `json:"rule,omitempty"`
	Grammar string        `json:"grammar,omitempty"`
}

func noOpinion(reason string) Decision {
	return Decision{Verdict: types.VerdictNoOpinion, Reason: reason}
}

// OperationKind is the GraphQL operation type found in a request.
type OperationKind string

const (
	OperationUnknown  OperationKind = "unknown"
	OperationQuery    OperationKind = "query"
	OperationMutation OperationKind = "mutation"
)

// Facts is the structured view of one invocation that rules match against.
// Exactly one of REST and Interp is set for a parsed command.
type Facts struct {
	Grammar string
	// Words are the leading non-flag arguments after the program
	// (the sub-command path, e.g. ["pr", "view", "12"]).
	Words []string
	// Malformed is set when the arguments could not be parsed.
	Malformed string
	// Unrecognized is set when the arguments parsed but use syntax the
	// grammar does not model; such commands get no opinion.
	Unrecognized string
	// UnsafeEnv names an environment prefix that can change what runs.
	UnsafeEnv string

	REST   *RESTFacts
	Interp *InterpreterFacts
}

// RESTFacts describes a REST/GraphQL CLI request.
type RESTFacts struct {
	// Method is the explicit --method value, upper-cased, or empty.
	Method     string
	Endpoint   string
	HasPayload bool
	GraphQL    bool
	Operation  OperationKind
	// Mutations are the root fields of every mutation operation.
	Mutations []GraphQLField
	// Problem explains why a mutation could not be verified.
	Problem string
}

// EffectiveMethod is the method the CLI will send: the explicit one, or
// POST when request fields are present, or GET.
func (r *RESTFacts) EffectiveMethod() string {
	switch {
	case r.Method != "":
		return r.Method
	case r.HasPayload:
		return "POST"
	}
	return "GET"
}

// GraphQLField is a root selection of an operation.
type GraphQLField struct {
	Alias string `json:"alias,omitempty"`
	Name  string `json:"name"`
}

// InterpreterFacts describes an interpreter invocation.
type InterpreterFacts struct {
	Script          string
	ScriptContained bool
	// ScriptProblem explains a containment failure.
	ScriptProblem string
	// ModuleFlag is set when -m was given, even without a module name.
	ModuleFlag    bool
	Module        string
	ModuleAllowed bool
	// ModuleProblem is the first argument violation reported by the module's validator.
	ModuleProblem string
	InlineCode    bool
	Interactive   bool
	// Stdin is set when the program is read from standard input ("-").
	Stdin       bool
	Passthrough bool
}
