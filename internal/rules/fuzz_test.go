//go:build go1.18

package rules

import (
	"strings"
	"testing"

	"github.com/xde-mcp/cmdgate/internal/types"
)

// FuzzClassify checks that classification never panics and that a
// command with an unquoted statement separator is never allowed.
func FuzzClassify(f *testing.F) {
	seeds := []string{
		"gh pr view 1",
		"gh api -X DELETE repos/o/r",
		`gh api graphql -f query='mutation { a: b { c } }'`,
		"python .claude/hooks/check.py",
		"python -m pytest tests",
		"python -c 'x'",
		`gh pr create --body "$(id)"`,
		"gh pr view 1; id",
		`python "`,
		"sudo env A=1 gh api repos",
		"",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	project := f.TempDir()
	e, err := NewEngine(EngineConfig{ProjectDir: project, BoundaryDir: ".claude", Modules: []string{"pytest"}})
	if err != nil {
		f.Fatalf("Failed to create engine: %v", err)
	}

	f.Fuzz(func(t *testing.T, cmd string) {
		d := e.Classify(cmd)
		if !d.Verdict.Valid() {
			t.Fatalf("invalid verdict %q for %q", d.Verdict, cmd)
		}
		if d.Verdict == types.VerdictAllow && !strings.ContainsAny(cmd, `'"\`) && strings.Contains(cmd, ";") {
			t.Errorf("allowed command with a live separator: %q", cmd)
		}
	})
}

// FuzzInspectGraphQL checks the GraphQL reader for panics.
func FuzzInspectGraphQL(f *testing.F) {
	for _, s := range []string{
		"mutation { a }",
		`mutation { a(x: """ } """) { b } }`,
		"mutation { ...F }",
		"query { x }",
		"mutation ( @ {",
		"\"\\",
		"query Q",
		"query @",
		"fragment F on",
		"query { a(b: \"",
		"query Q { viewer { login } } mutation M, { a }",
	} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, doc string) {
		r := &RESTFacts{Operation: OperationUnknown}
		inspectGraphQL(r, []string{doc})
		if r.Operation == OperationMutation && r.Problem == "" && len(r.Mutations) == 0 {
			t.Errorf("mutation without fields or problem: %q", doc)
		}

		// Whatever precedes it, a trailing mutation operation is never
		// read as part of a query.
		r = &RESTFacts{Operation: OperationUnknown}
		inspectGraphQL(r, []string{doc + "\nmutation M, { deleteRepository(input: {}) { clientMutationId } }"})
		if r.Operation == OperationQuery {
			t.Errorf("trailing mutation read as query after %q", doc)
		}
	})
}
