package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// mutationKeyword screens documents the definition walk could not read:
// a mutation keyword anywhere in them still makes the request a write.
var mutationKeyword = regexp.MustCompile(`(?i)\bmutation\b`)

func inspectGraphQL(r *RESTFacts, documents []string) {
	var query, mutation, unknown bool
	problem := func(msg string) {
		if r.Problem == "" {
			r.Problem = msg
		}
	}
	for _, doc := range documents {
		defs, err := topLevelDefinitions(doc)
		docUnknown := err != nil
		if err != nil {
			problem(err.Error())
		}
		docMutation := false
		for _, d := range defs {
			switch {
			case d.keyword == "{" || d.keyword == "query":
				query = true
			case strings.EqualFold(d.keyword, "mutation"):
				mutation, docMutation = true, true
				fields, err := mutationRootFields(doc[d.start:])
				if err != nil {
					problem(err.Error())
					continue
				}
				r.Mutations = append(r.Mutations, fields...)
			case d.keyword == "fragment":
				if strings.EqualFold(d.typeCondition, "Mutation") {
					mutation, docMutation = true, true
					problem("fragment on the Mutation type cannot be verified")
				}
			default:
				docUnknown = true
				problem(fmt.Sprintf("unsupported %q definition", d.keyword))
			}
		}
		if docUnknown {
			unknown = true
			if !docMutation && mutationKeyword.MatchString(doc) {
				mutation = true
				problem("mutation keyword in an unreadable document")
			}
		}
	}
	switch {
	case mutation:
		r.Operation = OperationMutation
		if r.Problem == "" && len(r.Mutations) == 0 {
			r.Problem = "mutation selects no fields"
		}
	case unknown:
		r.Operation = OperationUnknown
	case query:
		r.Operation = OperationQuery
	}
}

// gqlDefinition is one top-level definition of a document. keyword is the
// operation type, "fragment", or "{" for the query shorthand.
type gqlDefinition struct {
	keyword       string
	start         int
	typeCondition string
}

// topLevelDefinitions walks the definitions of doc at brace depth zero.
// Definitions read before an error are returned with it.
func topLevelDefinitions(doc string) ([]gqlDefinition, error) {
	lx := &gqlLexer{src: doc}
	var defs []gqlDefinition
	for {
		lx.skipIgnored()
		start := lx.pos
		tok := lx.next()
		switch {
		case tok.kind == tokEOF:
			return defs, nil
		case tok.is("{"):
			defs = append(defs, gqlDefinition{keyword: "{", start: start})
			if err := lx.skipBalanced("{", "}"); err != nil {
				return defs, err
			}
			continue
		case tok.kind != tokName:
			return defs, fmt.Errorf("unexpected %q at document top level", tok.text)
		}

		def := gqlDefinition{keyword: tok.text, start: start}
		names := 1
		if tok.text == "fragment" {
			name, on, typ := lx.next(), lx.next(), lx.next()
			if name.kind != tokName || on.kind != tokName || on.text != "on" || typ.kind != tokName {
				return defs, fmt.Errorf("malformed fragment definition")
			}
			def.typeCondition = typ.text
			names = 0
		}
		defs = append(defs, def)
		if err := skipDefinition(lx, names); err != nil {
			return defs, err
		}
	}
}

// skipDefinition consumes the rest of a definition header and its
// selection set. names is how many bare names the header may still hold;
// a name after variables or directives is a syntax error.
func skipDefinition(lx *gqlLexer, names int) error {
	for {
		tok := lx.next()
		switch {
		case tok.is("{"):
			return lx.skipBalanced("{", "}")
		case tok.is("("):
			names = 0
			if err := lx.skipBalanced("(", ")"); err != nil {
				return err
			}
		case tok.is("@"):
			names = 0
			if tok = lx.next(); tok.kind != tokName {
				return fmt.Errorf("malformed directive")
			}
		case tok.kind == tokName && names > 0:
			names--
		case tok.kind == tokEOF:
			return fmt.Errorf("definition has no selection set")
		default:
			return fmt.Errorf("unexpected %q in definition header", tok.text)
		}
	}
}

// mutationRootFields reads one operation starting at its keyword and
// returns its root selections. Aliases are recorded; fragment spreads at
// the root cannot be verified and are an error.
func mutationRootFields(src string) ([]GraphQLField, error) {
	lx := &gqlLexer{src: src}
	if tok := lx.next(); tok.kind != tokName || !strings.EqualFold(tok.text, "mutation") {
		return nil, fmt.Errorf("expected mutation keyword")
	}
	tok := lx.next()
	if tok.kind == tokName {
		tok = lx.next()
	}
	if tok.is("(") {
		if err := lx.skipBalanced("(", ")"); err != nil {
			return nil, err
		}
		tok = lx.next()
	}
	for tok.is("@") {
		if tok = lx.next(); tok.kind != tokName {
			return nil, fmt.Errorf("malformed directive")
		}
		tok = lx.next()
		if tok.is("(") {
			if err := lx.skipBalanced("(", ")"); err != nil {
				return nil, err
			}
			tok = lx.next()
		}
	}
	if !tok.is("{") {
		return nil, fmt.Errorf("expected selection set after mutation")
	}

	var fields []GraphQLField
	tok = lx.next()
	for {
		switch {
		case tok.is("}"):
			return fields, nil
		case tok.is("..."):
			return nil, fmt.Errorf("fragment at mutation root cannot be verified")
		case tok.kind == tokName:
			field := GraphQLField{Name: tok.text}
			tok = lx.next()
			if tok.is(":") {
				target := lx.next()
				if target.kind != tokName {
					return nil, fmt.Errorf("malformed alias %q", field.Name)
				}
				field = GraphQLField{Alias: field.Name, Name: target.text}
				tok = lx.next()
			}
			fields = append(fields, field)
			if tok.is("(") {
				if err := lx.skipBalanced("(", ")"); err != nil {
					return nil, err
				}
				tok = lx.next()
			}
			for tok.is("@") {
				if tok = lx.next(); tok.kind != tokName {
					return nil, fmt.Errorf("malformed directive")
				}
				tok = lx.next()
				if tok.is("(") {
					if err := lx.skipBalanced("(", ")"); err != nil {
						return nil, err
					}
					tok = lx.next()
				}
			}
			if tok.is("{") {
				if err := lx.skipBalanced("{", "}"); err != nil {
					return nil, err
				}
				tok = lx.next()
			}
		case tok.kind == tokEOF:
			return nil, fmt.Errorf("unterminated mutation selection set")
		default:
			return nil, fmt.Errorf("unexpected %q in mutation", tok.text)
		}
	}
}

type gqlTokenKind int

const (
	tokEOF gqlTokenKind = iota
	tokName
	tokPunct
	tokString
	tokNumber
	tokInvalid
)

type gqlToken struct {
	kind gqlTokenKind
	text string
}

func (t gqlToken) is(punct string) bool {
	return t.kind == tokPunct && t.text == punct
}

type gqlLexer struct {
	src string
	pos int
}

func (lx *gqlLexer) next() gqlToken {
	lx.skipIgnored()
	if lx.pos >= len(lx.src) {
		return gqlToken{kind: tokEOF}
	}
	start := lx.pos
	c := lx.src[lx.pos]
	switch {
	case c == '_' || isLetter(c):
		for lx.pos < len(lx.src) && (lx.src[lx.pos] == '_' || isLetter(lx.src[lx.pos]) || isDigit(lx.src[lx.pos])) {
			lx.pos++
		}
		return gqlToken{kind: tokName, text: lx.src[start:lx.pos]}
	case c == '-' || isDigit(c):
		lx.pos++
		for lx.pos < len(lx.src) && (isDigit(lx.src[lx.pos]) || strings.IndexByte(".eE+-", lx.src[lx.pos]) >= 0) {
			lx.pos++
		}
		return gqlToken{kind: tokNumber, text: lx.src[start:lx.pos]}
	case c == '"':
		return lx.readString()
	case strings.HasPrefix(lx.src[lx.pos:], "..."):
		lx.pos += 3
		return gqlToken{kind: tokPunct, text: "..."}
	case strings.IndexByte("!$&()/:=@[]{|}", c) >= 0:
		lx.pos++
		return gqlToken{kind: tokPunct, text: string(c)}
	}
	lx.pos++
	return gqlToken{kind: tokInvalid, text: string(c)}
}

const bom = "\uFEFF"

func (lx *gqlLexer) skipIgnored() {
	for lx.pos < len(lx.src) {
		switch c := lx.src[lx.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',':
			lx.pos++
		case c == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' && lx.src[lx.pos] != '\r' {
				lx.pos++
			}
		case strings.HasPrefix(lx.src[lx.pos:], bom):
			lx.pos += len(bom)
		default:
			return
		}
	}
}

func (lx *gqlLexer) readString() gqlToken {
	start := lx.pos
	if strings.HasPrefix(lx.src[lx.pos:], `"""`) {
		end := strings.Index(lx.src[lx.pos+3:], `"""`)
		for end >= 0 && lx.src[lx.pos+3+end-1] == '\\' {
			next := strings.Index(lx.src[lx.pos+3+end+3:], `"""`)
			if next < 0 {
				end = -1
				break
			}
			end += 3 + next
		}
		if end < 0 {
			lx.pos = len(lx.src)
			return gqlToken{kind: tokInvalid, text: lx.src[start:]}
		}
		lx.pos += 3 + end + 3
		return gqlToken{kind: tokString, text: lx.src[start:lx.pos]}
	}
	lx.pos++
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case '\\':
			lx.pos += 2
		case '"':
			lx.pos++
			return gqlToken{kind: tokString, text: lx.src[start:lx.pos]}
		case '\n', '\r':
			return gqlToken{kind: tokInvalid, text: lx.src[start:lx.pos]}
		default:
			lx.pos++
		}
	}
	return gqlToken{kind: tokInvalid, text: lx.src[start:]}
}

// skipBalanced consumes tokens up to the close matching an already-read open.
func (lx *gqlLexer) skipBalanced(open, close string) error {
	depth := 1
	for depth > 0 {
		tok := lx.next()
		switch {
		case tok.kind == tokEOF:
			return fmt.Errorf("unbalanced %s", open)
		case tok.kind == tokInvalid:
			return fmt.Errorf("unexpected %q", tok.text)
		case tok.is(open):
			depth++
		case tok.is(close):
			depth--
		}
	}
	return nil
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
