package shell

import (
	"regexp"
	"strings"
)

// Kind names the class of metacharacter a Finding matched.
type Kind string

const (
	KindSeparator      Kind = "separator"
	KindLogical        Kind = "logical"
	KindPipe           Kind = "pipe"
	KindBackground     Kind = "background"
	KindSubstitution   Kind = "substitution"
	KindANSIC          Kind = "ansi-c"
	KindProcessSubst   Kind = "process-substitution"
	KindHeredoc        Kind = "heredoc"
	KindInputRedirect  Kind = "input-redirect"
	KindOutputRedirect Kind = "output-redirect"
)

// Description returns a short human phrase for the kind.
func (k Kind) Description() string {
	switch k {
	case KindSeparator:
		return "statement separator"
	case KindLogical:
		return "command chaining"
	case KindPipe:
		return "pipe to an unlisted program or a writing option"
	case KindBackground:
		return "background operator"
	case KindSubstitution:
		return "command substitution"
	case KindANSIC:
		return "ANSI-C quoting"
	case KindProcessSubst:
		return "process substitution"
	case KindHeredoc:
		return "here-document"
	case KindInputRedirect:
		return "input redirection"
	case KindOutputRedirect:
		return "output redirection"
	}
	return string(k)
}

// Finding is the first live metacharacter found in a command.
type Finding struct {
	Kind Kind
	// Text is the matched metacharacter sequence.
	Text string
}

// Profile selects the metacharacter set and the safe idioms for a grammar.
type Profile struct {
	// SafePipes lists programs a pipe may feed without being reported.
	SafePipes []string
	// PipeOptions restricts how a safe-pipe program may be invoked.
	// Nil means DefaultPipeOptions.
	PipeOptions map[string]PipeOptions
	// InputRedirects adds here-strings, here-documents and < to the set.
	InputRedirects bool
}

// PipeOptions lists the arguments that make a filter write files or run
// programs. A pipe stage carrying one of them is reported.
type PipeOptions struct {
	// Short holds option letters, matched anywhere in a short cluster.
	Short string
	// Long holds long options; getopt abbreviations of them also match.
	Long []string
	// MaxOperands bounds the non-option words; zero means no bound.
	MaxOperands int
}

// DefaultPipeOptions covers the filters in the default safe-pipe list
// that can write: sort's output, temp and compressor options, and uniq's
// OUTPUT operand.
var DefaultPipeOptions = map[string]PipeOptions{
	"sort": {Short: "oT", Long: []string{"--output", "--compress-program", "--temporary-directory"}},
	"uniq": {MaxOperands: 1},
}

type pattern struct {
	kind Kind
	expr string
}

// Alternatives are tried in order at each position, so longer operators
// precede their prefixes (&& before &, >( before >).
var basePatterns = []pattern{
	{KindSeparator, `;|\n|\r`},
	{KindLogical, `&&|\|\|`},
	{KindPipe, `\|`},
	{KindBackground, `&`},
	{KindSubstitution, "`|\\$\\("},
	{KindANSIC, `\$'`},
	{KindProcessSubst, `<\(|>\(`},
}

var inputPatterns = []pattern{
	{KindHeredoc, `<<`},
	{KindInputRedirect, `<`},
}

var outputPattern = pattern{KindOutputRedirect, `>`}

var (
	// safeRedirect covers N>&M and redirects into /dev/null.
	safeRedirect = regexp.MustCompile(`\d*>&\d+|\d*>>?\s*/dev/null(?:\s|$)`)
	// safeFallback is a trailing `|| echo <literal>` on the masked text,
	// where quoted literals have already collapsed to "" or ''.
	safeFallback = regexp.MustCompile(`\|\|\s*echo\s+(?:""|''|[A-Za-z0-9_.,:/=+-]+)\s*$`)
)

// Scanner reports live shell metacharacters in a command. It is immutable
// and safe for concurrent use.
type Scanner struct {
	re          *regexp.Regexp
	kinds       []Kind // indexed by subexpression number
	safePipe    *regexp.Regexp
	pipeOptions map[string]PipeOptions
}

// NewScanner compiles the metacharacter alternation for p.
func NewScanner(p Profile) *Scanner {
	pats := append([]pattern(nil), basePatterns...)
	if p.InputRedirects {
		pats = append(pats, inputPatterns...)
	}
	pats = append(pats, outputPattern)

	var alts []string
	for _, pt := range pats {
		alts = append(alts, "(?P<"+groupName(pt.kind)+">"+pt.expr+")")
	}
	re := regexp.MustCompile(strings.Join(alts, "|"))

	kinds := make([]Kind, len(re.SubexpNames()))
	for i, name := range re.SubexpNames() {
		for _, pt := range pats {
			if name == groupName(pt.kind) {
				kinds[i] = pt.kind
			}
		}
	}

	s := &Scanner{re: re, kinds: kinds, pipeOptions: p.PipeOptions}
	if s.pipeOptions == nil {
		s.pipeOptions = DefaultPipeOptions
	}
	if len(p.SafePipes) > 0 {
		quoted := make([]string, len(p.SafePipes))
		for i, name := range p.SafePipes {
			quoted[i] = regexp.QuoteMeta(name)
		}
		s.safePipe = regexp.MustCompile(`\|\s*(` + strings.Join(quoted, "|") + `)(?:\s|$)`)
	}
	return s
}

func groupName(k Kind) string {
	return strings.ReplaceAll(string(k), "-", "_")
}

// Scan masks cmd and reports the first live metacharacter, or nil.
func (s *Scanner) Scan(cmd string) *Finding {
	return s.find(Mask(cmd))
}

// ScanRelaxed is Scan over MaskRelaxed.
func (s *Scanner) ScanRelaxed(cmd string) *Finding {
	return s.find(MaskRelaxed(cmd))
}

// Neutralize rewrites the known-safe idioms of a masked command to inert
// placeholders. Exposed for the scan subcommand's explain output.
func (s *Scanner) Neutralize(masked string) string {
	out := safeFallback.ReplaceAllString(masked, " ")
	out = safeRedirect.ReplaceAllString(out, " ")
	if s.safePipe != nil {
		out = s.neutralizePipes(out)
	}
	return out
}

// neutralizePipes replaces each pipe into a safe program whose stage
// passes safeStage.
func (s *Scanner) neutralizePipes(text string) string {
	var b strings.Builder
	last := 0
	for _, m := range s.safePipe.FindAllStringSubmatchIndex(text, -1) {
		stage := text[m[1]:]
		if end := strings.IndexAny(stage, "|;&<>\n\r"); end >= 0 {
			stage = stage[:end]
		}
		if !s.safeStage(text[m[2]:m[3]], stage) {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(" SAFE_PIPE ")
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// safeStage checks the masked arguments of one pipe stage against the
// program's restricted options. Quoted or escaped words cannot be read
// after masking, so they fail for restricted programs.
func (s *Scanner) safeStage(program, args string) bool {
	opts, ok := s.pipeOptions[program]
	if !ok {
		return true
	}
	if strings.ContainsAny(args, "\"'\\$`") {
		return false
	}
	operands := 0
	endOfOptions := false
	for _, w := range strings.Fields(args) {
		switch {
		case endOfOptions || w == "-" || !strings.HasPrefix(w, "-"):
			operands++
		case w == "--":
			endOfOptions = true
		case strings.HasPrefix(w, "--"):
			name, _, _ := strings.Cut(w, "=")
			for _, long := range opts.Long {
				if strings.HasPrefix(long, name) {
					return false
				}
			}
		case strings.ContainsAny(w[1:], opts.Short):
			return false
		}
	}
	return opts.MaxOperands == 0 || operands <= opts.MaxOperands
}

func (s *Scanner) find(masked string) *Finding {
	text := s.Neutralize(masked)
	m := s.re.FindStringSubmatchIndex(text)
	if m == nil {
		return nil
	}
	for i := 1; i < len(s.kinds); i++ {
		if m[2*i] >= 0 {
			return &Finding{Kind: s.kinds[i], Text: text[m[2*i]:m[2*i+1]]}
		}
	}
	return &Finding{Kind: KindSeparator, Text: text[m[0]:m[1]]}
}
