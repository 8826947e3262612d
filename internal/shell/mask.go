// Package shell implements the lexical layer of the command gate: quote
// masking, metacharacter scanning, invocation extraction and word splitting.
// Nothing in this package executes or resolves anything on the host.
package shell

import (
	"regexp"
	"strings"
)

// codeSpan matches a markdown inline code span that looks like an
// identifier or file name (`config.json`, `my-flag`), never a bare word.
var codeSpan = regexp.MustCompile("`[\\w.-]*[._-][\\w.-]*`")

// anySpan matches any backtick-delimited span, for relaxed masking.
var anySpan = regexp.MustCompile("`[^`]*`")

// codeSpanPlaceholder replaces neutralized code spans inside double quotes.
const codeSpanPlaceholder = "MDCODE"

// Mask returns the QuoteMask of cmd: single-quoted runs become '' and
// double-quoted runs without substitution syntax become "". Double-quoted
// runs containing ` or $( are kept so the scanner still sees them.
// Text outside quotes is copied unchanged, including backslash escapes.
// An unterminated quote leaves the rest of the string verbatim.
func Mask(cmd string) string {
	return mask(cmd, false)
}

// MaskRelaxed is Mask with every backtick span inside double quotes read
// as markdown. A double-quoted run is still kept when it contains $( or
// an unpaired backtick. Used for sub-command families whose free-text
// arguments (PR bodies) routinely carry markdown.
func MaskRelaxed(cmd string) string {
	return mask(cmd, true)
}

func mask(cmd string, relaxed bool) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for i := 0; i < len(cmd); {
		switch cmd[i] {
		case '\\':
			end := min(i+2, len(cmd))
			b.WriteString(cmd[i:end])
			i = end
		case '\'':
			j := strings.IndexByte(cmd[i+1:], '\'')
			if j < 0 {
				b.WriteString(cmd[i:])
				return b.String()
			}
			b.WriteString("''")
			i += j + 2
		case '"':
			j := closingDoubleQuote(cmd, i+1)
			if j < 0 {
				b.WriteString(cmd[i:])
				return b.String()
			}
			body := codeSpan.ReplaceAllString(cmd[i+1:j], codeSpanPlaceholder)
			if relaxed && !strings.Contains(cmd[i+1:j], "$(") {
				body = anySpan.ReplaceAllString(body, codeSpanPlaceholder)
			}
			if !hasSubstitution(body) {
				b.WriteString(`""`)
			} else {
				b.WriteString(`"` + body + `"`)
			}
			i = j + 1
		default:
			b.WriteByte(cmd[i])
			i++
		}
	}
	return b.String()
}

// closingDoubleQuote returns the index of the quote closing a run that
// starts at from, honoring backslash escapes, or -1.
func closingDoubleQuote(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func hasSubstitution(body string) bool {
	return strings.Contains(body, "`") || strings.Contains(body, "$(")
}
