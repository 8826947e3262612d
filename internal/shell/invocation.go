package shell

import (
	"path"
	"regexp"
	"strings"
)

// Invocation is a command line with its wrapper and environment prefixes
// separated from the target program.
type Invocation struct {
	// Wrapper is "sudo", "command", both space-joined, or empty.
	Wrapper string
	// Env holds NAME=value prefixes as written.
	Env []string
	// Program is the program token as written (gh, /usr/bin/python3).
	Program string
	// Name is the base name of Program.
	Name string
	// Target is the substring of the command starting at Program.
	Target string
	// Args is everything after the program token, leading blanks removed.
	Args string
}

// Sudo reports whether the invocation runs under sudo.
func (inv *Invocation) Sudo() bool {
	return strings.HasPrefix(inv.Wrapper, "sudo")
}

// ProgramMatcher decides whether a program base name belongs to a grammar.
// github.com/gobwas/glob's Glob satisfies it.
type ProgramMatcher interface {
	Match(name string) bool
}

var (
	sudoPrefix    = regexp.MustCompile(`^sudo[ \t]+`)
	commandPrefix = regexp.MustCompile(`^command[ \t]+`)
	envPrefix     = regexp.MustCompile(`^(?:/usr/bin/)?env[ \t]+`)
	assignPrefix  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=(?:"[^"]*"|'[^']*'|[^\s"']*)(?:[ \t]+|$)`)
	programToken  = regexp.MustCompile(`^[^\s;&|<>()]+`)
)

// Extract locates the target program of cmd. It strips, in order, a sudo
// and/or command wrapper, an env token, NAME=value assignments and an
// /usr/bin/env indirection, then requires the next token to be a program
// accepted by programs, followed by a blank or the end of the string.
func Extract(cmd string, programs ProgramMatcher) (*Invocation, bool) {
	s := strings.TrimLeft(cmd, " \t")
	inv := &Invocation{}

	var wrappers []string
	if m := sudoPrefix.FindString(s); m != "" {
		wrappers = append(wrappers, "sudo")
		s = s[len(m):]
	}
	if m := commandPrefix.FindString(s); m != "" {
		wrappers = append(wrappers, "command")
		s = s[len(m):]
	}
	inv.Wrapper = strings.Join(wrappers, " ")

	envSeen := false
	if m := envPrefix.FindString(s); m != "" {
		envSeen = true
		s = s[len(m):]
	}
	for {
		m := assignPrefix.FindString(s)
		if m == "" {
			break
		}
		inv.Env = append(inv.Env, strings.TrimRight(m, " \t"))
		s = s[len(m):]
	}
	if !envSeen {
		if m := envPrefix.FindString(s); m != "" {
			s = s[len(m):]
		}
	}

	tok := programToken.FindString(s)
	if tok == "" {
		return nil, false
	}
	rest := s[len(tok):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '\n' && rest[0] != '\r' {
		return nil, false
	}
	name := tok
	if strings.Contains(tok, "/") {
		name = path.Base(tok)
	}
	if !programs.Match(name) {
		return nil, false
	}

	inv.Program = tok
	inv.Name = name
	inv.Target = s
	inv.Args = strings.TrimLeft(rest, " \t")
	return inv, true
}
