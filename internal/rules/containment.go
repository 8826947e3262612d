package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotContained is returned when a path cannot be shown to lie inside a boundary.
var ErrNotContained = errors.New("path is not contained")

// ResolveTimeout bounds one canonicalization. A hung filesystem fails closed.
const ResolveTimeout = 2 * time.Second

// Containment checks candidate paths against directories under a project root.
type Containment struct {
	project string
	timeout time.Duration
}

// NewContainment creates a checker rooted at projectDir (absolute).
func NewContainment(projectDir string) *Containment {
	return &Containment{project: projectDir, timeout: ResolveTimeout}
}

// Project returns the project root.
func (c *Containment) Project() string {
	return c.project
}

// Check reports nil if p, resolved against the project root, lies inside
// boundary after symlink resolution. p must already be shell-expanded.
// Glob patterns are expanded and every match must be contained.
func (c *Containment) Check(boundary, p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrNotContained)
	}
	root, err := c.canonical(boundary)
	if err != nil {
		return fmt.Errorf("%w: boundary %s: %v", ErrNotContained, boundary, err)
	}

	abs := c.join(p)
	candidates := []string{abs}
	if hasGlobMeta(p) {
		candidates, err = globCandidates(abs)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrNotContained, p, err)
		}
	}

	for _, cand := range candidates {
		resolved, err := c.canonical(cand)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrNotContained, p, err)
		}
		if !Within(root, resolved) {
			return fmt.Errorf("%w: %s resolves to %s", ErrNotContained, p, resolved)
		}
	}
	return nil
}

// join anchors relative paths at the project root. It concatenates
// instead of using filepath.Join so that ".." is left for the resolver,
// which follows symlinks before stepping up like the kernel does.
func (c *Containment) join(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return strings.TrimRight(c.project, string(filepath.Separator)) + string(filepath.Separator) + p
}

func (c *Containment) canonical(p string) (string, error) {
	type result struct {
		path string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		path, err := Canonical(p)
		ch <- result{path, err}
	}()
	select {
	case r := <-ch:
		return r.path, r.err
	case <-time.After(c.timeout):
		return "", fmt.Errorf("resolving %s timed out after %s", p, c.timeout)
	}
}

// Canonical resolves an absolute path to its real location. Components
// that do not exist yet are appended to the resolved existing prefix;
// a missing component followed by "..", or a dangling symlink, is an error.
func Canonical(p string) (string, error) {
	if !filepath.IsAbs(p) {
		return "", fmt.Errorf("%q is not absolute", p)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if _, lerr := os.Lstat(p); lerr == nil {
		return "", fmt.Errorf("dangling symlink %s", p)
	}

	trimmed := strings.TrimRight(p, string(filepath.Separator))
	idx := strings.LastIndexByte(trimmed, filepath.Separator)
	if idx < 0 {
		return "", err
	}
	dir, base := trimmed[:idx+1], trimmed[idx+1:]
	if base == "" || base == "." || base == ".." || dir == p {
		return "", err
	}
	parent, perr := Canonical(dir)
	if perr != nil {
		return "", perr
	}
	return filepath.Join(parent, base), nil
}

// Within reports whether the canonical path p is root or lies below it.
func Within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// globCandidates expands a pattern the way the shell would before exec.
// With no match the shell passes the literal word through.
func globCandidates(pattern string) ([]string, error) {
	for _, part := range strings.Split(filepath.ToSlash(pattern), "/") {
		if part == ".." {
			return nil, errors.New("glob pattern climbs with ..")
		}
		if hasGlobMeta(part) && (strings.HasPrefix(part, ".") || strings.HasPrefix(part, "[")) {
			return nil, fmt.Errorf("glob component %q can match dot entries", part)
		}
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []string{pattern}, nil
	}
	return matches, nil
}
