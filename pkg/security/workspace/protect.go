package workspace

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultProtectedPatterns are protected when no configuration overrides them.
var DefaultProtectedPatterns = []string{".git/**", ".github/**", "config/**"}

// PathGuard classifies repository-relative paths as protected or mutable.
//
// Patterns use shell glob syntax with '/' as the separator: '*' stays inside one
// segment and '**' crosses directories. Any match protects. A PathGuard is
// immutable after construction and safe for concurrent use.
type PathGuard struct {
	patterns []string
	globs    []glob.Glob
}

// NewPathGuard compiles the given patterns. An invalid pattern is an error.
func NewPathGuard(patterns []string) (*PathGuard, error) {
	pg := &PathGuard{patterns: append([]string(nil), patterns...)}
	for _, p := range patterns {
		for _, variant := range ExpandPattern(p) {
			g, err := glob.Compile(variant, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid protected pattern %q: %w", p, err)
			}
			pg.globs = append(pg.globs, g)
		}
	}
	return pg, nil
}

// ExpandPattern expands one pattern into the '/'-separated globs that
// implement it. "dir/**" also matches "dir", "**/x" also matches "x" at the
// root, "a/**/x" also matches "a/x", and a literal directory name matches
// everything beneath it.
func ExpandPattern(p string) []string {
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./")
	variants := []string{p}
	if strings.Contains(p, "/**/") {
		variants = append(variants, strings.ReplaceAll(p, "/**/", "/"))
	}
	if strings.HasSuffix(p, "/**") {
		variants = append(variants, strings.TrimSuffix(p, "/**"))
	}
	if strings.HasPrefix(p, "**/") {
		variants = append(variants, strings.TrimPrefix(p, "**/"))
	}
	if !strings.ContainsAny(p, "*?[{") {
		variants = append(variants, strings.TrimSuffix(p, "/")+"/**")
	}
	return variants
}

// IsProtected reports whether path must never be mutated.
// Empty, absolute and traversing paths are always protected.
func (g *PathGuard) IsProtected(p string) bool {
	rel, ok := NormalizePath(p)
	if !ok {
		return true
	}
	for _, m := range g.globs {
		if m.Match(rel) {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the configured patterns.
func (g *PathGuard) Patterns() []string {
	return append([]string(nil), g.patterns...)
}

// NormalizePath converts p to a clean, slash-separated, repository-relative path.
// It returns false for empty paths, absolute paths, and paths with ".." segments.
func NormalizePath(p string) (string, bool) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") || hasDriveLetter(p) {
		return "", false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", false
		}
	}
	clean := path.Clean(p)
	if clean == "." {
		return "", false
	}
	return clean, true
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
