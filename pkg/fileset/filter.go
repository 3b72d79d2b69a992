package fileset

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PathFilter decides whether a relative file path takes part in a file set.
type PathFilter interface {
	Accept(relPath string) bool
}

// FilterFunc adapts a function to PathFilter.
type FilterFunc func(relPath string) bool

func (f FilterFunc) Accept(relPath string) bool { return f(relPath) }

// PrefixFilter accepts paths starting with Prefix.
type PrefixFilter struct {
	Prefix string
}

func (f PrefixFilter) Accept(relPath string) bool {
	return strings.HasPrefix(relPath, f.Prefix)
}

// GlobFilter accepts paths matching a doublestar pattern ("**/*.jpg").
type GlobFilter struct {
	pattern string
}

// NewGlobFilter validates pattern and returns a filter for it.
func NewGlobFilter(pattern string) (*GlobFilter, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	return &GlobFilter{pattern: pattern}, nil
}

func (f *GlobFilter) Accept(relPath string) bool {
	ok, _ := doublestar.Match(f.pattern, strings.TrimPrefix(relPath, "./"))
	return ok
}

// AllOf accepts a path only if every non-nil filter does.
func AllOf(filters ...PathFilter) PathFilter {
	return FilterFunc(func(relPath string) bool {
		for _, f := range filters {
			if f != nil && !f.Accept(relPath) {
				return false
			}
		}
		return true
	})
}
