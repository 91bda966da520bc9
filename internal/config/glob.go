package config

import "github.com/bmatcuk/doublestar/v4"

// Matcher applies the Include/Exclude glob lists the way the teacher's
// gitignore/include-resolver layer does: a path is selected if it
// matches (or Include is empty) and does not match Exclude.
type Matcher struct {
	include []string
	exclude []string
}

// NewMatcher builds a Matcher from the Include/Exclude glob lists.
func NewMatcher(include, exclude []string) *Matcher {
	return &Matcher{include: include, exclude: exclude}
}

// Match reports whether relPath (slash-separated, relative to the
// project root) should be selected for folder search / sidecar
// discovery.
func (m *Matcher) Match(relPath string) bool {
	if len(m.include) > 0 {
		matched := false
		for _, pat := range m.include {
			if ok, _ := doublestar.Match(pat, relPath); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pat := range m.exclude {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return false
		}
	}
	return true
}
