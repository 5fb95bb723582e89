package spec

import "fmt"

// Scopes records which path claimed each scope name.
type Scopes map[string]string

// Claim registers scope at path, failing with ErrDuplicateScope when another
// path already owns it. Empty scopes are ignored.
func (s Scopes) Claim(scope, path string) error {
	if scope == "" {
		return nil
	}
	if prev, ok := s[scope]; ok {
		return Errorf(path, ErrDuplicateScope, "%q already used by %s", scope, prev)
	}
	s[scope] = path
	return nil
}

// Unique returns a scope derived from base that is not yet claimed.
func (s Scopes) Unique(base string) string {
	if _, ok := s[base]; !ok {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if _, ok := s[candidate]; !ok {
			return candidate
		}
	}
}

// Declared is a scope as written in a document, with the path that declared it.
type Declared struct {
	Name string
	Path string
}
