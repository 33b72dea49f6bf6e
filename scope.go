package main

import "strings"

// Scope decides which classes take part in the analysis.
type Scope struct {
	Prefix string
	Target string
}

// NewScope returns a scope for the given project prefix and optional target class.
func NewScope(prefix, target string) Scope {
	return Scope{Prefix: prefix, Target: target}
}

// InScope reports whether name starts with the project prefix or is the target class.
func (s Scope) InScope(name string) bool {
	if s.Target != "" && name == s.Target {
		return true
	}
	return strings.HasPrefix(name, s.Prefix)
}

// TargetMode reports whether the scope is narrowed to a single class.
func (s Scope) TargetMode() bool {
	return s.Target != ""
}

// touchesTarget reports whether an edge between a and b involves the target.
func (s Scope) touchesTarget(a, b string) bool {
	return a == s.Target || b == s.Target
}
