package main

import (
	"fmt"
	"strings"
)

// CallDirection selects which side of a call edge owns the coupling record.
type CallDirection int

const (
	// CallerToCallee keys records by the calling class.
	CallerToCallee CallDirection = iota
	// CalleeToCaller keys records by the called class.
	CalleeToCaller
	// Bidirectional records every edge on both classes.
	Bidirectional
)

func (d CallDirection) String() string {
	switch d {
	case CallerToCallee:
		return "caller"
	case CalleeToCaller:
		return "callee"
	case Bidirectional:
		return "both"
	default:
		return "unknown"
	}
}

// ParseCallDirection maps "caller", "callee" or "both" to a CallDirection.
func ParseCallDirection(s string) (CallDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "caller":
		return CallerToCallee, nil
	case "callee":
		return CalleeToCaller, nil
	case "both":
		return Bidirectional, nil
	}
	return 0, fmt.Errorf("unknown call direction %q (want caller, callee or both)", s)
}

type analyzerConfig struct {
	log       Logger
	direction CallDirection
}

// AnalyzerOption configures an analyzer.
type AnalyzerOption func(*analyzerConfig)

// WithLogger sets the logger used for analysis progress.
func WithLogger(l Logger) AnalyzerOption {
	return func(c *analyzerConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDirection sets the call coupling direction. Ignored by the hierarchy analyzer.
func WithDirection(d CallDirection) AnalyzerOption {
	return func(c *analyzerConfig) {
		c.direction = d
	}
}

func newAnalyzerConfig(opts []AnalyzerOption) analyzerConfig {
	cfg := analyzerConfig{log: NewSilentLogger(), direction: CallerToCallee}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// classIndex hands out small integer ids in first-seen order.
type classIndex struct {
	ids   map[string]int
	names []string
}

func newClassIndex() *classIndex {
	return &classIndex{ids: make(map[string]int)}
}

func (x *classIndex) id(name string) int {
	if id, ok := x.ids[name]; ok {
		return id
	}
	id := len(x.names)
	x.ids[name] = id
	x.names = append(x.names, name)
	return id
}

func (x *classIndex) lookup(name string) (int, bool) {
	id, ok := x.ids[name]
	return id, ok
}

func (x *classIndex) name(id int) string {
	return x.names[id]
}

func (x *classIndex) len() int {
	return len(x.names)
}
