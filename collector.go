package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ErrUniverseNotLoaded is returned when analysis is requested before loading.
var ErrUniverseNotLoaded = errors.New("class universe not loaded")

// Collector loads a class universe and gathers both coupling models for one
// project prefix and optional target class.
type Collector struct {
	Prefix string
	Target string

	Universe       *Universe
	Calls          []CallCouplingRecord
	Hierarchy      []HierarchyCouplingRecord
	Trees          [][]string
	CallStats      CallStats
	HierarchyStats HierarchyStats

	log  Logger
	opts []AnalyzerOption
}

// NewCollector creates a Collector scoped to prefix. An empty target runs the
// full project analysis.
func NewCollector(prefix, target string, log Logger, opts ...AnalyzerOption) *Collector {
	if log == nil {
		log = NewSilentLogger()
	}
	return &Collector{
		Prefix: prefix,
		Target: target,
		log:    log,
		opts:   append([]AnalyzerOption{WithLogger(log)}, opts...),
	}
}

// Scope returns the scope the analyzers run with.
func (c *Collector) Scope() Scope {
	return NewScope(c.Prefix, c.Target)
}

// LoadUniverse reads the class path entries into the collector's universe.
func (c *Collector) LoadUniverse(ctx context.Context, entries []string, workers int) error {
	u, err := LoadUniverse(ctx, entries, LoadOptions{Workers: workers, Logger: c.log})
	if err != nil {
		return err
	}
	c.Universe = u
	return nil
}

// Analyze runs the method call and hierarchy analyzers side by side and
// collects their final lists.
func (c *Collector) Analyze(ctx context.Context) error {
	if c.Universe == nil {
		return ErrUniverseNotLoaded
	}

	calls := NewMethodCallAnalyzer(c.Universe, c.Prefix, c.opts...)
	hierarchy := NewHierarchyAnalyzer(c.Universe, c.Prefix, c.opts...)

	g, ctx := errgroup.WithContext(ctx)
	for _, a := range []CouplingAnalyzer{calls, hierarchy} {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.execute(a)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.Calls = calls.FinalList()
	c.CallStats = calls.Stats()
	c.Hierarchy = hierarchy.FinalList()
	c.Trees = hierarchy.Trees()
	c.HierarchyStats = hierarchy.Stats()

	c.log.Info("Coupling analysis finished",
		F("call_records", len(c.Calls)),
		F("hierarchy_records", len(c.Hierarchy)),
		F("trees", len(c.Trees)))
	return nil
}

func (c *Collector) execute(a CouplingAnalyzer) {
	if c.Target != "" {
		a.ExecuteTarget(c.Target)
		return
	}
	a.Execute()
}
