package main

import (
	"golang.org/x/tools/container/intsets"
)

// CallStats summarises one method call analysis run.
type CallStats struct {
	Classes    int // in-scope classes walked
	Edges      int // distinct method-level call edges kept
	Unresolved int // call sites without a static target
	Coupled    int // classes taking part in at least one edge
}

// MethodCallAnalyzer derives class coupling from method invocations.
type MethodCallAnalyzer struct {
	universe *Universe
	prefix   string
	cfg      analyzerConfig

	index        *classIndex
	records      []*callRecord
	byClass      map[int]*callRecord
	participants intsets.Sparse
	finalList    []CallCouplingRecord
	stats        CallStats
}

type callRecord struct {
	class   string
	coupled []CoupledClass
	pos     map[int]int // coupled class id -> index in coupled
}

// NewMethodCallAnalyzer returns an analyzer over u scoped to classes whose
// name starts with prefix.
func NewMethodCallAnalyzer(u *Universe, prefix string, opts ...AnalyzerOption) *MethodCallAnalyzer {
	return &MethodCallAnalyzer{
		universe: u,
		prefix:   prefix,
		cfg:      newAnalyzerConfig(opts),
	}
}

// Execute analyzes every in-scope class.
func (a *MethodCallAnalyzer) Execute() {
	a.run(NewScope(a.prefix, ""))
}

// ExecuteTarget keeps only the edges where target is the caller or the callee.
func (a *MethodCallAnalyzer) ExecuteTarget(target string) {
	a.run(NewScope(a.prefix, target))
}

// FinalList returns the coupling records of the last run.
func (a *MethodCallAnalyzer) FinalList() []CallCouplingRecord {
	out := make([]CallCouplingRecord, len(a.finalList))
	for i, r := range a.finalList {
		out[i] = CallCouplingRecord{
			Class:   r.Class,
			Coupled: append([]CoupledClass(nil), r.Coupled...),
		}
	}
	return out
}

// Stats returns counters for the last run.
func (a *MethodCallAnalyzer) Stats() CallStats {
	return a.stats
}

func (a *MethodCallAnalyzer) reset() {
	a.index = newClassIndex()
	a.records = nil
	a.byClass = make(map[int]*callRecord)
	a.participants.Clear()
	a.finalList = nil
	a.stats = CallStats{}
}

func (a *MethodCallAnalyzer) run(scope Scope) {
	a.reset()
	seen := make(map[CallEdge]bool)

	for _, caller := range a.universe.Names() {
		if !scope.InScope(caller) {
			continue
		}
		cls, _ := a.universe.Lookup(caller)
		a.stats.Classes++

		for _, m := range cls.Methods {
			for _, site := range m.Calls {
				if !site.Resolved() {
					a.stats.Unresolved++
					continue
				}
				callee := site.CalleeClass
				if callee == caller || !scope.InScope(callee) {
					continue
				}
				if scope.TargetMode() && !scope.touchesTarget(caller, callee) {
					continue
				}

				edge := CallEdge{
					Caller:       caller,
					Callee:       callee,
					CallerMethod: m.Signature(),
					CalleeMethod: site.CalleeMethod,
				}
				if seen[edge] {
					continue
				}
				seen[edge] = true
				a.stats.Edges++
				a.addEdge(edge)
			}
		}
	}

	a.stats.Coupled = a.participants.Len()
	a.finalList = make([]CallCouplingRecord, 0, len(a.records))
	for _, r := range a.records {
		a.finalList = append(a.finalList, CallCouplingRecord{Class: r.class, Coupled: r.coupled})
	}

	a.cfg.log.Debug("Method call analysis finished",
		F("target", scope.Target),
		F("direction", a.cfg.direction),
		F("classes", a.stats.Classes),
		F("edges", a.stats.Edges),
		F("unresolved", a.stats.Unresolved),
		F("records", len(a.finalList)))
}

func (a *MethodCallAnalyzer) addEdge(e CallEdge) {
	switch a.cfg.direction {
	case CalleeToCaller:
		a.couple(e.Callee, e.Caller)
	case Bidirectional:
		a.couple(e.Caller, e.Callee)
		a.couple(e.Callee, e.Caller)
	default:
		a.couple(e.Caller, e.Callee)
	}
}

// couple adds one call edge from owner to other, creating records on first sight.
func (a *MethodCallAnalyzer) couple(owner, other string) {
	ownerID := a.index.id(owner)
	otherID := a.index.id(other)
	a.participants.Insert(ownerID)
	a.participants.Insert(otherID)

	rec, ok := a.byClass[ownerID]
	if !ok {
		rec = &callRecord{class: owner, pos: make(map[int]int)}
		a.byClass[ownerID] = rec
		a.records = append(a.records, rec)
	}
	i, ok := rec.pos[otherID]
	if !ok {
		i = len(rec.coupled)
		rec.pos[otherID] = i
		rec.coupled = append(rec.coupled, CoupledClass{Class: other})
	}
	rec.coupled[i].Calls++
}
