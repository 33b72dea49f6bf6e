package main

import (
	"slices"

	"golang.org/x/tools/container/intsets"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// universalRoot is the implicit superclass of every class. It is a node of its
// own when in scope but never links its subclasses.
const universalRoot = "java.lang.Object"

// HierarchyStats summarises one hierarchy analysis run.
type HierarchyStats struct {
	Classes          int // in-scope classes
	Edges            int // undirected inheritance edges between in-scope classes
	MissingAncestors int // ancestor references absent from the universe
	Trees            int
}

// HierarchyAnalyzer groups in-scope classes that share a superclass/interface tree.
type HierarchyAnalyzer struct {
	universe *Universe
	prefix   string
	cfg      analyzerConfig

	trees     [][]string
	finalList []HierarchyCouplingRecord
	stats     HierarchyStats
}

// NewHierarchyAnalyzer returns an analyzer over u scoped to classes whose
// name starts with prefix.
func NewHierarchyAnalyzer(u *Universe, prefix string, opts ...AnalyzerOption) *HierarchyAnalyzer {
	return &HierarchyAnalyzer{
		universe: u,
		prefix:   prefix,
		cfg:      newAnalyzerConfig(opts),
	}
}

// Execute groups every in-scope class.
func (a *HierarchyAnalyzer) Execute() {
	a.run(NewScope(a.prefix, ""))
}

// ExecuteTarget reports only the tree that contains target. The result is
// empty when target has no in-scope relatives.
func (a *HierarchyAnalyzer) ExecuteTarget(target string) {
	a.run(NewScope(a.prefix, target))
}

// FinalList returns one record per class of the last run.
func (a *HierarchyAnalyzer) FinalList() []HierarchyCouplingRecord {
	out := make([]HierarchyCouplingRecord, len(a.finalList))
	for i, r := range a.finalList {
		out[i] = HierarchyCouplingRecord{
			Class:   r.Class,
			Coupled: append([]string{}, r.Coupled...),
		}
	}
	return out
}

// Trees returns the hierarchy trees of the last run in discovery order.
func (a *HierarchyAnalyzer) Trees() [][]string {
	out := make([][]string, len(a.trees))
	for i, t := range a.trees {
		out[i] = append([]string(nil), t...)
	}
	return out
}

// Stats returns counters for the last run.
func (a *HierarchyAnalyzer) Stats() HierarchyStats {
	return a.stats
}

func (a *HierarchyAnalyzer) run(scope Scope) {
	a.trees = nil
	a.finalList = nil
	a.stats = HierarchyStats{}

	index := newClassIndex()
	g := simple.NewUndirectedGraph()
	for _, name := range a.universe.Names() {
		if scope.InScope(name) {
			g.AddNode(simple.Node(index.id(name)))
		}
	}
	a.stats.Classes = index.len()

	for id := 0; id < index.len(); id++ {
		for _, anc := range a.inScopeAncestors(index.name(id), scope) {
			ancID, ok := index.lookup(anc)
			if !ok || ancID == id || g.HasEdgeBetween(int64(id), int64(ancID)) {
				continue
			}
			g.SetEdge(simple.Edge{F: simple.Node(id), T: simple.Node(ancID)})
			a.stats.Edges++
		}
	}

	components := orderedComponents(g)
	a.stats.Trees = len(components)

	var keep intsets.Sparse
	for _, comp := range components {
		if scope.TargetMode() {
			targetID, ok := index.lookup(scope.Target)
			if !ok || !slices.Contains(comp, targetID) || len(comp) < 2 {
				continue
			}
		}
		tree := make([]string, len(comp))
		for i, id := range comp {
			tree[i] = index.name(id)
			keep.Insert(id)
		}
		a.trees = append(a.trees, tree)
	}

	members := make(map[int][]int, keep.Len())
	for _, comp := range components {
		for _, id := range comp {
			members[id] = comp
		}
	}

	// records follow class discovery order, not tree order
	var ids []int
	ids = keep.AppendTo(ids)
	for _, id := range ids {
		rec := HierarchyCouplingRecord{Class: index.name(id), Coupled: []string{}}
		for _, other := range members[id] {
			if other != id {
				rec.Coupled = append(rec.Coupled, index.name(other))
			}
		}
		a.finalList = append(a.finalList, rec)
	}

	a.cfg.log.Debug("Hierarchy analysis finished",
		F("target", scope.Target),
		F("classes", a.stats.Classes),
		F("edges", a.stats.Edges),
		F("trees", a.stats.Trees),
		F("missing_ancestors", a.stats.MissingAncestors),
		F("records", len(a.finalList)))
}

// inScopeAncestors returns the nearest in-scope ancestors of name along every
// superclass/interface path. Out-of-scope classes are walked through; names
// missing from the universe end their path.
func (a *HierarchyAnalyzer) inScopeAncestors(name string, scope Scope) []string {
	cls, ok := a.universe.Lookup(name)
	if !ok {
		return nil
	}

	var out []string
	visited := map[string]bool{name: true}
	queue := cls.ancestors()
	for len(queue) > 0 {
		anc := queue[0]
		queue = queue[1:]
		if anc == universalRoot || visited[anc] {
			continue
		}
		visited[anc] = true

		ancCls, ok := a.universe.Lookup(anc)
		if !ok {
			a.stats.MissingAncestors++
			continue
		}
		if scope.InScope(anc) {
			out = append(out, anc)
			continue
		}
		queue = append(queue, ancCls.ancestors()...)
	}
	return out
}

// orderedComponents returns the connected components of g with members in
// id order and components ordered by their smallest id.
func orderedComponents(g *simple.UndirectedGraph) [][]int {
	var comps [][]int
	for _, nodes := range topo.ConnectedComponents(g) {
		comp := make([]int, len(nodes))
		for i, n := range nodes {
			comp[i] = int(n.ID())
		}
		slices.Sort(comp)
		comps = append(comps, comp)
	}
	slices.SortFunc(comps, func(x, y []int) int {
		return x[0] - y[0]
	})
	return comps
}
