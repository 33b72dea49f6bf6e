package main

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jLoader loads coupling results into a Neo4j database using batch
// UNWIND queries.
type Neo4jLoader struct {
	driver neo4j.DriverWithContext
	ctx    context.Context
	log    Logger
}

// NewNeo4jLoader connects to Neo4j and returns a ready-to-use loader.
func NewNeo4jLoader(ctx context.Context, uri, user, password string, log Logger) (*Neo4jLoader, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach neo4j at %s: %w", uri, err)
	}
	if log == nil {
		log = NewSilentLogger()
	}
	return &Neo4jLoader{driver: driver, ctx: ctx, log: log}, nil
}

// Close releases the underlying Neo4j driver resources.
func (l *Neo4jLoader) Close() {
	l.driver.Close(l.ctx)
}

func (l *Neo4jLoader) runCypher(cypher string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(l.ctx, l.driver, cypher, params, neo4j.EagerResultTransformer)
	return err
}

// CleanGraph removes previously loaded coupling nodes and relationships.
func (l *Neo4jLoader) CleanGraph() error {
	l.log.Info("Cleaning existing coupling graph")
	queries := []string{
		"MATCH ()-[r:CALLS_INTO]->() DELETE r",
		"MATCH ()-[r:SAME_HIERARCHY]->() DELETE r",
		"MATCH ()-[r:EXTENDS]->() DELETE r",
		"MATCH (n:JavaClass) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := l.runCypher(q, nil); err != nil {
			return err
		}
	}
	return nil
}

// CreateIndexes ensures the required Neo4j indexes exist.
func (l *Neo4jLoader) CreateIndexes() error {
	return l.runCypher("CREATE INDEX java_class_name IF NOT EXISTS FOR (n:JavaClass) ON (n.name)", nil)
}

// LoadClasses upserts JavaClass nodes for the in-scope classes of u and
// links each to its direct in-universe ancestors.
func (l *Neo4jLoader) LoadClasses(u *Universe, scope Scope) error {
	nodes, extends := classBatches(u, scope)
	l.log.Info("Loading classes", F("classes", len(nodes)), F("extends", len(extends)))
	err := l.runCypher(
		`UNWIND $batch AS row
		 MERGE (n:JavaClass {name: row.name})
		 SET n.interface = row.interface, n.methods = row.methods`,
		map[string]any{"batch": nodes},
	)
	if err != nil || len(extends) == 0 {
		return err
	}
	return l.runCypher(
		`UNWIND $batch AS row
		 MATCH (s:JavaClass {name: row.sub}), (p:JavaClass {name: row.super})
		 MERGE (s)-[:EXTENDS]->(p)`,
		map[string]any{"batch": extends},
	)
}

// LoadCallCouplings upserts CALLS_INTO relationships.
func (l *Neo4jLoader) LoadCallCouplings(records []CallCouplingRecord) error {
	batch := callBatch(records)
	l.log.Info("Loading call couplings", F("edges", len(batch)))
	return l.runCypher(
		`UNWIND $batch AS row
		 MERGE (a:JavaClass {name: row.from})
		 MERGE (b:JavaClass {name: row.to})
		 MERGE (a)-[r:CALLS_INTO]->(b)
		 SET r.calls = row.calls`,
		map[string]any{"batch": batch},
	)
}

// LoadHierarchyCouplings upserts SAME_HIERARCHY relationships, one per
// unordered pair.
func (l *Neo4jLoader) LoadHierarchyCouplings(records []HierarchyCouplingRecord) error {
	batch := hierarchyBatch(records)
	l.log.Info("Loading hierarchy couplings", F("pairs", len(batch)))
	return l.runCypher(
		`UNWIND $batch AS row
		 MERGE (a:JavaClass {name: row.from})
		 MERGE (b:JavaClass {name: row.to})
		 MERGE (a)-[:SAME_HIERARCHY]->(b)`,
		map[string]any{"batch": batch},
	)
}

func classBatches(u *Universe, scope Scope) (nodes, extends []map[string]any) {
	for _, name := range u.Names() {
		if !scope.InScope(name) {
			continue
		}
		c, _ := u.Lookup(name)
		nodes = append(nodes, map[string]any{
			"name":      c.Name,
			"interface": c.IsInterface,
			"methods":   len(c.Methods),
		})
		for _, anc := range c.ancestors() {
			if _, ok := u.Lookup(anc); ok && scope.InScope(anc) {
				extends = append(extends, map[string]any{"sub": c.Name, "super": anc})
			}
		}
	}
	return nodes, extends
}

func callBatch(records []CallCouplingRecord) []map[string]any {
	batch := make([]map[string]any, 0, len(records))
	for _, r := range records {
		for _, c := range r.Coupled {
			batch = append(batch, map[string]any{
				"from":  r.Class,
				"to":    c.Class,
				"calls": c.Calls,
			})
		}
	}
	return batch
}

func hierarchyBatch(records []HierarchyCouplingRecord) []map[string]any {
	seen := make(map[[2]string]bool)
	batch := make([]map[string]any, 0, len(records))
	for _, r := range records {
		for _, other := range r.Coupled {
			key := [2]string{r.Class, other}
			if other < r.Class {
				key = [2]string{other, r.Class}
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			batch = append(batch, map[string]any{"from": key[0], "to": key[1]})
		}
	}
	return batch
}
