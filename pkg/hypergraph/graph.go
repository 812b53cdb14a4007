// Package hypergraph constructs the two-level relational hypergraph: row
// nodes linked by typed foreign-key edges (level 1) and one hypernode per
// table aggregating its rows (level 2). Instances are arenas of
// integer-indexed nodes and edges, immutable once built, scoped to one pass
// and disposed as a unit.
package hypergraph

import (
	"fmt"

	"github.com/arkadix/relgraph/pkg/source"
	"github.com/google/uuid"
)

// RowNode is one database row included in the graph.
type RowNode struct {
	Table int // index into Hypergraph.Tables
	Key   source.Value
	Depth int // BFS distance from the nearest seed
}

// FKEdge is a directed typed edge from a referencing row to the row it
// references.
type FKEdge struct {
	Src  int // node index of the referencing row
	Dst  int // node index of the referenced row
	Type int // index into Hypergraph.EdgeTypes
}

// TableHyperNode aggregates all included rows of one table. Membership is
// exhaustive and exclusive: every RowNode belongs to exactly one hypernode.
type TableHyperNode struct {
	Table   int
	Members []int // node indices, ascending
}

// Hypergraph is the pass-scoped arena. Node, edge and hypernode slices are
// append-only during construction and frozen afterwards.
type Hypergraph struct {
	BuildID uuid.UUID

	Tables    []string // table names referenced by node/hypernode Table indices
	EdgeTypes []string // foreign-key constraint tags referenced by FKEdge.Type

	Nodes []RowNode
	Edges []FKEdge
	Hyper []TableHyperNode

	// Rows carries the fetched row data aligned with Nodes, consumed by the
	// tensorizer when the pass starts.
	Rows []source.Row

	lookup  map[nodeKey]int
	edgeSet map[FKEdge]bool
}

type nodeKey struct {
	table int
	key   string
}

// NodeIndex returns the index of the row node for (table, key), or -1.
func (g *Hypergraph) NodeIndex(table int, key source.Value) int {
	if i, ok := g.lookup[nodeKey{table, key.Key()}]; ok {
		return i
	}
	return -1
}

// TableIndex returns the index of a table name in g.Tables, or -1.
func (g *Hypergraph) TableIndex(name string) int {
	for i, t := range g.Tables {
		if t == name {
			return i
		}
	}
	return -1
}

// HyperNode returns the hypernode of the given table index, or nil.
func (g *Hypergraph) HyperNode(table int) *TableHyperNode {
	for i := range g.Hyper {
		if g.Hyper[i].Table == table {
			return &g.Hyper[i]
		}
	}
	return nil
}

func (g *Hypergraph) addNode(table int, key source.Value, depth int, row source.Row) int {
	idx := len(g.Nodes)
	g.Nodes = append(g.Nodes, RowNode{Table: table, Key: key, Depth: depth})
	g.Rows = append(g.Rows, row)
	g.lookup[nodeKey{table, key.Key()}] = idx
	return idx
}

// addTypedEdge appends the edge unless it is already present.
func (g *Hypergraph) addTypedEdge(e FKEdge) {
	if g.edgeSet[e] {
		return
	}
	g.edgeSet[e] = true
	g.Edges = append(g.Edges, e)
}

// Report summarizes one construction: included sizes plus everything that
// was absorbed instead of failing.
type Report struct {
	Nodes        int
	Edges        int
	HyperNodes   int
	Truncated    int            // rows skipped by the per-seed node budget
	Dangling     int            // foreign-key instances dropped as dangling
	MissingSeeds int            // seed keys with no row in the source
	ByConstraint map[string]int // dangling count per constraint tag
}

// IntegrityError is the fatal outcome of a build whose accumulated
// referential-integrity violations signal a malformed schema.
type IntegrityError struct {
	Violations int
	Limit      int
	Detail     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("hypergraph: %d integrity violations (limit %d): %s",
		e.Violations, e.Limit, e.Detail)
}
