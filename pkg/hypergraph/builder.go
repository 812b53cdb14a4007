package hypergraph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arkadix/relgraph/pkg/config"
	"github.com/arkadix/relgraph/pkg/logger"
	"github.com/arkadix/relgraph/pkg/schema"
	"github.com/arkadix/relgraph/pkg/source"
)

// Builder constructs pass-scoped Hypergraph instances from seed rows by
// bounded breadth-first expansion over foreign keys, in both directions.
//
// The builder snapshots table rows from the source on first use and indexes
// them by primary key and by referencing foreign-key value, so repeated
// batch builds do not refetch. A builder is safe for use by the prefetcher's
// single goroutine alongside the caller; the snapshot load is guarded.
type Builder struct {
	schema *schema.Schema
	src    source.Source
	cfg    config.BuildConfig

	mu     sync.Mutex
	loaded bool
	rows   map[string][]source.Row
	pkIdx  map[string]map[string]int
	// rev maps constraint tag -> referenced pk key -> referencing row
	// indices, sorted by the referencing row's primary key.
	rev map[string]map[string][]int

	tables    []string
	tableIdx  map[string]int
	edgeTypes []string
	edgeIdx   map[string]int
	incoming  map[string][]schema.ForeignKey // table -> FKs that reference it
}

func NewBuilder(s *schema.Schema, src source.Source, cfg config.BuildConfig) *Builder {
	b := &Builder{
		schema:   s,
		src:      src,
		cfg:      cfg,
		tableIdx: make(map[string]int),
		edgeIdx:  make(map[string]int),
		incoming: make(map[string][]schema.ForeignKey),
	}
	for _, t := range s.Tables {
		b.tableIdx[t.Name] = len(b.tables)
		b.tables = append(b.tables, t.Name)
	}
	for _, fk := range s.ForeignKeys() {
		b.edgeIdx[fk.Tag()] = len(b.edgeTypes)
		b.edgeTypes = append(b.edgeTypes, fk.Tag())
		b.incoming[fk.RefTable] = append(b.incoming[fk.RefTable], fk)
	}
	return b
}

// load snapshots all keyed tables and builds the pk and reverse-fk indices.
// Tables are fetched concurrently; the first error aborts the load.
func (b *Builder) load(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return nil
	}

	rows := make(map[string][]source.Row, len(b.schema.Tables))
	var rowsMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := range b.schema.Tables {
		t := &b.schema.Tables[i]
		if t.PKIndex < 0 {
			logger.DebugCF("hypergraph", "skipping keyless table", map[string]interface{}{"table": t.Name})
			continue
		}
		g.Go(func() error {
			fetched, err := b.src.FetchRows(gctx, t.Name, nil)
			if err != nil {
				return fmt.Errorf("hypergraph: fetch %s: %w", t.Name, err)
			}
			for i := range fetched {
				// Keys promoted by inference are not known to the source.
				if fetched[i].Key.IsNull() && t.PKIndex < len(fetched[i].Values) {
					fetched[i].Key = fetched[i].Values[t.PKIndex]
				}
			}
			rowsMu.Lock()
			rows[t.Name] = fetched
			rowsMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	pkIdx := make(map[string]map[string]int, len(rows))
	for name, rs := range rows {
		idx := make(map[string]int, len(rs))
		for i, r := range rs {
			if !r.Key.IsNull() {
				idx[r.Key.Key()] = i
			}
		}
		pkIdx[name] = idx
	}

	rev := make(map[string]map[string][]int)
	for _, fk := range b.schema.ForeignKeys() {
		t := b.schema.Table(fk.Table)
		col := t.ColumnIndex(fk.Column)
		if col < 0 {
			continue
		}
		m := make(map[string][]int)
		for i, r := range rows[fk.Table] {
			v := r.Values[col]
			if v.IsNull() {
				continue
			}
			m[v.Key()] = append(m[v.Key()], i)
		}
		// Referencing rows come back in pk order from the source, but sort
		// defensively so truncation stays deterministic for any source.
		for k := range m {
			refs := m[k]
			sort.Slice(refs, func(x, y int) bool {
				return rows[fk.Table][refs[x]].Key.Less(rows[fk.Table][refs[y]].Key)
			})
		}
		rev[fk.Tag()] = m
	}

	b.rows, b.pkIdx, b.rev = rows, pkIdx, rev
	b.loaded = true
	return nil
}

// neighbor is one candidate expansion of a node.
type neighbor struct {
	table   string
	rowIdx  int
	edgeTag string
	out     bool // true: current row references the neighbor
}

// Build constructs a hypergraph from the given per-table seed primary keys.
// A nil seeds map builds the full graph over every keyed table.
func (b *Builder) Build(ctx context.Context, seeds map[string][]source.Value) (*Hypergraph, *Report, error) {
	if err := b.load(ctx); err != nil {
		return nil, nil, err
	}
	if seeds == nil {
		return b.buildFull()
	}

	g := b.newGraph()
	rep := &Report{ByConstraint: make(map[string]int)}

	seedTables := make([]string, 0, len(seeds))
	for name := range seeds {
		seedTables = append(seedTables, name)
	}
	sort.Strings(seedTables)

	for _, name := range seedTables {
		ti, ok := b.tableIdx[name]
		if !ok {
			return nil, nil, fmt.Errorf("hypergraph: unknown seed table %q", name)
		}
		for _, key := range seeds[name] {
			rowIdx, ok := b.pkIdx[name][key.Key()]
			if !ok {
				rep.MissingSeeds++
				continue
			}
			if err := b.expand(g, rep, ti, rowIdx, key); err != nil {
				return nil, nil, err
			}
		}
	}

	b.finish(g, rep)
	return g, rep, nil
}

// expand runs one seed's bounded BFS.
func (b *Builder) expand(g *Hypergraph, rep *Report, seedTable, seedRow int, key source.Value) error {
	type item struct {
		node  int
		depth int
	}

	name := b.tables[seedTable]
	seedNode := g.NodeIndex(seedTable, key)
	if seedNode < 0 {
		seedNode = g.addNode(seedTable, key, 0, b.rows[name][seedRow])
	}

	budget := 0 // non-seed rows pulled in by this seed
	queue := []item{{seedNode, 0}}
	seen := map[int]bool{seedNode: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= b.cfg.Hops {
			continue
		}

		nbs, err := b.neighborsOf(g, rep, cur.node)
		if err != nil {
			return err
		}
		for _, nb := range nbs {
			nbTable := b.tableIdx[nb.table]
			nbKey := b.rows[nb.table][nb.rowIdx].Key
			nbNode := g.NodeIndex(nbTable, nbKey)
			if nbNode < 0 {
				if budget >= b.cfg.NodeBudget {
					rep.Truncated++
					continue
				}
				nbNode = g.addNode(nbTable, nbKey, cur.depth+1, b.rows[nb.table][nb.rowIdx])
				budget++
			}
			b.addEdge(g, cur.node, nbNode, nb)
			if !seen[nbNode] {
				seen[nbNode] = true
				queue = append(queue, item{nbNode, cur.depth + 1})
			}
		}
	}
	return nil
}

// neighborsOf lists candidates in deterministic order: outgoing foreign keys
// in declaration order, then incoming references in constraint order and
// primary-key order. Dangling outgoing references are dropped and counted.
func (b *Builder) neighborsOf(g *Hypergraph, rep *Report, node int) ([]neighbor, error) {
	rn := g.Nodes[node]
	name := b.tables[rn.Table]
	t := b.schema.Table(name)
	row := b.rows[name][b.pkIdx[name][rn.Key.Key()]]

	var out []neighbor
	for _, fk := range t.ForeignKeys {
		col := t.ColumnIndex(fk.Column)
		if col < 0 {
			continue
		}
		v := row.Values[col]
		if v.IsNull() {
			continue
		}
		refIdx, ok := b.pkIdx[fk.RefTable][v.Key()]
		if !ok {
			rep.Dangling++
			rep.ByConstraint[fk.Tag()]++
			if b.cfg.StrictIntegrity {
				return nil, &IntegrityError{
					Violations: rep.Dangling,
					Limit:      0,
					Detail:     fmt.Sprintf("%s=%s has no referenced row", fk.Tag(), v),
				}
			}
			continue
		}
		out = append(out, neighbor{table: fk.RefTable, rowIdx: refIdx, edgeTag: fk.Tag(), out: true})
	}

	for _, fk := range b.incoming[name] {
		for _, refIdx := range b.rev[fk.Tag()][rn.Key.Key()] {
			out = append(out, neighbor{table: fk.Table, rowIdx: refIdx, edgeTag: fk.Tag()})
		}
	}

	if rep.Dangling > b.cfg.MaxViolations {
		return nil, &IntegrityError{
			Violations: rep.Dangling,
			Limit:      b.cfg.MaxViolations,
			Detail:     "dangling foreign keys exceed the configured threshold",
		}
	}
	return out, nil
}

func (b *Builder) addEdge(g *Hypergraph, cur, nb int, n neighbor) {
	src, dst := cur, nb
	if !n.out {
		src, dst = nb, cur
	}
	g.addTypedEdge(FKEdge{Src: src, Dst: dst, Type: b.edgeIdx[n.edgeTag]})
}

// buildFull includes every row of every keyed table and every resolvable
// foreign-key edge; the node budget does not apply.
func (b *Builder) buildFull() (*Hypergraph, *Report, error) {
	g := b.newGraph()
	rep := &Report{ByConstraint: make(map[string]int)}

	for ti, name := range b.tables {
		for _, r := range b.rows[name] {
			if r.Key.IsNull() {
				continue
			}
			g.addNode(ti, r.Key, 0, r)
		}
	}

	for _, fk := range b.schema.ForeignKeys() {
		t := b.schema.Table(fk.Table)
		col := t.ColumnIndex(fk.Column)
		srcTable := b.tableIdx[fk.Table]
		dstTable := b.tableIdx[fk.RefTable]
		for _, r := range b.rows[fk.Table] {
			v := r.Values[col]
			if v.IsNull() || r.Key.IsNull() {
				continue
			}
			dst := g.NodeIndex(dstTable, v)
			if dst < 0 {
				rep.Dangling++
				rep.ByConstraint[fk.Tag()]++
				if b.cfg.StrictIntegrity {
					return nil, nil, &IntegrityError{
						Violations: rep.Dangling,
						Detail:     fmt.Sprintf("%s=%s has no referenced row", fk.Tag(), v),
					}
				}
				continue
			}
			src := g.NodeIndex(srcTable, r.Key)
			g.addTypedEdge(FKEdge{Src: src, Dst: dst, Type: b.edgeIdx[fk.Tag()]})
		}
	}
	if rep.Dangling > b.cfg.MaxViolations {
		return nil, nil, &IntegrityError{
			Violations: rep.Dangling,
			Limit:      b.cfg.MaxViolations,
			Detail:     "dangling foreign keys exceed the configured threshold",
		}
	}

	b.finish(g, rep)
	return g, rep, nil
}

func (b *Builder) newGraph() *Hypergraph {
	return &Hypergraph{
		BuildID:   uuid.New(),
		Tables:    b.tables,
		EdgeTypes: b.edgeTypes,
		lookup:    make(map[nodeKey]int),
		edgeSet:   make(map[FKEdge]bool),
	}
}

// finish groups the included nodes into one hypernode per table present and
// emits the aggregated build summary.
func (b *Builder) finish(g *Hypergraph, rep *Report) {
	members := make(map[int][]int)
	for i, n := range g.Nodes {
		members[n.Table] = append(members[n.Table], i)
	}
	for ti := range b.tables {
		if ms, ok := members[ti]; ok {
			g.Hyper = append(g.Hyper, TableHyperNode{Table: ti, Members: ms})
		}
	}

	rep.Nodes = len(g.Nodes)
	rep.Edges = len(g.Edges)
	rep.HyperNodes = len(g.Hyper)

	fields := map[string]interface{}{
		"build": g.BuildID.String(),
		"nodes": rep.Nodes,
		"edges": rep.Edges,
		"hyper": rep.HyperNodes,
	}
	if rep.Dangling > 0 || rep.Truncated > 0 || rep.MissingSeeds > 0 {
		fields["dangling"] = rep.Dangling
		fields["truncated"] = rep.Truncated
		fields["missing_seeds"] = rep.MissingSeeds
		logger.WarnCF("hypergraph", "build finished with drops", fields)
	} else {
		logger.DebugCF("hypergraph", "build finished", fields)
	}
}
