// Package model composes the pipeline into a predictive model: schema
// inference, column encoders, row tensorization, hypergraph construction,
// message passing, and a task head over the final embeddings. The assembler
// only depends on the fixed-width embedding contract, so any encoder or
// pooling variant plugs in unchanged.
package model

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/arkadix/relgraph/pkg/config"
	"github.com/arkadix/relgraph/pkg/encode"
	"github.com/arkadix/relgraph/pkg/gnn"
	"github.com/arkadix/relgraph/pkg/hypergraph"
	"github.com/arkadix/relgraph/pkg/schema"
	"github.com/arkadix/relgraph/pkg/source"
	"github.com/arkadix/relgraph/pkg/stats"
	"github.com/arkadix/relgraph/pkg/tensorize"
)

// Task selects the head and loss.
type Task int

const (
	Classification Task = iota
	Regression
)

// Target names what the model predicts: a column of a table (node-level
// head over that table's RowNodes), or, with Column left empty, the table
// itself (graph-level regression head over its TableHyperNode).
type Target struct {
	Table  string
	Column string
	Task   Task
}

// Model is the assembled end-to-end network.
type Model struct {
	cfg     *config.Config
	schema  *schema.Schema
	target  Target
	bank    *encode.Bank
	tens    *tensorize.Tensorizers
	builder *hypergraph.Builder
	engine  *gnn.Engine
	head    *head

	labelIdx   int            // target column position in fetched rows; -1 for graph-level
	classIndex map[string]int // label value key -> class, classification only
	classes    []source.Value

	Tracker *stats.Tracker
}

// Assemble infers the schema from src and builds every stage. The same
// config seed reproduces identical parameters.
func Assemble(ctx context.Context, src source.Source, cfg *config.Config, target Target) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := schema.NewInferrer(cfg.Schema).Infer(ctx, src)
	if err != nil {
		return nil, err
	}

	tt := s.Table(target.Table)
	if tt == nil {
		return nil, fmt.Errorf("model: target table %q not in schema", target.Table)
	}
	labelIdx := -1
	if target.Column != "" {
		labelIdx = tt.ColumnIndex(target.Column)
		if labelIdx < 0 {
			return nil, fmt.Errorf("model: target column %s.%s not in schema", target.Table, target.Column)
		}
	} else if target.Task == Classification {
		return nil, fmt.Errorf("model: graph-level targets support regression only")
	}

	samples := make(map[string][]source.Row, len(s.Tables))
	for _, t := range s.Tables {
		rows, err := source.SampleRows(ctx, src, t.Name, cfg.Schema.SampleRows)
		if err != nil {
			return nil, fmt.Errorf("model: sample %s: %w", t.Name, err)
		}
		samples[t.Name] = rows
	}

	rng := rand.New(rand.NewSource(cfg.Model.Seed))
	dim := cfg.Model.EmbedDim

	bank := encode.NewBank(s, samples, cfg.Encoder, dim, rng)
	if target.Column != "" {
		// The label must not leak into the target table's features.
		bank.Table(target.Table).Exclude(target.Column)
	}

	m := &Model{
		cfg:      cfg,
		schema:   s,
		target:   target,
		bank:     bank,
		tens:     tensorize.NewTensorizers(s, dim, rng),
		builder:  hypergraph.NewBuilder(s, src, cfg.Build),
		labelIdx: labelIdx,
		Tracker:  stats.NewTracker(),
	}

	tags := make([]string, 0)
	for _, fk := range s.ForeignKeys() {
		tags = append(tags, fk.Tag())
	}
	m.engine = gnn.NewEngine(tags, dim, cfg.Model.Layers, gnn.PoolFromName(cfg.Model.Pool), rng)

	outDim := 1
	if target.Task == Classification {
		m.classIndex, m.classes = labelClasses(samples[target.Table], labelIdx)
		if len(m.classes) == 0 {
			return nil, fmt.Errorf("model: target %s.%s has no labeled rows", target.Table, target.Column)
		}
		outDim = len(m.classes)
	}
	m.head = newHead(dim, outDim, rng)

	return m, nil
}

// Schema returns the inferred schema snapshot the model was assembled from.
func (m *Model) Schema() *schema.Schema { return m.schema }

// Classes returns the label values backing each classification class index.
func (m *Model) Classes() []source.Value { return m.classes }

// Builder exposes the hypergraph builder, e.g. for prefetching.
func (m *Model) Builder() *hypergraph.Builder { return m.builder }

// Output is one forward pass result: scores keyed by primary key (or by
// table name for graph-level targets) and the loss over labeled rows.
type Output struct {
	Scores  map[string][]float64
	Loss    float64
	Labeled int
}

// Predict builds the hypergraph for the given seeds (nil for the full
// graph), runs the forward pass, and applies the head to the target
// embeddings.
func (m *Model) Predict(ctx context.Context, seeds map[string][]source.Value) (*Output, error) {
	g, rep, err := m.builder.Build(ctx, seeds)
	if err != nil {
		return nil, err
	}
	m.Tracker.RecordBuild(rep)

	rows, hyper := m.engine.Forward(g, m.tensorizeAll(g))

	out := &Output{Scores: make(map[string][]float64)}
	ti := g.TableIndex(m.target.Table)
	if ti < 0 {
		// Target table absent from this batch: nothing to score.
		return out, nil
	}

	if m.labelIdx < 0 {
		hn := g.HyperNode(ti)
		for hi := range g.Hyper {
			if &g.Hyper[hi] == hn {
				out.Scores[m.target.Table] = m.head.apply(hyper.RawRowView(hi))
			}
		}
		return out, nil
	}

	for i, n := range g.Nodes {
		if n.Table != ti {
			continue
		}
		scores := m.head.apply(rows.RawRowView(i))
		if m.target.Task == Classification {
			softmax(scores)
		}
		out.Scores[n.Key.Key()] = scores

		label := g.Rows[i].Values[m.labelIdx]
		if label.IsNull() {
			continue
		}
		if l, ok := m.lossOf(scores, label); ok {
			out.Loss += l
			out.Labeled++
		}
	}
	if out.Labeled > 0 {
		out.Loss /= float64(out.Labeled)
	}
	return out, nil
}

// tensorizeAll produces the N×D input matrix, one mixed row vector per
// RowNode, in arena order.
func (m *Model) tensorizeAll(g *hypergraph.Hypergraph) *mat.Dense {
	dim := m.cfg.Model.EmbedDim
	n := len(g.Nodes)
	if n == 0 {
		return mat.NewDense(1, dim, nil)
	}
	x := mat.NewDense(n, dim, nil)
	for i, node := range g.Nodes {
		name := g.Tables[node.Table]
		te := m.bank.Table(name)
		tz := m.tens.Table(name)
		if te == nil || tz == nil {
			continue
		}
		x.SetRow(i, tz.Row(te, g.Rows[i]))
	}
	return x
}

func (m *Model) lossOf(scores []float64, label source.Value) (float64, bool) {
	if m.target.Task == Regression {
		want, ok := labelFloat(label)
		if !ok {
			return 0, false
		}
		d := scores[0] - want
		return d * d, true
	}
	cls, ok := m.classIndex[label.Key()]
	if !ok {
		return 0, false
	}
	p := scores[cls]
	if p < 1e-12 {
		p = 1e-12
	}
	return -logf(p), true
}

func labelClasses(rows []source.Row, idx int) (map[string]int, []source.Value) {
	seen := make(map[string]source.Value)
	for _, r := range rows {
		v := r.Values[idx]
		if !v.IsNull() {
			seen[v.Key()] = v
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	index := make(map[string]int, len(keys))
	classes := make([]source.Value, len(keys))
	for i, k := range keys {
		index[k] = i
		classes[i] = seen[k]
	}
	return index, classes
}

func labelFloat(v source.Value) (float64, bool) {
	switch v.Kind {
	case source.KindInt:
		return float64(v.Int), true
	case source.KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}
