// Package gnn runs heterogeneous message passing over a built hypergraph.
// Each layer mixes rows within a table, propagates typed messages along
// foreign-key edges, pools rows into their table hypernode, and broadcasts
// the hypernode back into its rows. Every reduction is permutation-invariant
// over the node and edge sets.
package gnn

import (
	"math"
	"math/rand"

	"github.com/arkadix/relgraph/pkg/hypergraph"
	"gonum.org/v1/gonum/mat"
)

// Pool selects the level-2 reduction.
type Pool int

const (
	PoolSum Pool = iota
	PoolMean
	PoolMax
	PoolAttention
)

// PoolFromName maps the config spelling to a Pool; unknown names fall back
// to mean (config validation rejects them before this point).
func PoolFromName(name string) Pool {
	switch name {
	case "sum":
		return PoolSum
	case "max":
		return PoolMax
	case "attention":
		return PoolAttention
	default:
		return PoolMean
	}
}

// layer holds one round of learned transformations.
type layer struct {
	wq, wk, wv *mat.Dense            // intra-table attention
	selfW      *mat.Dense            // self transform in the typed convolution
	edge       map[string]*mat.Dense // one transform per FK constraint tag
	poolQuery  []float64             // attention pooling query
	broadcast  *mat.Dense            // hypernode-to-row injection
}

// Engine is the stacked message-passing network. Parameters are read-only
// during a forward pass; a missing table or relation type in a batch is
// skipped, not an error.
type Engine struct {
	dim    int
	pool   Pool
	layers []*layer
}

// NewEngine builds L layers with one typed transform per foreign-key
// constraint tag. Initialization order is fixed, so a seeded rng reproduces
// identical parameters.
func NewEngine(edgeTags []string, dim, numLayers int, pool Pool, rng *rand.Rand) *Engine {
	e := &Engine{dim: dim, pool: pool}
	for i := 0; i < numLayers; i++ {
		l := &layer{
			wq:        randMat(dim, dim, rng),
			wk:        randMat(dim, dim, rng),
			wv:        randMat(dim, dim, rng),
			selfW:     randMat(dim, dim, rng),
			edge:      make(map[string]*mat.Dense, len(edgeTags)),
			poolQuery: randVec(dim, rng),
			broadcast: randMat(dim, dim, rng),
		}
		for _, tag := range edgeTags {
			l.edge[tag] = randMat(dim, dim, rng)
		}
		e.layers = append(e.layers, l)
	}
	return e
}

// Forward runs all layers over the graph. x is the N×D row-node input from
// the tensorizer; the returned matrices are the final row embeddings (N×D)
// and hypernode embeddings (len(g.Hyper)×D, aligned with g.Hyper).
func (e *Engine) Forward(g *hypergraph.Hypergraph, x *mat.Dense) (*mat.Dense, *mat.Dense) {
	cur := mat.DenseCopyOf(x)
	hyper := mat.NewDense(maxInt(len(g.Hyper), 1), e.dim, nil)

	for _, l := range e.layers {
		e.intraTable(g, cur, l)
		e.propagate(g, cur, l)
		e.poolLevel2(g, cur, hyper, l)
		e.broadcastLevel2(g, cur, hyper, l)
	}
	return cur, hyper
}

// intraTable applies self-attention over the rows sharing each hypernode.
func (e *Engine) intraTable(g *hypergraph.Hypergraph, x *mat.Dense, l *layer) {
	for _, hn := range g.Hyper {
		m := len(hn.Members)
		if m < 2 {
			continue
		}
		sub := gather(x, hn.Members)

		var q, k, v mat.Dense
		q.Mul(sub, l.wq)
		k.Mul(sub, l.wk)
		v.Mul(sub, l.wv)

		var scores mat.Dense
		scores.Mul(&q, k.T())
		scores.Scale(1/math.Sqrt(float64(e.dim)), &scores)
		softmaxRows(&scores)

		var mixed mat.Dense
		mixed.Mul(&scores, &v)
		mixed.Add(&mixed, sub)
		scatter(x, hn.Members, &mixed)
	}
}

// propagate runs the typed convolution: messages flow along each FK edge in
// both directions through the constraint's transform, are mean-aggregated
// per node, and combined with a transformed self term.
func (e *Engine) propagate(g *hypergraph.Hypergraph, x *mat.Dense, l *layer) {
	n, _ := x.Dims()
	agg := mat.NewDense(n, e.dim, nil)
	deg := make([]float64, n)

	for _, edge := range g.Edges {
		w, ok := l.edge[g.EdgeTypes[edge.Type]]
		if !ok {
			continue
		}
		addMessage(agg, deg, edge.Dst, x.RawRowView(edge.Src), w)
		addMessage(agg, deg, edge.Src, x.RawRowView(edge.Dst), w)
	}

	var self mat.Dense
	self.Mul(x, l.selfW)

	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		s := self.RawRowView(i)
		a := agg.RawRowView(i)
		inv := 0.0
		if deg[i] > 0 {
			inv = 1 / deg[i]
		}
		for j := 0; j < e.dim; j++ {
			row[j] += relu(s[j] + a[j]*inv)
		}
	}
}

// poolLevel2 reduces member rows into the hypernode embedding.
func (e *Engine) poolLevel2(g *hypergraph.Hypergraph, x, hyper *mat.Dense, l *layer) {
	for hi, hn := range g.Hyper {
		out := hyper.RawRowView(hi)
		for j := range out {
			out[j] = 0
		}
		if len(hn.Members) == 0 {
			continue
		}
		switch e.pool {
		case PoolMax:
			for j := range out {
				out[j] = math.Inf(-1)
			}
			for _, m := range hn.Members {
				row := x.RawRowView(m)
				for j := range out {
					if row[j] > out[j] {
						out[j] = row[j]
					}
				}
			}
		case PoolAttention:
			scores := make([]float64, len(hn.Members))
			max := math.Inf(-1)
			for i, m := range hn.Members {
				scores[i] = dot(x.RawRowView(m), l.poolQuery)
				if scores[i] > max {
					max = scores[i]
				}
			}
			sum := 0.0
			for i := range scores {
				scores[i] = math.Exp(scores[i] - max)
				sum += scores[i]
			}
			for i, m := range hn.Members {
				w := scores[i] / sum
				row := x.RawRowView(m)
				for j := range out {
					out[j] += w * row[j]
				}
			}
		default: // sum or mean
			for _, m := range hn.Members {
				row := x.RawRowView(m)
				for j := range out {
					out[j] += row[j]
				}
			}
			if e.pool == PoolMean {
				inv := 1 / float64(len(hn.Members))
				for j := range out {
					out[j] *= inv
				}
			}
		}
	}
}

// broadcastLevel2 injects each hypernode's embedding back into its rows.
func (e *Engine) broadcastLevel2(g *hypergraph.Hypergraph, x, hyper *mat.Dense, l *layer) {
	ctx := make([]float64, e.dim)
	for hi, hn := range g.Hyper {
		h := hyper.RawRowView(hi)
		for j := range ctx {
			ctx[j] = 0
		}
		for i := 0; i < e.dim; i++ {
			w := l.broadcast.RawRowView(i)
			for j := range ctx {
				ctx[j] += h[i] * w[j]
			}
		}
		for _, m := range hn.Members {
			row := x.RawRowView(m)
			for j := range row {
				row[j] += ctx[j]
			}
		}
	}
}

func addMessage(agg *mat.Dense, deg []float64, dst int, src []float64, w *mat.Dense) {
	out := agg.RawRowView(dst)
	for i := range src {
		row := w.RawRowView(i)
		for j := range out {
			out[j] += src[i] * row[j]
		}
	}
	deg[dst]++
}

func gather(x *mat.Dense, idx []int) *mat.Dense {
	_, d := x.Dims()
	out := mat.NewDense(len(idx), d, nil)
	for i, m := range idx {
		out.SetRow(i, x.RawRowView(m))
	}
	return out
}

func scatter(x *mat.Dense, idx []int, sub *mat.Dense) {
	for i, m := range idx {
		x.SetRow(m, sub.RawRowView(i))
	}
}

func softmaxRows(m *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		max := math.Inf(-1)
		for j := 0; j < c; j++ {
			if row[j] > max {
				max = row[j]
			}
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			row[j] = math.Exp(row[j] - max)
			sum += row[j]
		}
		for j := 0; j < c; j++ {
			row[j] /= sum
		}
	}
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func randVec(n int, rng *rand.Rand) []float64 {
	scale := 1.0 / math.Sqrt(float64(n))
	out := make([]float64, n)
	for i := range out {
		out[i] = (2*rng.Float64() - 1) * scale
	}
	return out
}

func randMat(r, c int, rng *rand.Rand) *mat.Dense {
	scale := 1.0 / math.Sqrt(float64(r))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * scale
	}
	return mat.NewDense(r, c, data)
}
