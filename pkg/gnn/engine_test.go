package gnn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/arkadix/relgraph/pkg/hypergraph"
	"github.com/arkadix/relgraph/pkg/source"
	"gonum.org/v1/gonum/mat"
)

const testDim = 4

const edgeTag = "orders.customer_id->customers.id"

// pairGraph is one customer row referenced by two order rows.
func pairGraph() *hypergraph.Hypergraph {
	return &hypergraph.Hypergraph{
		Tables:    []string{"customers", "orders"},
		EdgeTypes: []string{edgeTag},
		Nodes: []hypergraph.RowNode{
			{Table: 0, Key: source.Int(1)},
			{Table: 1, Key: source.Int(10), Depth: 1},
			{Table: 1, Key: source.Int(11), Depth: 1},
		},
		Edges: []hypergraph.FKEdge{
			{Src: 1, Dst: 0, Type: 0},
			{Src: 2, Dst: 0, Type: 0},
		},
		Hyper: []hypergraph.TableHyperNode{
			{Table: 0, Members: []int{0}},
			{Table: 1, Members: []int{1, 2}},
		},
	}
}

// permutedPairGraph is pairGraph with node indices reordered: old index i
// becomes perm[i].
func permutedPairGraph() (*hypergraph.Hypergraph, []int) {
	perm := []int{1, 2, 0}
	return &hypergraph.Hypergraph{
		Tables:    []string{"customers", "orders"},
		EdgeTypes: []string{edgeTag},
		Nodes: []hypergraph.RowNode{
			{Table: 1, Key: source.Int(11), Depth: 1},
			{Table: 0, Key: source.Int(1)},
			{Table: 1, Key: source.Int(10), Depth: 1},
		},
		Edges: []hypergraph.FKEdge{
			{Src: 2, Dst: 1, Type: 0},
			{Src: 0, Dst: 1, Type: 0},
		},
		Hyper: []hypergraph.TableHyperNode{
			{Table: 0, Members: []int{1}},
			{Table: 1, Members: []int{0, 2}},
		},
	}, perm
}

func testInput(n int) *mat.Dense {
	x := mat.NewDense(n, testDim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < testDim; j++ {
			x.Set(i, j, float64(i+1)*0.3+float64(j)*0.05)
		}
	}
	return x
}

func permuteRows(x *mat.Dense, perm []int) *mat.Dense {
	n, d := x.Dims()
	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		out.SetRow(perm[i], x.RawRowView(i))
	}
	return out
}

func TestForwardShapes(t *testing.T) {
	g := pairGraph()
	e := NewEngine(g.EdgeTypes, testDim, 2, PoolMean, rand.New(rand.NewSource(1)))

	rows, hyper := e.Forward(g, testInput(3))
	if r, c := rows.Dims(); r != 3 || c != testDim {
		t.Errorf("rows: got %dx%d, want 3x%d", r, c, testDim)
	}
	if r, c := hyper.Dims(); r != 2 || c != testDim {
		t.Errorf("hyper: got %dx%d, want 2x%d", r, c, testDim)
	}
}

func TestForwardDeterminism(t *testing.T) {
	g := pairGraph()
	a := NewEngine(g.EdgeTypes, testDim, 2, PoolMean, rand.New(rand.NewSource(42)))
	b := NewEngine(g.EdgeTypes, testDim, 2, PoolMean, rand.New(rand.NewSource(42)))

	_, ha := a.Forward(g, testInput(3))
	_, hb := b.Forward(g, testInput(3))
	if !mat.Equal(ha, hb) {
		t.Error("same seed should give identical hypernode embeddings")
	}
}

func TestPooledEmbeddingPermutationInvariant(t *testing.T) {
	pools := map[string]Pool{
		"sum":       PoolSum,
		"mean":      PoolMean,
		"max":       PoolMax,
		"attention": PoolAttention,
	}
	for name, pool := range pools {
		t.Run(name, func(t *testing.T) {
			g1 := pairGraph()
			g2, perm := permutedPairGraph()
			e := NewEngine(g1.EdgeTypes, testDim, 2, pool, rand.New(rand.NewSource(7)))

			x := testInput(3)
			_, h1 := e.Forward(g1, x)
			_, h2 := e.Forward(g2, permuteRows(x, perm))

			// Hypernodes are listed in table order in both graphs.
			r, c := h1.Dims()
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					if math.Abs(h1.At(i, j)-h2.At(i, j)) > 1e-9 {
						t.Fatalf("hypernode %d dim %d: %g vs %g under permutation",
							i, j, h1.At(i, j), h2.At(i, j))
					}
				}
			}
		})
	}
}

func TestForwardSkipsUnknownEdgeType(t *testing.T) {
	g := pairGraph()
	g.EdgeTypes = []string{"payments.order_id->orders.id"} // not in the engine
	e := NewEngine([]string{edgeTag}, testDim, 1, PoolMean, rand.New(rand.NewSource(3)))

	edgeless := pairGraph()
	edgeless.EdgeTypes = g.EdgeTypes
	edgeless.Edges = nil

	_, h1 := e.Forward(g, testInput(3))
	_, h2 := e.Forward(edgeless, testInput(3))
	if !mat.Equal(h1, h2) {
		t.Error("edges of an unknown type should contribute nothing")
	}
}

func TestForwardEmptyGraph(t *testing.T) {
	g := &hypergraph.Hypergraph{Tables: []string{"t"}}
	e := NewEngine(nil, testDim, 1, PoolMean, rand.New(rand.NewSource(1)))

	rows, hyper := e.Forward(g, mat.NewDense(1, testDim, nil))
	if r, _ := rows.Dims(); r != 1 {
		t.Errorf("rows: got %d, want 1", r)
	}
	if r, _ := hyper.Dims(); r != 1 {
		t.Errorf("hyper placeholder: got %d rows, want 1", r)
	}
}

func TestPoolFromName(t *testing.T) {
	cases := map[string]Pool{
		"sum":       PoolSum,
		"mean":      PoolMean,
		"max":       PoolMax,
		"attention": PoolAttention,
		"bogus":     PoolMean,
	}
	for name, want := range cases {
		if got := PoolFromName(name); got != want {
			t.Errorf("%s: got %d, want %d", name, got, want)
		}
	}
}
