// Package tensorize turns per-column embeddings into one feature vector per
// row. Each table gets a column mixer: self-attention across the row's
// columns followed by a feed-forward block, so column interactions are
// captured before any graph propagation.
package tensorize

import (
	"math"
	"math/rand"

	"github.com/arkadix/relgraph/pkg/encode"
	"github.com/arkadix/relgraph/pkg/schema"
	"github.com/arkadix/relgraph/pkg/source"
	"gonum.org/v1/gonum/mat"
)

// Tensorizer mixes one table's column embeddings into a row vector of the
// configured model width. It is a pure function of (row, parameters).
type Tensorizer struct {
	dim int

	wq, wk, wv *mat.Dense // dim × dim attention projections
	w1, w2     *mat.Dense // dim × dim feed-forward
	b1, b2     []float64
	wo         *mat.Dense // dim × dim output projection
	bo         []float64
}

func newTensorizer(dim int, rng *rand.Rand) *Tensorizer {
	return &Tensorizer{
		dim: dim,
		wq:  randMat(dim, dim, rng),
		wk:  randMat(dim, dim, rng),
		wv:  randMat(dim, dim, rng),
		w1:  randMat(dim, dim, rng),
		w2:  randMat(dim, dim, rng),
		b1:  randVec(dim, rng),
		b2:  randVec(dim, rng),
		wo:  randMat(dim, dim, rng),
		bo:  randVec(dim, rng),
	}
}

// Dim returns the output width, identical for every table.
func (t *Tensorizer) Dim() int { return t.dim }

// Row encodes and mixes one row into a vector of length Dim.
func (t *Tensorizer) Row(te *encode.TableEncoders, row source.Row) []float64 {
	x := te.EncodeRow(row, t.dim)
	return t.mix(x)
}

func (t *Tensorizer) mix(x *mat.Dense) []float64 {
	c, _ := x.Dims()

	// Scaled dot-product self-attention over columns, with residual.
	var q, k, v mat.Dense
	q.Mul(x, t.wq)
	k.Mul(x, t.wk)
	v.Mul(x, t.wv)

	var scores mat.Dense
	scores.Mul(&q, k.T())
	scores.Scale(1/math.Sqrt(float64(t.dim)), &scores)
	softmaxRows(&scores)

	var mixed mat.Dense
	mixed.Mul(&scores, &v)
	mixed.Add(&mixed, x)

	// Position-wise feed-forward, with residual.
	var h mat.Dense
	h.Mul(&mixed, t.w1)
	addRowVec(&h, t.b1)
	reluInPlace(&h)
	var ff mat.Dense
	ff.Mul(&h, t.w2)
	addRowVec(&ff, t.b2)
	ff.Add(&ff, &mixed)

	// Mean-pool columns, then project. Pooling keeps the output width
	// independent of the table's column count.
	pooled := make([]float64, t.dim)
	for i := 0; i < c; i++ {
		row := ff.RawRowView(i)
		for j := range pooled {
			pooled[j] += row[j]
		}
	}
	inv := 1.0 / float64(c)
	for j := range pooled {
		pooled[j] *= inv
	}

	out := make([]float64, t.dim)
	copy(out, t.bo)
	for i := 0; i < t.dim; i++ {
		w := t.wo.RawRowView(i)
		for j := range out {
			out[j] += pooled[i] * w[j]
		}
	}
	return out
}

// Tensorizers holds one mixer per table.
type Tensorizers struct {
	byTable map[string]*Tensorizer
}

// NewTensorizers builds a mixer for every table in the schema, in table
// order so that parameter initialization is reproducible.
func NewTensorizers(s *schema.Schema, dim int, rng *rand.Rand) *Tensorizers {
	ts := &Tensorizers{byTable: make(map[string]*Tensorizer, len(s.Tables))}
	for _, t := range s.Tables {
		ts.byTable[t.Name] = newTensorizer(dim, rng)
	}
	return ts
}

// Table returns the mixer for one table, or nil.
func (ts *Tensorizers) Table(name string) *Tensorizer {
	return ts.byTable[name]
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

func addRowVec(m *mat.Dense, v []float64) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := range v {
			row[j] += v[j]
		}
	}
}

func reluInPlace(m *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := 0; j < c; j++ {
			if row[j] < 0 {
				row[j] = 0
			}
		}
	}
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
