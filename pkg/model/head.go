package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// head is the task projection from the model width to the output width. It
// sees only a fixed-width embedding, so it applies unchanged to RowNode and
// TableHyperNode vectors.
type head struct {
	w *mat.Dense // dim × out
	b []float64
}

func newHead(dim, out int, rng *rand.Rand) *head {
	scale := 1.0 / math.Sqrt(float64(dim))
	data := make([]float64, dim*out)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * scale
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = (2*rng.Float64() - 1) * scale
	}
	return &head{w: mat.NewDense(dim, out, data), b: b}
}

func (h *head) apply(x []float64) []float64 {
	out := make([]float64, len(h.b))
	copy(out, h.b)
	for i := range x {
		row := h.w.RawRowView(i)
		for j := range out {
			out[j] += x[i] * row[j]
		}
	}
	return out
}

func softmax(x []float64) {
	max := math.Inf(-1)
	for _, v := range x {
		if v > max {
			max = v
		}
	}
	sum := 0.0
	for i := range x {
		x[i] = math.Exp(x[i] - max)
		sum += x[i]
	}
	for i := range x {
		x[i] /= sum
	}
}

func logf(x float64) float64 { return math.Log(x) }
