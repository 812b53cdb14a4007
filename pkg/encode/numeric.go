package encode

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/arkadix/relgraph/pkg/source"
	"gonum.org/v1/gonum/stat"
)

// numericEncoder z-scores a scalar against statistics fixed at fit time,
// then projects it: out = w*z + b.
type numericEncoder struct {
	mean, std float64
	w, b      []float64
	missing   []float64
}

func newNumeric(values []source.Value, dim int, rng *rand.Rand) *numericEncoder {
	var xs []float64
	for _, v := range values {
		if f, ok := asFloat(v); ok {
			xs = append(xs, f)
		}
	}
	mean, std := 0.0, 1.0
	if len(xs) > 0 {
		mean, std = stat.MeanStdDev(xs, nil)
	}
	if std == 0 || len(xs) < 2 {
		std = 1
	}
	return &numericEncoder{
		mean:    mean,
		std:     std,
		w:       randVec(dim, rng),
		b:       randVec(dim, rng),
		missing: randVec(dim, rng),
	}
}

func (e *numericEncoder) Dim() int { return len(e.w) }

func (e *numericEncoder) Encode(v source.Value) []float64 {
	f, ok := asFloat(v)
	if !ok {
		out := make([]float64, len(e.missing))
		copy(out, e.missing)
		return out
	}
	z := (f - e.mean) / e.std
	out := make([]float64, len(e.w))
	for i := range out {
		out[i] = e.w[i]*z + e.b[i]
	}
	return out
}

func asFloat(v source.Value) (float64, bool) {
	switch v.Kind {
	case source.KindInt:
		return float64(v.Int), true
	case source.KindFloat:
		return v.Float, true
	case source.KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
