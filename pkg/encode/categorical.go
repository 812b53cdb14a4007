package encode

import (
	"math/rand"
	"sort"

	"github.com/arkadix/relgraph/pkg/source"
	"gonum.org/v1/gonum/mat"
)

// SentinelIndex is the embedding row reserved for missing and
// out-of-vocabulary values.
const SentinelIndex = 0

// categoricalEncoder embeds values by vocabulary rank. Rank order is
// descending sample frequency with a lexical tie-break, so the vocabulary is
// reproducible for a given sample.
type categoricalEncoder struct {
	index  map[string]int // value key -> embedding row (1-based; 0 is the sentinel)
	values []source.Value // rank-1 .. rank-N originals, for Decode
	table  *mat.Dense     // (vocab+1) × dim
}

func newCategorical(values []source.Value, minFreq, dim int, rng *rand.Rand) *categoricalEncoder {
	freq := make(map[string]int)
	byKey := make(map[string]source.Value)
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		k := v.Key()
		freq[k]++
		byKey[k] = v
	}

	keys := make([]string, 0, len(freq))
	for k, n := range freq {
		if n >= minFreq {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return keys[i] < keys[j]
	})

	e := &categoricalEncoder{
		index:  make(map[string]int, len(keys)),
		values: make([]source.Value, len(keys)),
		table:  randMat(len(keys)+1, dim, rng),
	}
	for i, k := range keys {
		e.index[k] = i + 1
		e.values[i] = byKey[k]
	}
	return e
}

func (e *categoricalEncoder) Dim() int { return e.table.RawMatrix().Cols }

func (e *categoricalEncoder) Encode(v source.Value) []float64 {
	row := SentinelIndex
	if !v.IsNull() {
		if i, ok := e.index[v.Key()]; ok {
			row = i
		}
	}
	_, dim := e.table.Dims()
	out := make([]float64, dim)
	copy(out, e.table.RawRowView(row))
	return out
}

// Lookup returns the embedding row index for a value: its vocabulary rank,
// or SentinelIndex for NULL and out-of-vocabulary inputs.
func (e *categoricalEncoder) Lookup(v source.Value) int {
	if v.IsNull() {
		return SentinelIndex
	}
	if i, ok := e.index[v.Key()]; ok {
		return i
	}
	return SentinelIndex
}

// Decode maps an embedding row index back to the original value. The
// sentinel and out-of-range indices report ok=false.
func (e *categoricalEncoder) Decode(index int) (source.Value, bool) {
	if index <= SentinelIndex || index > len(e.values) {
		return source.Null(), false
	}
	return e.values[index-1], true
}

// CategoricalOps exposes the vocabulary operations of a categorical encoder.
type CategoricalOps interface {
	Lookup(v source.Value) int
	Decode(index int) (source.Value, bool)
}

// AsCategorical returns the vocabulary interface of enc when it is a
// categorical encoder.
func AsCategorical(enc Encoder) (CategoricalOps, bool) {
	c, ok := enc.(*categoricalEncoder)
	return c, ok
}
