package encode

import (
	"hash/fnv"
	"math/rand"
	"strings"
	"unicode"

	"github.com/arkadix/relgraph/pkg/source"
	"gonum.org/v1/gonum/mat"
)

// textEncoder hashes lowercase tokens into a fixed set of buckets and
// mean-pools the bucket embeddings.
type textEncoder struct {
	buckets *mat.Dense // buckets × dim
	missing []float64
}

func newText(buckets, dim int, rng *rand.Rand) *textEncoder {
	return &textEncoder{
		buckets: randMat(buckets, dim, rng),
		missing: randVec(dim, rng),
	}
}

func (e *textEncoder) Dim() int { return e.buckets.RawMatrix().Cols }

func (e *textEncoder) Encode(v source.Value) []float64 {
	n, dim := e.buckets.Dims()
	if v.IsNull() {
		out := make([]float64, dim)
		copy(out, e.missing)
		return out
	}
	tokens := tokenize(v.String())
	if len(tokens) == 0 {
		out := make([]float64, dim)
		copy(out, e.missing)
		return out
	}
	out := make([]float64, dim)
	for _, tok := range tokens {
		row := e.buckets.RawRowView(bucketOf(tok, n))
		for i := range out {
			out[i] += row[i]
		}
	}
	inv := 1.0 / float64(len(tokens))
	for i := range out {
		out[i] *= inv
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func bucketOf(token string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(token))
	return int(h.Sum32() % uint32(n))
}
