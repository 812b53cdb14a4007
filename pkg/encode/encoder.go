// Package encode maps raw column values to fixed-width latent vectors, one
// encoder per semantic type. Encoders are deterministic given their
// parameters; missing values route to a learned sentinel embedding instead
// of failing, and unseen categories route to a reserved out-of-vocabulary
// slot.
package encode

import (
	"math"
	"math/rand"

	"github.com/arkadix/relgraph/pkg/config"
	"github.com/arkadix/relgraph/pkg/schema"
	"github.com/arkadix/relgraph/pkg/source"
	"gonum.org/v1/gonum/mat"
)

// Encoder turns one column value into a vector of length Dim.
type Encoder interface {
	Encode(v source.Value) []float64
	Dim() int
}

// ColumnEncoder binds an encoder to its column and the column's position in
// fetched rows.
type ColumnEncoder struct {
	Column schema.Column
	Index  int // position in source.Row.Values
	Enc    Encoder
}

// TableEncoders holds the encoders for one table's feature columns, in
// column order.
type TableEncoders struct {
	Table   string
	Columns []ColumnEncoder
}

// Exclude removes the named column's encoder, e.g. to keep a prediction
// target out of its own table's features.
func (te *TableEncoders) Exclude(name string) {
	for i, ce := range te.Columns {
		if ce.Column.Name == name {
			te.Columns = append(te.Columns[:i], te.Columns[i+1:]...)
			return
		}
	}
}

// EncodeRow stacks the per-column encodings of one row into a C×D matrix.
func (te *TableEncoders) EncodeRow(row source.Row, dim int) *mat.Dense {
	if len(te.Columns) == 0 {
		// Tables with no feature columns still need a defined input shape.
		return mat.NewDense(1, dim, nil)
	}
	out := mat.NewDense(len(te.Columns), dim, nil)
	for i, ce := range te.Columns {
		out.SetRow(i, ce.Enc.Encode(row.Values[ce.Index]))
	}
	return out
}

// Bank is the full set of per-table, per-column encoders for one schema
// snapshot.
type Bank struct {
	Dim    int
	tables map[string]*TableEncoders
}

// NewBank fits one encoder per feature column from the given training
// samples. Key and Unknown columns get no encoder: keys are structural and
// unknowns are excluded from tensorization.
func NewBank(s *schema.Schema, samples map[string][]source.Row, cfg config.EncoderConfig, dim int, rng *rand.Rand) *Bank {
	b := &Bank{Dim: dim, tables: make(map[string]*TableEncoders, len(s.Tables))}
	for ti := range s.Tables {
		t := &s.Tables[ti]
		te := &TableEncoders{Table: t.Name}
		rows := samples[t.Name]
		for j := range t.Columns {
			c := t.Columns[j]
			var enc Encoder
			switch c.Semantic {
			case schema.Numeric:
				enc = newNumeric(columnValues(rows, j), dim, rng)
			case schema.Categorical:
				enc = newCategorical(columnValues(rows, j), cfg.VocabMinFreq, dim, rng)
			case schema.Text:
				enc = newText(cfg.TextBuckets, dim, rng)
			case schema.Datetime:
				enc = newDatetime(dim, rng)
			default:
				continue
			}
			te.Columns = append(te.Columns, ColumnEncoder{Column: c, Index: j, Enc: enc})
		}
		b.tables[t.Name] = te
	}
	return b
}

// Table returns the encoders for one table, or nil.
func (b *Bank) Table(name string) *TableEncoders {
	return b.tables[name]
}

func columnValues(rows []source.Row, j int) []source.Value {
	out := make([]source.Value, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Values[j])
	}
	return out
}

// randVec draws a vector with entries uniform in (-scale, scale).
func randVec(n int, rng *rand.Rand) []float64 {
	scale := 1.0 / math.Sqrt(float64(n))
	out := make([]float64, n)
	for i := range out {
		out[i] = (2*rng.Float64() - 1) * scale
	}
	return out
}

// randMat draws an r×c matrix with fan-in scaled uniform entries.
func randMat(r, c int, rng *rand.Rand) *mat.Dense {
	scale := 1.0 / math.Sqrt(float64(r))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * scale
	}
	return mat.NewDense(r, c, data)
}
