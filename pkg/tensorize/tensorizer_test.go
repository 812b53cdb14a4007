package tensorize

import (
	"math/rand"
	"testing"

	"github.com/arkadix/relgraph/pkg/encode"
	"github.com/arkadix/relgraph/pkg/schema"
	"github.com/arkadix/relgraph/pkg/source"
)

const testDim = 8

// constEncoder emits a fixed base vector shifted by the value, enough to
// exercise the mixer without fitting real encoders.
type constEncoder struct {
	base float64
}

func (e constEncoder) Dim() int { return testDim }

func (e constEncoder) Encode(v source.Value) []float64 {
	out := make([]float64, testDim)
	shift := 0.0
	if v.Kind == source.KindFloat {
		shift = v.Float
	}
	for i := range out {
		out[i] = e.base + shift + float64(i)*0.1
	}
	return out
}

func stubEncoders(table string, ncols int) *encode.TableEncoders {
	te := &encode.TableEncoders{Table: table}
	for i := 0; i < ncols; i++ {
		te.Columns = append(te.Columns, encode.ColumnEncoder{
			Index: i,
			Enc:   constEncoder{base: float64(i)},
		})
	}
	return te
}

func stubRow(vals ...float64) source.Row {
	r := source.Row{}
	for _, v := range vals {
		r.Values = append(r.Values, source.Float(v))
	}
	return r
}

func TestRowWidthIndependentOfColumnCount(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	narrow := newTensorizer(testDim, rng)
	wide := newTensorizer(testDim, rng)

	a := narrow.Row(stubEncoders("narrow", 2), stubRow(1, 2))
	b := wide.Row(stubEncoders("wide", 5), stubRow(1, 2, 3, 4, 5))
	if len(a) != testDim || len(b) != testDim {
		t.Errorf("row widths: got %d and %d, want %d for both", len(a), len(b), testDim)
	}
}

func TestRowDeterminism(t *testing.T) {
	a := newTensorizer(testDim, rand.New(rand.NewSource(3)))
	b := newTensorizer(testDim, rand.New(rand.NewSource(3)))

	te := stubEncoders("t", 3)
	row := stubRow(1, 2, 3)
	va, vb := a.Row(te, row), b.Row(te, row)
	for i := range va {
		if va[i] != vb[i] {
			t.Fatal("same seed should give identical row vectors")
		}
	}
}

func TestRowDistinguishesRows(t *testing.T) {
	tz := newTensorizer(testDim, rand.New(rand.NewSource(5)))
	te := stubEncoders("t", 3)

	a := tz.Row(te, stubRow(1, 2, 3))
	b := tz.Row(te, stubRow(4, 5, 6))
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
	}
	if same {
		t.Error("different rows should produce different vectors")
	}
}

func TestNewTensorizersCoversAllTables(t *testing.T) {
	s := &schema.Schema{Tables: []schema.Table{{Name: "alpha"}, {Name: "beta"}}}
	ts := NewTensorizers(s, testDim, rand.New(rand.NewSource(1)))

	for _, name := range []string{"alpha", "beta"} {
		tz := ts.Table(name)
		if tz == nil {
			t.Fatalf("no tensorizer for %s", name)
		}
		if tz.Dim() != testDim {
			t.Errorf("%s: dim %d, want %d", name, tz.Dim(), testDim)
		}
	}
	if ts.Table("gamma") != nil {
		t.Error("unknown table should have no tensorizer")
	}
}

func TestRowHandlesFeatureFreeTable(t *testing.T) {
	tz := newTensorizer(testDim, rand.New(rand.NewSource(1)))
	te := &encode.TableEncoders{Table: "empty"}
	out := tz.Row(te, source.Row{})
	if len(out) != testDim {
		t.Fatalf("feature-free table: got width %d, want %d", len(out), testDim)
	}
	for _, x := range out {
		if x != x {
			t.Fatal("feature-free table produced NaN")
		}
	}
}
