package encode

import (
	"context"
	"math/rand"
	"testing"

	"github.com/arkadix/relgraph/pkg/config"
	"github.com/arkadix/relgraph/pkg/schema"
	"github.com/arkadix/relgraph/pkg/source"
)

const testDim = 8

func sameVec(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCategoricalRoundTrip(t *testing.T) {
	values := []source.Value{
		source.Text("red"), source.Text("red"), source.Text("red"),
		source.Text("blue"), source.Text("blue"),
		source.Text("green"),
	}
	enc := newCategorical(values, 1, testDim, rand.New(rand.NewSource(1)))

	for _, v := range values {
		idx := enc.Lookup(v)
		if idx == SentinelIndex {
			t.Fatalf("in-vocabulary value %v mapped to sentinel", v)
		}
		got, ok := enc.Decode(idx)
		if !ok {
			t.Fatalf("Decode(%d) not ok", idx)
		}
		if got.Key() != v.Key() {
			t.Errorf("round trip: got %v, want %v", got, v)
		}
	}
}

func TestCategoricalRankByFrequency(t *testing.T) {
	values := []source.Value{
		source.Text("rare"),
		source.Text("common"), source.Text("common"), source.Text("common"),
	}
	enc := newCategorical(values, 1, testDim, rand.New(rand.NewSource(1)))
	if got := enc.Lookup(source.Text("common")); got != 1 {
		t.Errorf("most frequent value: got rank %d, want 1", got)
	}
	if got := enc.Lookup(source.Text("rare")); got != 2 {
		t.Errorf("least frequent value: got rank %d, want 2", got)
	}
}

func TestCategoricalUnseenMapsToSentinel(t *testing.T) {
	values := []source.Value{source.Text("red"), source.Text("blue")}
	enc := newCategorical(values, 1, testDim, rand.New(rand.NewSource(1)))

	if got := enc.Lookup(source.Text("purple")); got != SentinelIndex {
		t.Errorf("unseen value: got index %d, want sentinel %d", got, SentinelIndex)
	}
	if got := enc.Lookup(source.Null()); got != SentinelIndex {
		t.Errorf("null value: got index %d, want sentinel %d", got, SentinelIndex)
	}
	if !sameVec(enc.Encode(source.Text("purple")), enc.Encode(source.Null())) {
		t.Error("unseen and null values should share the sentinel embedding")
	}
	if _, ok := enc.Decode(SentinelIndex); ok {
		t.Error("sentinel index must not decode to a value")
	}
	if _, ok := enc.Decode(99); ok {
		t.Error("out-of-range index must not decode to a value")
	}
}

func TestCategoricalMinFreqFilter(t *testing.T) {
	values := []source.Value{
		source.Text("common"), source.Text("common"),
		source.Text("rare"),
	}
	enc := newCategorical(values, 2, testDim, rand.New(rand.NewSource(1)))
	if got := enc.Lookup(source.Text("rare")); got != SentinelIndex {
		t.Errorf("below-threshold value: got index %d, want sentinel", got)
	}
	if got := enc.Lookup(source.Text("common")); got == SentinelIndex {
		t.Error("above-threshold value mapped to sentinel")
	}
}

func TestCategoricalDeterminism(t *testing.T) {
	values := []source.Value{source.Text("a"), source.Text("b"), source.Text("b")}
	a := newCategorical(values, 1, testDim, rand.New(rand.NewSource(7)))
	b := newCategorical(values, 1, testDim, rand.New(rand.NewSource(7)))
	if !sameVec(a.Encode(source.Text("b")), b.Encode(source.Text("b"))) {
		t.Error("same seed and sample should give identical embeddings")
	}
}

func TestNumericEncode(t *testing.T) {
	values := []source.Value{source.Float(1), source.Float(2), source.Float(3)}
	enc := newNumeric(values, testDim, rand.New(rand.NewSource(1)))

	if enc.Dim() != testDim {
		t.Fatalf("dim: got %d, want %d", enc.Dim(), testDim)
	}
	lo := enc.Encode(source.Float(1))
	hi := enc.Encode(source.Float(3))
	if sameVec(lo, hi) {
		t.Error("distinct scalars should encode differently")
	}
	if !sameVec(enc.Encode(source.Float(2)), enc.Encode(source.Text(" 2.0 "))) {
		t.Error("numeric text should encode like its parsed value")
	}
	if !sameVec(enc.Encode(source.Null()), enc.missing) {
		t.Error("null should encode to the missing vector")
	}
	if !sameVec(enc.Encode(source.Text("not a number")), enc.missing) {
		t.Error("unparseable text should encode to the missing vector")
	}
}

func TestNumericConstantColumn(t *testing.T) {
	values := []source.Value{source.Int(5), source.Int(5), source.Int(5)}
	enc := newNumeric(values, testDim, rand.New(rand.NewSource(1)))
	out := enc.Encode(source.Int(5))
	for _, x := range out {
		if x != x { // NaN check
			t.Fatal("constant column produced NaN")
		}
	}
}

func TestTextEncode(t *testing.T) {
	enc := newText(16, testDim, rand.New(rand.NewSource(1)))

	a := enc.Encode(source.Text("Hello, World"))
	b := enc.Encode(source.Text("hello world"))
	if !sameVec(a, b) {
		t.Error("tokenization should be case and punctuation insensitive")
	}
	if !sameVec(enc.Encode(source.Null()), enc.Encode(source.Text("  ,,  "))) {
		t.Error("null and token-free text should share the missing vector")
	}
	if len(a) != testDim {
		t.Errorf("dim: got %d, want %d", len(a), testDim)
	}
}

func TestDatetimeEncode(t *testing.T) {
	enc := newDatetime(testDim, rand.New(rand.NewSource(1)))

	a := enc.Encode(source.Text("2023-06-15"))
	b := enc.Encode(source.Text("2023-06-15"))
	if !sameVec(a, b) {
		t.Error("same date should encode identically")
	}
	c := enc.Encode(source.Text("1999-12-31"))
	if sameVec(a, c) {
		t.Error("different dates should encode differently")
	}
	if !sameVec(enc.Encode(source.Null()), enc.missing) {
		t.Error("null should encode to the missing vector")
	}
}

func bankFixture(t *testing.T) (*schema.Schema, map[string][]source.Row) {
	t.Helper()
	db, err := source.Open(t.TempDir() + "/bank.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	stmts := []string{
		`CREATE TABLE items (id INTEGER PRIMARY KEY, price REAL, color TEXT)`,
		`INSERT INTO items VALUES
			(1, 10.0, 'red'), (2, 20.0, 'red'), (3, 30.0, 'blue'),
			(4, 12.5, 'red'), (5, 8.0, 'blue'), (6, 40.0, 'red')`,
	}
	for _, s := range stmts {
		if err := db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.SchemaConfig{SampleRows: 100, CategoricalRatio: 0.5, CategoricalMaxDistinct: 4}
	sch, err := schema.NewInferrer(cfg).Infer(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := source.SampleRows(context.Background(), db, "items", 100)
	if err != nil {
		t.Fatal(err)
	}
	return sch, map[string][]source.Row{"items": rows}
}

func TestBankSkipsKeyColumns(t *testing.T) {
	sch, samples := bankFixture(t)
	bank := NewBank(sch, samples, config.EncoderConfig{TextBuckets: 64, VocabMinFreq: 1}, testDim, rand.New(rand.NewSource(1)))

	te := bank.Table("items")
	if te == nil {
		t.Fatal("no encoders for items")
	}
	for _, ce := range te.Columns {
		if ce.Column.Name == "id" {
			t.Error("key column id should have no encoder")
		}
	}
	if len(te.Columns) != 2 {
		t.Fatalf("got %d encoders, want 2 (price, color)", len(te.Columns))
	}
}

func TestEncodeRowShape(t *testing.T) {
	sch, samples := bankFixture(t)
	bank := NewBank(sch, samples, config.EncoderConfig{TextBuckets: 64, VocabMinFreq: 1}, testDim, rand.New(rand.NewSource(1)))

	te := bank.Table("items")
	m := te.EncodeRow(samples["items"][0], testDim)
	r, c := m.Dims()
	if r != 2 || c != testDim {
		t.Errorf("encoded row: got %dx%d, want 2x%d", r, c, testDim)
	}

	te.Exclude("color")
	m = te.EncodeRow(samples["items"][0], testDim)
	if r, _ := m.Dims(); r != 1 {
		t.Errorf("after exclude: got %d feature rows, want 1", r)
	}

	te.Exclude("price")
	m = te.EncodeRow(samples["items"][0], testDim)
	if r, _ := m.Dims(); r != 1 {
		t.Errorf("feature-free table: got %d rows, want placeholder 1", r)
	}
}
