// Package schema holds the inferred descriptor of a relational database:
// tables, columns, keys, and the semantic type assigned to every column.
// A Schema is an immutable snapshot; re-running inference produces a new one.
package schema

import "fmt"

// SemanticType is the inferred role of a column's values. It is a closed set:
// the encoder bank and the hypergraph builder dispatch on it exhaustively.
type SemanticType int

const (
	Unknown SemanticType = iota
	Numeric
	Categorical
	Text
	Datetime
	Key
)

func (t SemanticType) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Text:
		return "text"
	case Datetime:
		return "datetime"
	case Key:
		return "key"
	default:
		return "unknown"
	}
}

// ForeignKey is one foreign-key constraint between two tables. Its Tag
// identifies the constraint and types every edge the builder materializes
// from it.
type ForeignKey struct {
	Table     string
	Column    string
	RefTable  string
	RefColumn string
}

// Tag returns the constraint identity, e.g. "orders.customer_id->customers.id".
func (fk ForeignKey) Tag() string {
	return fmt.Sprintf("%s.%s->%s.%s", fk.Table, fk.Column, fk.RefTable, fk.RefColumn)
}

// Column is one column with its inference results.
type Column struct {
	Name     string
	Table    string
	Declared string // declared storage type as reported by the source
	Semantic SemanticType

	// Sample statistics gathered during inference.
	Sampled  int // rows sampled
	Nulls    int // NULLs among them
	Distinct int // distinct non-null values among them
}

// Table is one table of the snapshot.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  string // single-column primary key; "" when none is usable
	PKIndex     int    // index into Columns; -1 when PrimaryKey is ""
	ForeignKeys []ForeignKey

	colIndex map[string]int
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.colIndex[name]; ok {
		return i
	}
	return -1
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil
	}
	return &t.Columns[i]
}

// FeatureColumns returns the columns that participate in tensorization:
// everything except Key and Unknown columns.
func (t *Table) FeatureColumns() []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.Semantic != Key && c.Semantic != Unknown {
			out = append(out, c)
		}
	}
	return out
}

// ViolationKind classifies a recorded schema problem.
type ViolationKind int

const (
	ViolationAmbiguousType ViolationKind = iota
	ViolationNonUniquePK
	ViolationDanglingFK
	ViolationNoPrimaryKey
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationAmbiguousType:
		return "ambiguous_type"
	case ViolationNonUniquePK:
		return "non_unique_pk"
	case ViolationDanglingFK:
		return "dangling_fk"
	default:
		return "no_primary_key"
	}
}

// Violation is one recorded, non-fatal schema problem. Count aggregates
// repeated offenders so violations surface once, not per row.
type Violation struct {
	Kind   ViolationKind
	Table  string
	Column string
	Count  int
	Detail string
}

// Schema is the immutable inference result for one database snapshot.
type Schema struct {
	Tables     []Table
	Violations []Violation

	tableIndex map[string]int
}

// Table returns the named table, or nil.
func (s *Schema) Table(name string) *Table {
	if i, ok := s.tableIndex[name]; ok {
		return &s.Tables[i]
	}
	return nil
}

// ForeignKeys returns every foreign-key constraint in the snapshot, in table
// declaration order.
func (s *Schema) ForeignKeys() []ForeignKey {
	var out []ForeignKey
	for _, t := range s.Tables {
		out = append(out, t.ForeignKeys...)
	}
	return out
}

func newSchema(tables []Table, violations []Violation) *Schema {
	idx := make(map[string]int, len(tables))
	for i := range tables {
		tables[i].colIndex = make(map[string]int, len(tables[i].Columns))
		for j, c := range tables[i].Columns {
			tables[i].colIndex[c.Name] = j
		}
		idx[tables[i].Name] = i
	}
	return &Schema{Tables: tables, Violations: violations, tableIndex: idx}
}
