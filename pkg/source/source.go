// Package source defines the capability a relational data source must expose
// for schema inference and hypergraph construction, plus a SQLite-backed
// implementation. Connectivity details beyond this interface (credentials,
// pooling, query planning) belong to the caller.
package source

import "context"

// TableInfo describes one table as reported by the source.
type TableInfo struct {
	Name string
}

// ColumnInfo describes one column as declared by the source.
type ColumnInfo struct {
	Name     string
	Declared string // declared storage type, as reported (e.g. "INTEGER", "VARCHAR(40)")
	NotNull  bool
	PK       bool
}

// FKInfo describes one declared foreign-key constraint column.
type FKInfo struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Row is one fetched row: the primary-key value plus all column values in
// ListColumns order. Key is NULL when the table has no usable primary key.
type Row struct {
	Key    Value
	Values []Value
}

// Source is the abstract relational input of the pipeline.
type Source interface {
	ListTables(ctx context.Context) ([]TableInfo, error)
	ListColumns(ctx context.Context, table string) ([]ColumnInfo, error)
	ListForeignKeys(ctx context.Context, table string) ([]FKInfo, error)
	// FetchRows returns rows of the table. A nil keys slice fetches all rows;
	// otherwise only rows whose primary key is in keys are returned.
	FetchRows(ctx context.Context, table string, keys []Value) ([]Row, error)
}

// Sampler is an optional capability for bounded row sampling during
// schema inference.
type Sampler interface {
	SampleRows(ctx context.Context, table string, limit int) ([]Row, error)
}

// SampleRows fetches up to limit rows, using the Sampler capability when the
// source provides one and truncating a full fetch otherwise.
func SampleRows(ctx context.Context, src Source, table string, limit int) ([]Row, error) {
	if s, ok := src.(Sampler); ok {
		return s.SampleRows(ctx, table, limit)
	}
	rows, err := src.FetchRows(ctx, table, nil)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
