package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// DB is a Source backed by a SQLite database file.
type DB struct {
	db *sql.DB

	mu      sync.Mutex
	columns map[string][]ColumnInfo // cached ListColumns results
}

// Open opens a SQLite database at path (":memory:" works for tests).
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	// One connection: keeps :memory: databases coherent and serializes writes.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("source: ping %s: %w", path, err)
	}
	return &DB{db: db, columns: make(map[string][]ColumnInfo)}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// Exec runs a statement directly; used by tests to load fixtures.
func (d *DB) Exec(query string, args ...any) error {
	_, err := d.db.Exec(query, args...)
	return err
}

func (d *DB) ListTables(ctx context.Context) ([]TableInfo, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("source: list tables: %w", err)
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("source: scan table name: %w", err)
		}
		tables = append(tables, TableInfo{Name: name})
	}
	return tables, rows.Err()
}

func (d *DB) ListColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	d.mu.Lock()
	cached, ok := d.columns[table]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("source: table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid     int
			name    string
			decl    string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &decl, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("source: scan column of %s: %w", table, err)
		}
		cols = append(cols, ColumnInfo{
			Name:     name,
			Declared: decl,
			NotNull:  notnull != 0,
			PK:       pk != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("source: unknown table %q", table)
	}

	d.mu.Lock()
	d.columns[table] = cols
	d.mu.Unlock()
	return cols, nil
}

func (d *DB) ListForeignKeys(ctx context.Context, table string) ([]FKInfo, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("source: foreign_key_list %s: %w", table, err)
	}
	defer rows.Close()

	var fks []FKInfo
	for rows.Next() {
		var (
			id, seq               int
			refTable, from        string
			to                    sql.NullString
			onUpdate, onDelete, m string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &m); err != nil {
			return nil, fmt.Errorf("source: scan fk of %s: %w", table, err)
		}
		fk := FKInfo{Column: from, RefTable: refTable, RefColumn: to.String}
		if fk.RefColumn == "" {
			// SQLite omits the target column when it is the referenced table's PK.
			if ref, err := d.ListColumns(ctx, refTable); err == nil {
				for _, c := range ref {
					if c.PK {
						fk.RefColumn = c.Name
						break
					}
				}
			}
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (d *DB) FetchRows(ctx context.Context, table string, keys []Value) ([]Row, error) {
	cols, err := d.ListColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	pkCol, pkIdx := primaryKey(cols)

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), quoteIdent(table))

	var args []any
	if keys != nil {
		if pkCol == "" {
			return nil, fmt.Errorf("source: table %q has no single-column primary key to filter on", table)
		}
		if len(keys) == 0 {
			return nil, nil
		}
		ph := make([]string, len(keys))
		for i, k := range keys {
			ph[i] = "?"
			args = append(args, valueArg(k))
		}
		query += fmt.Sprintf(" WHERE %s IN (%s)", quoteIdent(pkCol), strings.Join(ph, ","))
	}
	if pkCol != "" {
		query += " ORDER BY " + quoteIdent(pkCol)
	}

	return d.scanRows(ctx, query, args, len(cols), pkIdx)
}

// SampleRows implements the Sampler capability with a LIMIT clause.
func (d *DB) SampleRows(ctx context.Context, table string, limit int) ([]Row, error) {
	cols, err := d.ListColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	pkCol, pkIdx := primaryKey(cols)

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), quoteIdent(table))
	if pkCol != "" {
		query += " ORDER BY " + quoteIdent(pkCol)
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	return d.scanRows(ctx, query, nil, len(cols), pkIdx)
}

func (d *DB) scanRows(ctx context.Context, query string, args []any, ncols, pkIdx int) ([]Row, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("source: fetch: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		raw := make([]any, ncols)
		ptrs := make([]any, ncols)
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("source: scan row: %w", err)
		}
		r := Row{Values: make([]Value, ncols)}
		for i, x := range raw {
			r.Values[i] = FromAny(x)
		}
		if pkIdx >= 0 {
			r.Key = r.Values[pkIdx]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// primaryKey returns the single-column primary key, or "" / -1 when the table
// has none or a composite one.
func primaryKey(cols []ColumnInfo) (string, int) {
	name, idx, n := "", -1, 0
	for i, c := range cols {
		if c.PK {
			n++
			name, idx = c.Name, i
		}
	}
	if n != 1 {
		return "", -1
	}
	return name, idx
}

func valueArg(v Value) any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindText:
		return v.Text
	case KindTime:
		return v.Time
	case KindBlob:
		return v.Blob
	default:
		return nil
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
