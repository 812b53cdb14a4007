package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arkadix/relgraph/pkg/config"
	"github.com/arkadix/relgraph/pkg/logger"
	"github.com/arkadix/relgraph/pkg/source"
)

// datetimeLayouts are the formats a text column must fully parse under to be
// labeled Datetime.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
	"15:04:05",
}

// Inferrer derives a Schema from a bounded sample of a relational source.
// Inference is best effort: a column it cannot classify is labeled Unknown
// and excluded from tensorization, never a failure.
type Inferrer struct {
	cfg config.SchemaConfig
}

func NewInferrer(cfg config.SchemaConfig) *Inferrer {
	return &Inferrer{cfg: cfg}
}

// Infer samples every table of src and produces an immutable Schema snapshot.
func (inf *Inferrer) Infer(ctx context.Context, src source.Source) (*Schema, error) {
	infos, err := src.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("schema: list tables: %w", err)
	}

	var (
		tables     []Table
		violations []Violation
		samples    = make(map[string][]source.Row)
		pkSets     = make(map[string]map[string]bool) // table -> set of pk keys
	)

	// First pass: columns, primary keys, per-column stats.
	for _, ti := range infos {
		cols, err := src.ListColumns(ctx, ti.Name)
		if err != nil {
			return nil, fmt.Errorf("schema: columns of %s: %w", ti.Name, err)
		}
		rows, err := source.SampleRows(ctx, src, ti.Name, inf.cfg.SampleRows)
		if err != nil {
			return nil, fmt.Errorf("schema: sample %s: %w", ti.Name, err)
		}
		samples[ti.Name] = rows

		t := Table{Name: ti.Name, PKIndex: -1}
		for _, ci := range cols {
			t.Columns = append(t.Columns, Column{
				Name:     ci.Name,
				Table:    ti.Name,
				Declared: ci.Declared,
			})
		}

		pkName, pkIdx := declaredPK(cols)
		if pkName == "" {
			pkName, pkIdx = candidatePK(cols, rows)
		}
		if pkName == "" {
			violations = append(violations, Violation{
				Kind:   ViolationNoPrimaryKey,
				Table:  ti.Name,
				Count:  1,
				Detail: "no unique non-null single-column key found",
			})
		} else {
			if dup := duplicateKeys(rows, pkIdx); dup > 0 {
				violations = append(violations, Violation{
					Kind:   ViolationNonUniquePK,
					Table:  ti.Name,
					Column: pkName,
					Count:  dup,
				})
			}
			t.PrimaryKey = pkName
			t.PKIndex = pkIdx
			set := make(map[string]bool, len(rows))
			for _, r := range rows {
				if !r.Values[pkIdx].IsNull() {
					set[r.Values[pkIdx].Key()] = true
				}
			}
			pkSets[ti.Name] = set
		}

		tables = append(tables, t)
	}

	// Second pass: foreign keys, checked against the referenced PK sets.
	keyCols := make(map[string]map[string]bool) // table -> structural columns
	mark := func(table, col string) {
		if keyCols[table] == nil {
			keyCols[table] = make(map[string]bool)
		}
		keyCols[table][col] = true
	}
	for i := range tables {
		t := &tables[i]
		if t.PrimaryKey != "" {
			mark(t.Name, t.PrimaryKey)
		}
		fks, err := src.ListForeignKeys(ctx, t.Name)
		if err != nil {
			return nil, fmt.Errorf("schema: foreign keys of %s: %w", t.Name, err)
		}
		for _, fi := range fks {
			fk := ForeignKey{Table: t.Name, Column: fi.Column, RefTable: fi.RefTable, RefColumn: fi.RefColumn}
			if dangling := countDangling(samples[t.Name], t, fk, pkSets[fk.RefTable]); dangling > 0 {
				violations = append(violations, Violation{
					Kind:   ViolationDanglingFK,
					Table:  t.Name,
					Column: fk.Column,
					Count:  dangling,
					Detail: "references missing " + fk.RefTable + "." + fk.RefColumn,
				})
			}
			t.ForeignKeys = append(t.ForeignKeys, fk)
			mark(t.Name, fk.Column)
			mark(fk.RefTable, fk.RefColumn)
		}
	}

	// Third pass: semantic types for the remaining columns.
	for i := range tables {
		t := &tables[i]
		rows := samples[t.Name]
		for j := range t.Columns {
			c := &t.Columns[j]
			fillStats(c, rows, j)
			if keyCols[t.Name][c.Name] {
				c.Semantic = Key
				continue
			}
			c.Semantic = inf.classify(c, rows, j)
			if c.Semantic == Unknown {
				violations = append(violations, Violation{
					Kind:   ViolationAmbiguousType,
					Table:  t.Name,
					Column: c.Name,
					Count:  1,
					Detail: "excluded from tensorization",
				})
			}
		}
	}

	s := newSchema(tables, violations)
	if len(violations) > 0 {
		logger.WarnCF("schema", "inference finished with violations", map[string]interface{}{
			"tables":     len(tables),
			"violations": len(violations),
		})
	}
	return s, nil
}

// classify assigns a semantic type from the sampled values of column j.
func (inf *Inferrer) classify(c *Column, rows []source.Row, j int) SemanticType {
	nonNull := c.Sampled - c.Nulls
	if nonNull == 0 {
		return Unknown
	}

	allTime, allNumeric, allText := true, true, true
	for _, r := range rows {
		v := r.Values[j]
		if v.IsNull() {
			continue
		}
		switch v.Kind {
		case source.KindTime:
			allNumeric = false
			allText = false
		case source.KindInt, source.KindFloat:
			allTime = false
			allText = false
		case source.KindText:
			if !parsesAsDatetime(v.Text) {
				allTime = false
			}
			if _, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64); err != nil {
				allNumeric = false
			}
		default:
			allTime, allNumeric, allText = false, false, false
		}
	}

	switch {
	case allTime:
		return Datetime
	case inf.lowCardinality(c.Distinct, nonNull):
		return Categorical
	case allNumeric:
		return Numeric
	case allText:
		return Text
	default:
		return Unknown
	}
}

func (inf *Inferrer) lowCardinality(distinct, nonNull int) bool {
	if distinct <= inf.cfg.CategoricalMaxDistinct {
		return true
	}
	return float64(distinct)/float64(nonNull) <= inf.cfg.CategoricalRatio
}

func parsesAsDatetime(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func fillStats(c *Column, rows []source.Row, j int) {
	distinct := make(map[string]bool)
	for _, r := range rows {
		c.Sampled++
		v := r.Values[j]
		if v.IsNull() {
			c.Nulls++
			continue
		}
		distinct[v.Key()] = true
	}
	c.Distinct = len(distinct)
}

func declaredPK(cols []source.ColumnInfo) (string, int) {
	name, idx, n := "", -1, 0
	for i, ci := range cols {
		if ci.PK {
			n++
			name, idx = ci.Name, i
		}
	}
	if n != 1 {
		// Composite keys cannot identify a RowNode; the table is treated as keyless.
		return "", -1
	}
	return name, idx
}

// candidatePK promotes the first column that is unique and non-null across
// the whole sample.
func candidatePK(cols []source.ColumnInfo, rows []source.Row) (string, int) {
	for i, ci := range cols {
		seen := make(map[string]bool, len(rows))
		ok := true
		for _, r := range rows {
			v := r.Values[i]
			if v.IsNull() || seen[v.Key()] {
				ok = false
				break
			}
			seen[v.Key()] = true
		}
		if ok && len(rows) > 0 {
			return ci.Name, i
		}
	}
	return "", -1
}

func duplicateKeys(rows []source.Row, pkIdx int) int {
	seen := make(map[string]bool, len(rows))
	dup := 0
	for _, r := range rows {
		v := r.Values[pkIdx]
		if v.IsNull() {
			dup++
			continue
		}
		if seen[v.Key()] {
			dup++
		}
		seen[v.Key()] = true
	}
	return dup
}

func countDangling(rows []source.Row, t *Table, fk ForeignKey, refPKs map[string]bool) int {
	if refPKs == nil {
		return 0
	}
	col := -1
	for i, c := range t.Columns {
		if c.Name == fk.Column {
			col = i
			break
		}
	}
	if col < 0 {
		return 0
	}
	dangling := 0
	for _, r := range rows {
		v := r.Values[col]
		if v.IsNull() {
			continue
		}
		if !refPKs[v.Key()] {
			dangling++
		}
	}
	return dangling
}
