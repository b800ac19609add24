// Package dataset holds the in-memory tabular value every transformation
// stage consumes and produces.
package dataset

import (
	"maps"
	"sort"

	"github.com/siqueiraa/TabFlow/pkg/schema"
)

// Row maps a column name to its value. A nil value (or a float NaN) is missing.
type Row map[string]any

// Dataset is an ordered sequence of rows plus the ordered, typed schema.
// Stages never mutate the Dataset they receive; they work on a Clone.
type Dataset struct {
	Schema schema.TableSchema
	Rows   []Row
}

// New builds a dataset with the given column order and infers every column type.
func New(columns []string, rows []Row) *Dataset {
	ds := &Dataset{
		Schema: schema.New(columns...),
		Rows:   rows,
	}
	if ds.Rows == nil {
		ds.Rows = make([]Row, 0)
	}
	for _, c := range columns {
		ds.RefreshType(c)
	}
	return ds
}

// FromRecords builds a dataset from schema-less records. The column set is the
// union of all keys, sorted alphabetically to keep the order deterministic.
func FromRecords(records []map[string]any) *Dataset {
	seen := make(map[string]struct{})
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
		rows = append(rows, Row(maps.Clone(rec)))
	}

	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return New(columns, rows)
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Columns returns the ordered column names.
func (d *Dataset) Columns() []string {
	return d.Schema.FieldOrder
}

// Require fails with a ColumnNotFoundError for the first absent column.
func (d *Dataset) Require(columns ...string) error {
	for _, c := range columns {
		if !d.Schema.Has(c) {
			return &ColumnNotFoundError{Column: c}
		}
	}
	return nil
}

// Column returns the values of a column in row order.
func (d *Dataset) Column(name string) ([]any, error) {
	if err := d.Require(name); err != nil {
		return nil, err
	}
	out := make([]any, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r[name]
	}
	return out, nil
}

// Clone copies the schema and every row map; values themselves are shared,
// which is safe because stages only ever replace them.
func (d *Dataset) Clone() *Dataset {
	rows := make([]Row, len(d.Rows))
	for i, r := range d.Rows {
		rows[i] = maps.Clone(r)
		if rows[i] == nil {
			rows[i] = Row{}
		}
	}
	return &Dataset{Schema: d.Schema.Clone(), Rows: rows}
}

// SetColumn writes values (one per row) into the named column, creating it at
// the end of the schema if needed, and re-infers its type.
func (d *Dataset) SetColumn(name string, values []any) {
	for i, r := range d.Rows {
		r[name] = values[i]
	}
	d.Schema.Set(name, schema.InferColumnType(values))
}

// DropColumn removes a column from the schema and every row.
func (d *Dataset) DropColumn(name string) {
	d.Schema.Drop(name)
	for _, r := range d.Rows {
		delete(r, name)
	}
}

// RefreshType re-infers the type of one column from its current values.
func (d *Dataset) RefreshType(name string) {
	values := make([]any, len(d.Rows))
	for i, r := range d.Rows {
		values[i] = r[name]
	}
	d.Schema.Set(name, schema.InferColumnType(values))
}

// IntegerColumn reports whether every present value of a numeric column has
// an integer Go type, so sinks can pick a 64-bit integer type over a double.
func (d *Dataset) IntegerColumn(name string) bool {
	if d.Schema.Types[name] != schema.Numeric {
		return false
	}
	for _, r := range d.Rows {
		if v := r[name]; !IsMissing(v) && !IsInteger(v) {
			return false
		}
	}
	return true
}

// Records returns the rows as plain maps restricted to the schema columns,
// in row order, for sinks that want a schema-less view.
func (d *Dataset) Records() []map[string]any {
	out := make([]map[string]any, len(d.Rows))
	for i, r := range d.Rows {
		rec := make(map[string]any, len(d.Schema.FieldOrder))
		for _, c := range d.Schema.FieldOrder {
			rec[c] = r[c]
		}
		out[i] = rec
	}
	return out
}
