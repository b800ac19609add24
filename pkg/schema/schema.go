package schema

import (
	"math"
	"reflect"
	"slices"
	"time"
)

// ColumnType is the semantic type inferred for a dataset column.
type ColumnType string

const (
	Numeric   ColumnType = "numeric"
	Text      ColumnType = "text"
	Timestamp ColumnType = "timestamp"
	Bool      ColumnType = "bool"
	Null      ColumnType = "null"
)

// TableSchema holds the ordered column names of a dataset and their types.
type TableSchema struct {
	Types      map[string]ColumnType
	FieldOrder []string
}

func New(columns ...string) TableSchema {
	s := TableSchema{
		Types:      make(map[string]ColumnType, len(columns)),
		FieldOrder: make([]string, 0, len(columns)),
	}
	for _, c := range columns {
		s.Set(c, Null)
	}
	return s
}

// Has reports whether the column is part of the schema.
func (s TableSchema) Has(column string) bool {
	_, ok := s.Types[column]
	return ok
}

// Set adds the column at the end of the field order, or updates its type
// in place when it already exists.
func (s *TableSchema) Set(column string, typ ColumnType) {
	if s.Types == nil {
		s.Types = make(map[string]ColumnType)
	}
	if _, ok := s.Types[column]; !ok {
		s.FieldOrder = append(s.FieldOrder, column)
	}
	s.Types[column] = typ
}

// Drop removes the column. Unknown columns are ignored.
func (s *TableSchema) Drop(column string) {
	if _, ok := s.Types[column]; !ok {
		return
	}
	delete(s.Types, column)
	if idx := slices.Index(s.FieldOrder, column); idx >= 0 {
		s.FieldOrder = slices.Delete(s.FieldOrder, idx, idx+1)
	}
}

func (s TableSchema) Clone() TableSchema {
	out := TableSchema{
		Types:      make(map[string]ColumnType, len(s.Types)),
		FieldOrder: slices.Clone(s.FieldOrder),
	}
	for k, v := range s.Types {
		out.Types[k] = v
	}
	return out
}

// IsSchemaDifferent checks if two TableSchemas differ in structure.
func IsSchemaDifferent(old, newSchema TableSchema) bool {
	if !slices.Equal(old.FieldOrder, newSchema.FieldOrder) {
		return true
	}
	for k, v := range newSchema.Types {
		if oldType, ok := old.Types[k]; !ok || oldType != v {
			return true
		}
	}
	return false
}

// InferColumnType folds the per-value types of a column. Missing values are
// ignored; a column mixing incompatible types is text.
func InferColumnType(values []any) ColumnType {
	result := Null
	for _, v := range values {
		t := TypeOf(v)
		switch {
		case t == Null:
			continue
		case result == Null:
			result = t
		case result != t:
			return Text
		}
	}
	return result
}

// TypeOf returns the semantic type of a single value.
func TypeOf(value any) ColumnType {
	if value == nil {
		return Null
	}
	t := reflect.TypeOf(value)

	if t.Kind() == reflect.Ptr {
		val := reflect.ValueOf(value)
		if val.IsNil() {
			return Null
		}
		val = val.Elem()
		t, value = val.Type(), val.Interface()
	}

	if t == reflect.TypeOf(time.Time{}) {
		return Timestamp
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Numeric
	case reflect.Float32, reflect.Float64:
		if f := reflect.ValueOf(value).Float(); math.IsNaN(f) {
			return Null
		}
		return Numeric
	case reflect.Bool:
		return Bool
	default:
		return Text
	}
}
