package schema

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func TestTypeOf(t *testing.T) {
	var nilPtr *int
	n := 7

	tests := []struct {
		name     string
		value    any
		expected ColumnType
	}{
		{name: "nil", value: nil, expected: Null},
		{name: "nil pointer", value: nilPtr, expected: Null},
		{name: "pointer to int", value: &n, expected: Numeric},
		{name: "int64", value: int64(3), expected: Numeric},
		{name: "float", value: 3.14, expected: Numeric},
		{name: "NaN", value: math.NaN(), expected: Null},
		{name: "string", value: "abc", expected: Text},
		{name: "timestamp", value: time.Now(), expected: Timestamp},
		{name: "bool", value: true, expected: Bool},
		{name: "slice", value: []string{"a"}, expected: Text},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeOf(tt.value); got != tt.expected {
				t.Errorf("TypeOf(%v) = %s, want %s", tt.value, got, tt.expected)
			}
		})
	}
}

func TestInferColumnType(t *testing.T) {
	tests := []struct {
		name     string
		values   []any
		expected ColumnType
	}{
		{name: "empty", values: nil, expected: Null},
		{name: "all missing", values: []any{nil, math.NaN()}, expected: Null},
		{name: "ints and floats", values: []any{int64(1), 2.5, nil}, expected: Numeric},
		{name: "timestamps", values: []any{time.Now(), nil}, expected: Timestamp},
		{name: "mixed", values: []any{int64(1), "x"}, expected: Text},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferColumnType(tt.values); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestTableSchemaSetAndDrop(t *testing.T) {
	s := New("a", "b")
	s.Set("c", Numeric)
	s.Set("a", Text)

	if !reflect.DeepEqual(s.FieldOrder, []string{"a", "b", "c"}) {
		t.Errorf("Expected field order [a b c], got %v", s.FieldOrder)
	}
	if s.Types["a"] != Text {
		t.Errorf("Expected column a to be text, got %s", s.Types["a"])
	}

	s.Drop("b")
	s.Drop("missing")
	if s.Has("b") {
		t.Errorf("Expected column b to be dropped")
	}
	if !reflect.DeepEqual(s.FieldOrder, []string{"a", "c"}) {
		t.Errorf("Expected field order [a c], got %v", s.FieldOrder)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := New("a")
	c := s.Clone()
	c.Set("b", Numeric)

	if s.Has("b") {
		t.Errorf("Expected original schema to be unchanged")
	}
	if !IsSchemaDifferent(s, c) {
		t.Errorf("Expected schemas to differ")
	}
	if IsSchemaDifferent(s, s.Clone()) {
		t.Errorf("Expected clone to match original")
	}
}
