package engine

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/pipeline"
)

func featureValues(t *testing.T, ds *dataset.Dataset, rules ...pipeline.FeatureRule) []any {
	t.Helper()
	out, err := DeriveFeatures(ds, &pipeline.Spec{CustomFeatures: rules})
	if err != nil {
		t.Fatalf("DeriveFeatures failed: %v", err)
	}
	values, err := out.Column(rules[len(rules)-1].Name)
	if err != nil {
		t.Fatalf("Expected derived column: %v", err)
	}
	return values
}

func TestSubtract(t *testing.T) {
	ds := dataset.New([]string{"a", "b", "c"}, []dataset.Row{
		{"a": int64(10), "b": int64(3), "c": int64(2)},
		{"a": 5.5, "b": int64(1), "c": 0.5},
		{"a": int64(1), "b": nil, "c": int64(1)},
	})

	got := featureValues(t, ds, pipeline.FeatureRule{Name: "net", Operation: "subtract", Columns: []string{"a", "b", "c"}})

	expected := []any{int64(5), 4.0, nil}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestSubtractUnsigned(t *testing.T) {
	ds := dataset.New([]string{"a", "b"}, []dataset.Row{
		{"a": uint64(10), "b": uint64(3)},
		{"a": uint(10), "b": uint(3)},
		{"a": uint64(math.MaxUint64), "b": uint64(1)},
	})

	got := featureValues(t, ds, pipeline.FeatureRule{Name: "d", Operation: "subtract", Columns: []string{"a", "b"}})

	expected := []any{int64(7), int64(7), float64(math.MaxUint64) - 1}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestSubtractOverflowFallsBackToFloat(t *testing.T) {
	ds := dataset.New([]string{"a", "b"}, []dataset.Row{
		{"a": int64(math.MinInt64), "b": int64(1)},
	})

	got := featureValues(t, ds, pipeline.FeatureRule{Name: "d", Operation: "subtract", Columns: []string{"a", "b"}})

	expected := []any{float64(math.MinInt64) - 1}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestFillNA(t *testing.T) {
	ds := dataset.New([]string{"score"}, []dataset.Row{
		{"score": 1.5},
		{"score": nil},
	})

	got := featureValues(t, ds, pipeline.FeatureRule{Name: "score", Operation: "fillna", Value: 0.0})

	expected := []any{1.5, 0.0}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestFillNAUnknownColumn(t *testing.T) {
	ds := dataset.New([]string{"score"}, []dataset.Row{{"score": 1.0}})
	spec := &pipeline.Spec{CustomFeatures: []pipeline.FeatureRule{{Name: "missing", Operation: "fillna", Value: 0}}}

	_, err := DeriveFeatures(ds, spec)

	var notFound *dataset.ColumnNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("Expected ColumnNotFoundError, got %v", err)
	}
}

func TestDivide(t *testing.T) {
	ds := dataset.New([]string{"total", "orders"}, []dataset.Row{
		{"total": int64(100), "orders": int64(4)},
		{"total": int64(50), "orders": int64(0)},
		{"total": nil, "orders": int64(2)},
		{"total": nil, "orders": int64(0)},
	})

	tests := []struct {
		name     string
		fillna   any
		expected []any
	}{
		{"without fillna", nil, []any{25.0, 0.0, nil, 0.0}},
		{"with fillna", -1.0, []any{25.0, 0.0, -1.0, 0.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := featureValues(t, ds, pipeline.FeatureRule{
				Name: "ticket", Operation: "divide", Columns: []string{"total", "orders"}, FillNA: tt.fillna,
			})
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		values   []any
		expected []any
	}{
		{"sequence", []any{1.0, 4.0, nil, 10.0}, []any{0, 3.0, 0, 0}},
		{"single row", []any{7.0}, []any{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]dataset.Row, len(tt.values))
			for i, v := range tt.values {
				rows[i] = dataset.Row{"x": v}
			}
			ds := dataset.New([]string{"x"}, rows)

			got := featureValues(t, ds, pipeline.FeatureRule{Name: "dx", Operation: "diff", Column: "x", FillNA: 0})
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestRollingMean(t *testing.T) {
	ds := dataset.New([]string{"x"}, []dataset.Row{
		{"x": 10.0}, {"x": 20.0}, {"x": 30.0}, {"x": 40.0},
	})

	got := featureValues(t, ds, pipeline.FeatureRule{Name: "avg3", Operation: "rolling_mean", Column: "x", Window: 3})

	expected := []any{10.0, 20.0, 20.0, 30.0}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestFeaturesSeeEarlierOutputs(t *testing.T) {
	ds := dataset.New([]string{"revenue", "cost", "units"}, []dataset.Row{
		{"revenue": 10.0, "cost": 4.0, "units": 2.0},
	})

	got := featureValues(t, ds,
		pipeline.FeatureRule{Name: "margin", Operation: "subtract", Columns: []string{"revenue", "cost"}},
		pipeline.FeatureRule{Name: "unit_margin", Operation: "divide", Columns: []string{"margin", "units"}},
	)

	if got[0] != 3.0 {
		t.Errorf("Expected 3, got %v", got[0])
	}
}

func TestFeaturesErrors(t *testing.T) {
	ds := dataset.New([]string{"x", "label"}, []dataset.Row{
		{"x": 1.0, "label": "a"},
		{"x": 2.0, "label": "b"},
	})

	tests := []struct {
		name string
		rule pipeline.FeatureRule
		want any
	}{
		{"unknown operation", pipeline.FeatureRule{Name: "f", Operation: "multiply"}, new(*pipeline.UnsupportedOperationError)},
		{"text operand", pipeline.FeatureRule{Name: "f", Operation: "subtract", Columns: []string{"x", "label"}}, new(*dataset.TypeError)},
		{"missing column", pipeline.FeatureRule{Name: "f", Operation: "diff", Column: "y", FillNA: 0}, new(*dataset.ColumnNotFoundError)},
		{"missing divide column", pipeline.FeatureRule{Name: "f", Operation: "divide", Columns: []string{"x", "y"}}, new(*dataset.ColumnNotFoundError)},
	}

	digest := ds.Digest()
	columns := ds.Columns()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveFeatures(ds, &pipeline.Spec{CustomFeatures: []pipeline.FeatureRule{tt.rule}})
			if ds.Digest() != digest || !reflect.DeepEqual(ds.Columns(), columns) {
				t.Errorf("Expected input to be unchanged, got columns %v", ds.Columns())
			}
			if !errors.As(err, tt.want) {
				t.Errorf("Expected %T, got %v", tt.want, err)
			}
			var stage *StageError
			if !errors.As(err, &stage) || stage.Rule != "f" {
				t.Errorf("Expected StageError for rule f, got %v", err)
			}
		})
	}
}
