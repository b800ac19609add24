package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/pipeline"
)

func ordersDataset() *dataset.Dataset {
	return dataset.New([]string{"store", "country", "amount", "amount_raw"}, []dataset.Row{
		{"store": "a", "country": "BR", "amount": int64(10), "amount_raw": "10"},
		{"store": "b", "country": "US", "amount": int64(20), "amount_raw": "20"},
		{"store": "a", "country": "BR", "amount": int64(30), "amount_raw": "30"},
		{"store": "c", "country": nil, "amount": int64(40), "amount_raw": "40"},
	})
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		spec    pipeline.Spec
		rows    int
		columns []string
	}{
		{
			name:    "equality filter",
			spec:    pipeline.Spec{Filters: []pipeline.Filter{{Column: "country", Value: "BR"}}},
			rows:    2,
			columns: []string{"store", "country", "amount", "amount_raw"},
		},
		{
			name: "filters are combined with AND",
			spec: pipeline.Spec{Filters: []pipeline.Filter{
				{Column: "country", Value: "BR"},
				{Column: "amount", Value: 30},
			}},
			rows:    1,
			columns: []string{"store", "country", "amount", "amount_raw"},
		},
		{
			name:    "numeric filter matches across int and float",
			spec:    pipeline.Spec{Filters: []pipeline.Filter{{Column: "amount", Value: 20.0}}},
			rows:    1,
			columns: []string{"store", "country", "amount", "amount_raw"},
		},
		{
			name:    "missing never matches",
			spec:    pipeline.Spec{Filters: []pipeline.Filter{{Column: "country", Value: nil}}},
			rows:    0,
			columns: []string{"store", "country", "amount", "amount_raw"},
		},
		{
			name:    "exclude suffixes",
			spec:    pipeline.Spec{ExcludeSuffixes: []string{"_raw"}},
			rows:    4,
			columns: []string{"store", "country", "amount"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Filter(ordersDataset(), &tt.spec)
			if err != nil {
				t.Fatalf("Filter failed: %v", err)
			}
			if out.Len() != tt.rows {
				t.Errorf("Expected %d rows, got %d", tt.rows, out.Len())
			}
			if !reflect.DeepEqual(out.Columns(), tt.columns) {
				t.Errorf("Expected columns %v, got %v", tt.columns, out.Columns())
			}
			for _, r := range out.Rows {
				if _, ok := r["amount_raw"]; ok && len(tt.spec.ExcludeSuffixes) > 0 {
					t.Errorf("Expected excluded column to be removed from rows")
				}
			}
		})
	}
}

func TestFilterIsIdempotent(t *testing.T) {
	spec := &pipeline.Spec{
		Filters:         []pipeline.Filter{{Column: "country", Value: "BR"}},
		ExcludeSuffixes: []string{"_raw"},
	}

	once, err := Filter(ordersDataset(), spec)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	twice, err := Filter(once, spec)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Expected filtering twice to equal filtering once")
	}
}

func TestFilterUnknownColumn(t *testing.T) {
	ds := ordersDataset()
	before := ds.Clone()
	spec := &pipeline.Spec{Filters: []pipeline.Filter{{Column: "region", Value: "south"}}}

	_, err := Filter(ds, spec)

	var notFound *dataset.ColumnNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected ColumnNotFoundError, got %v", err)
	}
	if notFound.Column != "region" {
		t.Errorf("Expected column region, got %s", notFound.Column)
	}
	var stage *StageError
	if !errors.As(err, &stage) || stage.Stage != StageFilter {
		t.Errorf("Expected filter StageError, got %v", err)
	}
	if !reflect.DeepEqual(ds, before) {
		t.Errorf("Expected input dataset to be left untouched")
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	ds := ordersDataset()
	spec := &pipeline.Spec{ExcludeSuffixes: []string{"_raw"}}

	if _, err := Filter(ds, spec); err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if _, ok := ds.Rows[0]["amount_raw"]; !ok {
		t.Errorf("Expected input rows to keep excluded column")
	}
	if !ds.Schema.Has("amount_raw") {
		t.Errorf("Expected input schema to keep excluded column")
	}
}
