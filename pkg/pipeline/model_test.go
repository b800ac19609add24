package pipeline

import (
	"errors"
	"testing"
)

func baseSpec() Spec {
	return Spec{
		GroupBy:     []string{"store"},
		DateColumns: []string{"ts"},
		Aggregations: []Aggregation{
			{Column: "amount", Name: "total", AggFunc: "sum"},
		},
	}
}

func TestSpecValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(s *Spec)
		wantErr   bool
		unsupport bool
	}{
		{
			name:   "valid spec",
			mutate: func(*Spec) {},
		},
		{
			name: "unknown aggfunc",
			mutate: func(s *Spec) {
				s.Aggregations[0].AggFunc = "has_refund"
			},
			wantErr: true,
		},
		{
			name: "custom function resolves aggfunc",
			mutate: func(s *Spec) {
				s.Aggregations[0].AggFunc = "has_refund"
				s.CustomFunctions = []CustomFunction{{Name: "has_refund", Condition: "R", TrueValue: 1, FalseValue: 0}}
			},
		},
		{
			name: "duplicate aggregation name",
			mutate: func(s *Spec) {
				s.Aggregations = append(s.Aggregations, Aggregation{Column: "amount", Name: "total", AggFunc: "mean"})
			},
			wantErr: true,
		},
		{
			name: "aggregation name shadows group key",
			mutate: func(s *Spec) {
				s.Aggregations[0].Name = "store"
			},
			wantErr: true,
		},
		{
			name: "groupby column excluded by suffix",
			mutate: func(s *Spec) {
				s.GroupBy = []string{"store_raw"}
				s.ExcludeSuffixes = []string{"_raw"}
			},
			wantErr: true,
		},
		{
			name: "divide with one column",
			mutate: func(s *Spec) {
				s.CustomFeatures = []FeatureRule{{Name: "x", Operation: "divide", Columns: []string{"a"}}}
			},
			wantErr: true,
		},
		{
			name: "diff without fillna",
			mutate: func(s *Spec) {
				s.CustomFeatures = []FeatureRule{{Name: "x", Operation: "diff", Column: "a"}}
			},
			wantErr: true,
		},
		{
			name: "rolling mean without window",
			mutate: func(s *Spec) {
				s.CustomFeatures = []FeatureRule{{Name: "x", Operation: "rolling_mean", Column: "a"}}
			},
			wantErr: true,
		},
		{
			name: "unknown feature operation",
			mutate: func(s *Spec) {
				s.CustomFeatures = []FeatureRule{{Name: "x", Operation: "multiply", Columns: []string{"a", "b"}}}
			},
			wantErr:   true,
			unsupport: true,
		},
		{
			name: "unknown date operation",
			mutate: func(s *Spec) {
				s.DateFeatures = []DateFeature{{Name: "d", Operation: "week", Column: "ts"}}
			},
			wantErr:   true,
			unsupport: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSpec()
			tt.mutate(&s)
			err := s.Validate()

			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}

			var unsupported *UnsupportedOperationError
			var schemaErr *SchemaError
			switch {
			case tt.unsupport && !errors.As(err, &unsupported):
				t.Errorf("Expected UnsupportedOperationError, got %T", err)
			case !tt.unsupport && !errors.As(err, &schemaErr):
				t.Errorf("Expected SchemaError, got %T", err)
			}
		})
	}
}

func TestCustomFunctionShadowsBuiltin(t *testing.T) {
	s := baseSpec()
	s.CustomFunctions = []CustomFunction{{Name: "sum", Condition: "X", TrueValue: "yes", FalseValue: "no"}}

	r, err := s.Reducer(s.Aggregations[0])
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if r.Custom == nil {
		t.Errorf("Expected custom function to take precedence over built-in sum")
	}
}

func TestParseAggFunc(t *testing.T) {
	for _, name := range []string{"sum", "mean", "median", "std", "var", "count", "size", "min", "max", "first", "last", "nunique"} {
		f, ok := ParseAggFunc(name)
		if !ok {
			t.Errorf("Expected %s to be a built-in reducer", name)
			continue
		}
		if f.String() != name {
			t.Errorf("Expected String() %s, got %s", name, f.String())
		}
	}
	if _, ok := ParseAggFunc("avg"); ok {
		t.Errorf("Expected avg to be rejected")
	}
}

func TestDateColumn(t *testing.T) {
	s := Spec{}
	if s.DateColumn() != "" {
		t.Errorf("Expected empty date column")
	}
	s.DateColumns = []string{"a", "b"}
	if s.DateColumn() != "a" {
		t.Errorf("Expected first date column, got %s", s.DateColumn())
	}
}
