package pipeline

import (
	"fmt"
	"slices"
	"strings"
)

const (
	subtractMinColumns = 2
	divideColumns      = 2
)

// Validate checks the whole document. It does not need a dataset: column
// existence is checked by each stage when the rule executes.
func (s *Spec) Validate() error {
	if err := s.validateFilters(); err != nil {
		return err
	}
	if err := s.validateGroupBy(); err != nil {
		return err
	}
	if err := s.validateAggregations(); err != nil {
		return err
	}
	if err := s.validateFeatures(); err != nil {
		return err
	}
	return s.validateDateFeatures()
}

func (s *Spec) validateFilters() error {
	for i, f := range s.Filters {
		if f.Column == "" {
			return &SchemaError{Field: fmt.Sprintf("filters[%d]", i), Reason: "column is required"}
		}
	}
	for i, suffix := range s.ExcludeSuffixes {
		if suffix == "" {
			return &SchemaError{Field: fmt.Sprintf("exclude_suffixes[%d]", i), Reason: "empty suffix would drop every column"}
		}
	}
	return nil
}

// validateGroupBy rejects a group key that the filter stage would drop.
func (s *Spec) validateGroupBy() error {
	for _, col := range s.GroupBy {
		for _, suffix := range s.ExcludeSuffixes {
			if strings.HasSuffix(col, suffix) {
				return &SchemaError{
					Field:  "groupby",
					Reason: fmt.Sprintf("column %q is removed by exclude suffix %q", col, suffix),
				}
			}
		}
	}
	return nil
}

func (s *Spec) validateAggregations() error {
	functions := make(map[string]struct{}, len(s.CustomFunctions))
	for i, fn := range s.CustomFunctions {
		if fn.Name == "" {
			return &SchemaError{Field: fmt.Sprintf("custom_functions[%d]", i), Reason: "name is required"}
		}
		if _, dup := functions[fn.Name]; dup {
			return &SchemaError{Field: "custom_functions." + fn.Name, Reason: "duplicate custom function name"}
		}
		functions[fn.Name] = struct{}{}
	}

	names := make(map[string]struct{}, len(s.Aggregations))
	for i, agg := range s.Aggregations {
		if agg.Column == "" || agg.Name == "" {
			return &SchemaError{Field: fmt.Sprintf("aggregations[%d]", i), Reason: "column and name are required"}
		}
		if _, dup := names[agg.Name]; dup {
			return &SchemaError{Field: "aggregations." + agg.Name, Reason: "duplicate output name"}
		}
		names[agg.Name] = struct{}{}
		if slices.Contains(s.GroupBy, agg.Name) {
			return &SchemaError{Field: "aggregations." + agg.Name, Reason: "output name collides with a groupby column"}
		}

		if _, err := s.Reducer(agg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Spec) validateFeatures() error {
	for i, rule := range s.CustomFeatures {
		field := fmt.Sprintf("custom_features[%d]", i)
		if rule.Name == "" {
			return &SchemaError{Field: field, Reason: "name is required"}
		}

		op, err := ParseFeatureOp(rule)
		if err != nil {
			return err
		}

		switch op {
		case OpSubtract:
			if len(rule.Columns) < subtractMinColumns {
				return &SchemaError{Field: field, Reason: "subtract needs at least two columns"}
			}
		case OpDivide:
			if len(rule.Columns) != divideColumns {
				return &SchemaError{Field: field, Reason: "divide needs exactly two columns"}
			}
		case OpFillNA:
			if rule.Value == nil {
				return &SchemaError{Field: field, Reason: "fillna needs a value"}
			}
		case OpDiff:
			if rule.Column == "" || rule.FillNA == nil {
				return &SchemaError{Field: field, Reason: "diff needs column and fillna"}
			}
		case OpRollingMean:
			if rule.Column == "" || rule.Window < 1 {
				return &SchemaError{Field: field, Reason: "rolling_mean needs column and a window of at least 1"}
			}
		}
	}
	return nil
}

func (s *Spec) validateDateFeatures() error {
	for i, feature := range s.DateFeatures {
		if feature.Name == "" || feature.Column == "" {
			return &SchemaError{Field: fmt.Sprintf("date_features[%d]", i), Reason: "name and column are required"}
		}
		if _, err := ParseDateOp(feature); err != nil {
			return err
		}
	}
	return nil
}
