package pipeline

import "fmt"

// AggFunc enumerates the built-in reducers.
type AggFunc int

const (
	AggSum AggFunc = iota + 1
	AggMean
	AggMedian
	AggStd
	AggVar
	AggCount
	AggSize
	AggMin
	AggMax
	AggFirst
	AggLast
	AggNUnique
)

var aggFuncNames = map[string]AggFunc{
	"sum":     AggSum,
	"mean":    AggMean,
	"median":  AggMedian,
	"std":     AggStd,
	"var":     AggVar,
	"count":   AggCount,
	"size":    AggSize,
	"min":     AggMin,
	"max":     AggMax,
	"first":   AggFirst,
	"last":    AggLast,
	"nunique": AggNUnique,
}

// ParseAggFunc resolves a built-in reducer name.
func ParseAggFunc(name string) (AggFunc, bool) {
	f, ok := aggFuncNames[name]
	return f, ok
}

func (f AggFunc) String() string {
	for name, v := range aggFuncNames {
		if v == f {
			return name
		}
	}
	return fmt.Sprintf("AggFunc(%d)", int(f))
}

// Reducer is the resolved form of an aggfunc: exactly one of Builtin or
// Custom is set.
type Reducer struct {
	Builtin AggFunc
	Custom  *CustomFunction
}

func (r Reducer) String() string {
	if r.Custom != nil {
		return r.Custom.Name
	}
	return r.Builtin.String()
}

// Reducer resolves an aggregation's aggfunc. Custom functions shadow
// built-ins of the same name.
func (s *Spec) Reducer(agg Aggregation) (Reducer, error) {
	if fn, ok := s.CustomFunction(agg.AggFunc); ok {
		return Reducer{Custom: fn}, nil
	}
	if f, ok := ParseAggFunc(agg.AggFunc); ok {
		return Reducer{Builtin: f}, nil
	}
	return Reducer{}, &SchemaError{
		Field:  "aggregations." + agg.Name,
		Reason: fmt.Sprintf("aggfunc %q is neither a built-in reducer nor a custom function", agg.AggFunc),
	}
}

// FeatureOp enumerates the custom_features operations.
type FeatureOp int

const (
	OpSubtract FeatureOp = iota + 1
	OpFillNA
	OpDivide
	OpDiff
	OpRollingMean
)

var featureOpNames = map[string]FeatureOp{
	"subtract":     OpSubtract,
	"fillna":       OpFillNA,
	"divide":       OpDivide,
	"diff":         OpDiff,
	"rolling_mean": OpRollingMean,
}

// ParseFeatureOp resolves a custom_features operation.
func ParseFeatureOp(rule FeatureRule) (FeatureOp, error) {
	if op, ok := featureOpNames[rule.Operation]; ok {
		return op, nil
	}
	return 0, &UnsupportedOperationError{Section: "custom_features", Rule: rule.Name, Operation: rule.Operation}
}

// DateOp enumerates the date_features operations.
type DateOp int

const (
	OpDayOfWeek DateOp = iota + 1
	OpIsWeekend
	OpMonth
	OpQuarter
	OpYear
)

var dateOpNames = map[string]DateOp{
	"dayofweek":  OpDayOfWeek,
	"is_weekend": OpIsWeekend,
	"month":      OpMonth,
	"quarter":    OpQuarter,
	"year":       OpYear,
}

// ParseDateOp resolves a date_features operation.
func ParseDateOp(feature DateFeature) (DateOp, error) {
	if op, ok := dateOpNames[feature.Operation]; ok {
		return op, nil
	}
	return 0, &UnsupportedOperationError{Section: "date_features", Rule: feature.Name, Operation: feature.Operation}
}
