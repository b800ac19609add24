package pipeline

// Spec is the declarative transformation document. It is parsed and
// validated once and treated as read-only afterwards.
//
//	filters:
//	  - {column: country, value: BR}
//	exclude_suffixes: [_raw]
//	groupby: [store_id, created_at]
//	date_columns: [created_at]
//	aggregations:
//	  - {column: amount, name: total, aggfunc: sum}
//	  - {column: status, name: has_refund, aggfunc: any_refund}
//	custom_functions:
//	  - {name: any_refund, condition: REFUND, true_value: 1, false_value: 0}
//	custom_features:
//	  - {name: ticket, operation: divide, columns: [total, orders], fillna: 0}
//	date_features:
//	  - {name: dow, operation: dayofweek, column: created_at}
type Spec struct {
	Filters         []Filter         `yaml:"filters,omitempty" json:"filters,omitempty"`
	ExcludeSuffixes []string         `yaml:"exclude_suffixes,omitempty" json:"exclude_suffixes,omitempty"`
	GroupBy         []string         `yaml:"groupby" json:"groupby"`
	DateColumns     []string         `yaml:"date_columns" json:"date_columns"`
	Aggregations    []Aggregation    `yaml:"aggregations" json:"aggregations"`
	CustomFunctions []CustomFunction `yaml:"custom_functions,omitempty" json:"custom_functions,omitempty"`
	CustomFeatures  []FeatureRule    `yaml:"custom_features,omitempty" json:"custom_features,omitempty"`
	DateFeatures    []DateFeature    `yaml:"date_features,omitempty" json:"date_features,omitempty"`
}

// Filter keeps rows whose Column equals Value.
type Filter struct {
	Column string `yaml:"column" json:"column"`
	Value  any    `yaml:"value" json:"value"`
}

type Aggregation struct {
	Column  string `yaml:"column" json:"column"`
	Name    string `yaml:"name" json:"name"`
	AggFunc string `yaml:"aggfunc" json:"aggfunc"`
}

// CustomFunction is a conditional reducer: TrueValue when any value of the
// group equals Condition, FalseValue otherwise.
type CustomFunction struct {
	Name       string `yaml:"name" json:"name"`
	Condition  any    `yaml:"condition" json:"condition"`
	TrueValue  any    `yaml:"true_value" json:"true_value"`
	FalseValue any    `yaml:"false_value" json:"false_value"`
}

// FeatureRule derives one column. Which of Columns, Column, Value, FillNA and
// Window are read depends on Operation.
type FeatureRule struct {
	Name      string   `yaml:"name" json:"name"`
	Operation string   `yaml:"operation" json:"operation"`
	Columns   []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	Column    string   `yaml:"column,omitempty" json:"column,omitempty"`
	Value     any      `yaml:"value,omitempty" json:"value,omitempty"`
	FillNA    any      `yaml:"fillna,omitempty" json:"fillna,omitempty"`
	Window    int      `yaml:"window,omitempty" json:"window,omitempty"`
}

type DateFeature struct {
	Name      string `yaml:"name" json:"name"`
	Operation string `yaml:"operation" json:"operation"`
	Column    string `yaml:"column" json:"column"`
}

// DateColumn returns the authoritative date column, date_columns[0], or ""
// when none is configured.
func (s *Spec) DateColumn() string {
	if len(s.DateColumns) == 0 {
		return ""
	}
	return s.DateColumns[0]
}

// CustomFunction looks up a conditional reducer by name.
func (s *Spec) CustomFunction(name string) (*CustomFunction, bool) {
	for i := range s.CustomFunctions {
		if s.CustomFunctions[i].Name == name {
			return &s.CustomFunctions[i], true
		}
	}
	return nil, false
}
