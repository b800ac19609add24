package stats

import (
	"math"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
)

func TestNumericKernels(t *testing.T) {
	x := []float64{1, 2, 3, 4}

	tests := []struct {
		name     string
		got      float64
		expected float64
	}{
		{"sum", Sum(x), 10},
		{"mean", Mean(x), 2.5},
		{"sample variance", Variance(x, 1), 5.0 / 3.0},
		{"population variance", Variance(x, 0), 1.25},
		{"median", Median(x), 2.5},
		{"first quartile", Quantile(x, 0.25), 1.75},
		{"max", Quantile(x, 1), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.expected) > 1e-9 {
				t.Errorf("Expected %v, got %v", tt.expected, tt.got)
			}
		})
	}

	if !math.IsNaN(Mean(nil)) {
		t.Errorf("Expected NaN mean for empty input")
	}
	if !math.IsNaN(Variance([]float64{1}, 1)) {
		t.Errorf("Expected NaN sample variance for a single value")
	}
}

func TestPearson(t *testing.T) {
	if r := Pearson([]float64{1, 2, 3}, []float64{2, 4, 6}); math.Abs(r-1) > 1e-9 {
		t.Errorf("Expected perfect correlation, got %v", r)
	}
	if r := Pearson([]float64{1, 2, 3}, []float64{3, 2, 1}); math.Abs(r+1) > 1e-9 {
		t.Errorf("Expected perfect anti-correlation, got %v", r)
	}
	if !math.IsNaN(Pearson([]float64{1, 1}, []float64{1, 2})) {
		t.Errorf("Expected NaN for a constant column")
	}
}

func testDataset() *dataset.Dataset {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	return dataset.New([]string{"amount", "qty", "ts", "store"}, []dataset.Row{
		{"amount": 10.0, "qty": int64(1), "ts": day(1), "store": "a"},
		{"amount": 20.0, "qty": int64(2), "ts": day(2), "store": "b"},
		{"amount": 30.0, "qty": int64(3), "ts": day(3), "store": "a"},
		{"amount": nil, "qty": int64(4), "ts": nil, "store": "b"},
	})
}

func TestDescribe(t *testing.T) {
	report := Describe(testDataset())

	if _, ok := report["store"]; ok {
		t.Errorf("Expected text columns to be excluded")
	}

	amount := report["amount"]
	if amount["count"] != 3 {
		t.Errorf("Expected count 3, got %v", amount["count"])
	}
	if amount["mean"] != 20.0 {
		t.Errorf("Expected mean 20, got %v", amount["mean"])
	}
	if amount["50%"] != 20.0 {
		t.Errorf("Expected median 20, got %v", amount["50%"])
	}

	ts := report["ts"]
	if ts["min"] != "2024-01-01T00:00:00Z" {
		t.Errorf("Expected ISO min timestamp, got %v", ts["min"])
	}
	if _, ok := ts["std"]; ok {
		t.Errorf("Expected no std for timestamps")
	}
}

func TestDescribeIsJSONSerializable(t *testing.T) {
	report := Serializable(Describe(testDataset()))

	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(report)
	if err != nil {
		t.Fatalf("Failed to marshal report: %v", err)
	}
	if !strings.Contains(string(out), `"max":"2024-01-03T00:00:00Z"`) {
		t.Errorf("Expected serialized timestamp in %s", out)
	}
}

func TestSerializable(t *testing.T) {
	in := map[string]any{
		"when":   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		"nested": map[string]any{"bad": math.Inf(1)},
		"list":   []any{time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
	}

	out := Serializable(in).(map[string]any)
	if out["when"] != "2024-05-01T12:00:00Z" {
		t.Errorf("Expected ISO string, got %v", out["when"])
	}
	if out["nested"].(map[string]any)["bad"] != nil {
		t.Errorf("Expected infinity to become nil")
	}
	if out["list"].([]any)[0] != "2024-05-02T00:00:00Z" {
		t.Errorf("Expected ISO string in list, got %v", out["list"])
	}
}

func TestCorrelation(t *testing.T) {
	corr := Correlation(testDataset())

	r, ok := corr["amount"]["qty"].(float64)
	if !ok || math.Abs(r-1) > 1e-9 {
		t.Errorf("Expected amount/qty correlation 1, got %v", corr["amount"]["qty"])
	}
	if corr["qty"]["amount"] != corr["amount"]["qty"] {
		t.Errorf("Expected symmetric matrix")
	}
	if _, ok := corr["ts"]; ok {
		t.Errorf("Expected only numeric columns")
	}
}
