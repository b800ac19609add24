// Package faker generates a deterministic synthetic transactions dataset for
// demos and tests.
package faker

import (
	"fmt"
	"math"
	"math/rand" // Using weak random for test data generation only
	"time"

	"github.com/google/uuid"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
)

const (
	maxUsers             = 50    // Number of distinct customers
	maxStores            = 8     // Number of distinct stores
	maxTransactionAmount = 100.0 // Maximum transaction amount for test data
	maxQuantity          = 5
	missingRate          = 0.05 // Share of rows with a missing amount or discount
	testRate             = 0.02 // Share of rows flagged as test traffic
	daysSpan             = 28   // Days covered by created_at
)

// Columns is the column order of the generated dataset.
var Columns = []string{
	"transaction_id", "created_at", "store_id", "customer_id", "channel",
	"status", "quantity", "amount", "cost", "discount", "is_test",
}

var (
	channels = []string{"online", "store", "app"}
	statuses = []string{"completed", "completed", "completed", "refunded", "canceled"}
)

// Options controls the generated dataset.
type Options struct {
	Rows  int
	Seed  int64
	Start time.Time // first day; defaults to 2024-01-01 UTC
}

// Transactions builds a dataset of opts.Rows synthetic sales. The same seed
// always yields the same rows, ids included.
func Transactions(opts Options) *dataset.Dataset {
	start := opts.Start
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	r := rand.New(rand.NewSource(opts.Seed)) //nolint:gosec // Using weak random for test data generation only

	rows := make([]dataset.Row, 0, opts.Rows)
	for i := 0; i < opts.Rows; i++ {
		qty := int64(1 + r.Intn(maxQuantity))
		amount := round2(r.Float64() * maxTransactionAmount * float64(qty))
		cost := round2(amount * (0.4 + 0.3*r.Float64()))

		row := dataset.Row{
			"transaction_id": transactionID(r),
			"created_at":     start.Add(time.Duration(r.Int63n(int64(daysSpan * 24 * time.Hour)))).Truncate(time.Second),
			"store_id":       fmt.Sprintf("s%d", 1+r.Intn(maxStores)),
			"customer_id":    fmt.Sprintf("u%d", 1+r.Intn(maxUsers)),
			"channel":        channels[r.Intn(len(channels))],
			"status":         statuses[r.Intn(len(statuses))],
			"quantity":       qty,
			"amount":         amount,
			"cost":           cost,
			"discount":       round2(r.Float64() * 0.2 * amount),
			"is_test":        r.Float64() < testRate,
		}
		if r.Float64() < missingRate {
			row["amount"] = nil
		}
		if r.Float64() < missingRate {
			row["discount"] = nil
		}
		rows = append(rows, row)
	}
	return dataset.New(Columns, rows)
}

// transactionID draws a v4 UUID from r so ids follow the seed.
func transactionID(r *rand.Rand) string {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
