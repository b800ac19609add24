package dataset

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// HashKey returns the xxhash64 of a tuple of values. Numbers hash by their
// float value and timestamps by their instant, so values that are Equal hash
// the same.
func HashKey(values []any) uint64 {
	h := xxhash.New()
	for _, v := range values {
		writeValue(h, v)
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Digest fingerprints the schema and every row in order. It is the dataset
// identity recorded by the tracking store.
func (d *Dataset) Digest() string {
	h := xxhash.New()
	for _, c := range d.Schema.FieldOrder {
		h.WriteString(c)
		h.Write([]byte{1})
	}
	for _, r := range d.Rows {
		for _, c := range d.Schema.FieldOrder {
			writeValue(h, r[c])
			h.Write([]byte{0})
		}
		h.Write([]byte{1})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func writeValue(h *xxhash.Digest, v any) {
	if IsMissing(v) {
		h.WriteString("\x00nil")
		return
	}
	if f, ok := ToFloat(v); ok {
		h.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		return
	}
	switch x := v.(type) {
	case time.Time:
		writeInstant(h, x)
		return
	case *time.Time:
		if x != nil {
			writeInstant(h, *x)
			return
		}
	case string:
		// Text that parses as a timestamp is Equal to that timestamp.
		if t, ok := ParseTime(x); ok {
			writeInstant(h, t)
			return
		}
	}
	fmt.Fprint(h, v)
}

func writeInstant(h *xxhash.Digest, t time.Time) {
	h.WriteString("\x00ts")
	h.WriteString(strconv.FormatInt(t.UnixNano(), 10))
}
