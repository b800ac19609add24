package dataset

import "fmt"

// ColumnNotFoundError is returned when a rule references a column that is
// absent from the current schema.
type ColumnNotFoundError struct {
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found", e.Column)
}

// TypeError is returned when a value cannot be used by an operation, e.g. a
// text value in an arithmetic rule or an unparseable timestamp.
type TypeError struct {
	Column string
	Row    int
	Value  any
	Want   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("column %q row %d: expected %s, got %T(%v)", e.Column, e.Row, e.Want, e.Value, e.Value)
}
