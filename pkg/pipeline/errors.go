package pipeline

import "fmt"

// SchemaError reports a transformation document that is structurally invalid.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error at %s: %s", e.Field, e.Reason)
}

// UnsupportedOperationError reports an operation outside the supported set.
type UnsupportedOperationError struct {
	Section   string
	Rule      string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s rule %q: unsupported operation %q", e.Section, e.Rule, e.Operation)
}
