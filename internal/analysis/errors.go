package analysis

import (
	"fmt"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

// SchemaError indicates a column that is not part of the table.
type SchemaError struct {
	Table  string
	Column string
}

func (e *SchemaError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("column %q not found in %s", e.Column, e.Table)
	}
	return fmt.Sprintf("column %q not found", e.Column)
}

// EmptyColumnError indicates a column with no non-null value to sample.
type EmptyColumnError struct{ Column string }

func (e *EmptyColumnError) Error() string {
	return fmt.Sprintf("column %q has no non-null values to classify", e.Column)
}

// UnsupportedValueError indicates a cell whose kind cannot be handled by the
// method chosen for its column.
type UnsupportedValueError struct {
	Column string
	Row    int
	Kind   table.Kind
	Method string
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("column %q row %d: %s value not supported by %s", e.Column, e.Row, e.Kind, e.Method)
}
