package telemetry

import (
	"errors"
	"fmt"
)

// SchemaError reports a fix table that cannot be bound to the declared
// schema: a missing column, a non-numeric coordinate, an unparseable
// timestamp. It is fatal; no computation is attempted on the table.
type SchemaError struct {
	Column string
	Row    int // 1-based data row; 0 for table-level problems
	Value  string
	Reason string
}

func (e *SchemaError) Error() string {
	msg := "telemetry: schema error"
	if e.Column != "" {
		msg += fmt.Sprintf(": column %q", e.Column)
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(": row %d", e.Row)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(": value %q", e.Value)
	}
	return msg + ": " + e.Reason
}

// IsSchemaError returns true if the error (or any error in its chain) is a
// SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
