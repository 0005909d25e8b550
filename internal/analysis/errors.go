package analysis

import (
	"errors"
	"fmt"
)

// Pre-run rejections. No run is created when these are returned.
var (
	ErrNoContent       = errors.New("project has no document pages to analyze")
	ErrMissingTemplate = errors.New("project has no criteria template assigned")
)

// SchemaValidationError reports model JSON that does not have the expected shape.
type SchemaValidationError struct {
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("invalid model result at %s: %s", e.Field, e.Reason)
}
