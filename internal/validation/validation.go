// Package validation defines the error type returned for bad client input.
// Validation errors go back to the caller unchanged for correction, unlike
// transient or remote failures which are sanitized.
package validation

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errorf builds a ValidationError for field.
func Errorf(field, format string, args ...interface{}) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
