package model

import (
	"fmt"
	"strings"
)

// MaxPageSize bounds the page size a spec may ask for.
const MaxPageSize = 100

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks a QuerySpec for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the spec is valid.
func (q QuerySpec) Validate() error {
	var ve ValidationError

	if q.page < 1 {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "page",
			Message: fmt.Sprintf("must be at least 1, got %d", q.page),
		})
	}
	if q.pageSize < 1 || q.pageSize > MaxPageSize {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "page_size",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxPageSize, q.pageSize),
		})
	}

	seen := make(map[string]bool, len(q.filters))
	for i, f := range q.filters {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   fmt.Sprintf("filters[%d]", i),
				Message: "key is required",
			})
			continue
		}
		// page and page_size are reserved by the pagination encoding.
		if key == "page" || key == "page_size" {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   fmt.Sprintf("filters[%d]", i),
				Message: fmt.Sprintf("key %q is reserved", key),
			})
		}
		if seen[key] {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   fmt.Sprintf("filters[%d]", i),
				Message: fmt.Sprintf("duplicate key %q", key),
			})
		}
		seen[key] = true
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
