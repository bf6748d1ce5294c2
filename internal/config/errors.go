package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one configuration key that failed to resolve
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	field := e.Field
	if k, ok := LookupKey(e.Field); ok {
		field = fmt.Sprintf("%s (%s)", k.Name, k.Env)
	}
	if e.Value != nil {
		return fmt.Sprintf("%s: %s, got %v", field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", field, e.Message)
}

// ValidationErrors is the full set of problems found in one resolution
type ValidationErrors []ValidationError

// Error lists every failing field, one per line
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:", len(e))
	for i := range e {
		b.WriteString("\n  - ")
		b.WriteString(e[i].Error())
	}
	return b.String()
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields returns the failing keys in report order
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, v := range e {
		fields = append(fields, v.Field)
	}
	return fields
}

func (e ValidationErrors) without(skip map[string]bool) ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if !skip[v.Field] {
			out = append(out, v)
		}
	}
	return out
}
