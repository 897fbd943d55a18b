package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidSubmission matches every *FieldError.
var ErrInvalidSubmission = errors.New("invalid submission")

// FieldError reports problems the submitter can fix, keyed by form field.
type FieldError struct {
	Fields map[string][]string
	cause  error
}

func NewFieldError(field, msg string) *FieldError {
	e := &FieldError{}
	e.Add(field, msg)
	return e
}

func (e *FieldError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *FieldError) Empty() bool { return len(e.Fields) == 0 }

func (e *FieldError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Fields[name], "; ")))
	}
	return "invalid submission: " + strings.Join(parts, ", ")
}

func (e *FieldError) Is(target error) bool { return target == ErrInvalidSubmission }

// Unwrap exposes the detection or store error behind the message, if any.
func (e *FieldError) Unwrap() error { return e.cause }

func fieldErrorFrom(field string, cause error, msg string) *FieldError {
	e := NewFieldError(field, msg)
	e.cause = cause
	return e
}
