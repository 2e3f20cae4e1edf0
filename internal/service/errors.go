package service

import (
	"errors"
	"strings"

	"opsconsole/internal/repository"
)

var (
	// ErrNotFound: operation, template, role or matrix cell absent
	ErrNotFound = errors.New("not found")
	// ErrNotEditable: a toggle was attempted on a cell whose configurable flag is false
	ErrNotEditable = errors.New("not editable")
	// ErrLastActive: the write would leave an operation without an enabled template
	ErrLastActive = errors.New("cannot remove the last active configuration of an operation")
)

// FieldError is a single field-scoped validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is the ValidationError of the catalog: every failing field, one message each.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Map returns field -> message for inline display
func (e FieldErrors) Map() map[string]string {
	out := make(map[string]string, len(e))
	for _, fe := range e {
		out[fe.Field] = fe.Message
	}
	return out
}

// Has reports whether field already failed
func (e FieldErrors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// orNil turns an empty list into a nil error
func (e FieldErrors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// AsFieldErrors extracts validation failures from err
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
