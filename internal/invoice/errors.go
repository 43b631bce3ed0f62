package invoice

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("invoice not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrAlreadyTerminal     = errors.New("invoice is in a terminal state")
	ErrImmutable           = errors.New("invoice is no longer a draft")
	ErrConcurrentUpdate    = errors.New("invoice status changed concurrently")
	ErrResolutionExhausted = errors.New("numbering resolution exhausted or expired")
)

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors extracts the field errors wrapped or joined into err.
func FieldErrors(err error) []FieldError {
	switch x := err.(type) {
	case nil:
		return nil
	case FieldError:
		return []FieldError{x}
	case interface{ Unwrap() []error }:
		var out []FieldError
		for _, e := range x.Unwrap() {
			out = append(out, FieldErrors(e)...)
		}

		return out
	case interface{ Unwrap() error }:
		return FieldErrors(x.Unwrap())
	}

	return nil
}
