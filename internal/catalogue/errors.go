package catalogue

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a catalogue problem.
type ErrorKind string

const (
	KindMalformed        ErrorKind = "Malformed"
	KindMalformedPattern ErrorKind = "MalformedPattern"
	KindUnknownTransform ErrorKind = "UnknownTransform"
	KindUnknownTable     ErrorKind = "UnknownTable"
	KindUnknownColumn    ErrorKind = "UnknownColumn"
	KindMissingColumns   ErrorKind = "MissingColumns"
	KindDuplicateColumn  ErrorKind = "DuplicateColumn"
	KindDuplicateEntity  ErrorKind = "DuplicateEntity"
)

// CatalogueError reports one invalid rule or an undecodable document.
// Index is the zero-based rule position, or -1 for document-level problems.
type CatalogueError struct {
	Kind    ErrorKind
	Entity  string
	Index   int
	Message string
	Err     error
}

func (e *CatalogueError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("catalogue %s: %s", e.Kind, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("catalogue rule %d (%s) %s: %s", e.Index, e.Entity, e.Kind, e.Message)
	}
	return fmt.Sprintf("catalogue rule %d %s: %s", e.Index, e.Kind, e.Message)
}

func (e *CatalogueError) Unwrap() error { return e.Err }

// IsCatalogueError reports whether err carries a CatalogueError.
func IsCatalogueError(err error) bool {
	var ce *CatalogueError
	return errors.As(err, &ce)
}

// Problems returns every CatalogueError contained in err.
func Problems(err error) []*CatalogueError {
	if err == nil {
		return nil
	}
	var out []*CatalogueError
	var walk func(error)
	walk = func(e error) {
		if ce, ok := e.(*CatalogueError); ok {
			out = append(out, ce)
			return
		}
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		if next := errors.Unwrap(e); next != nil {
			walk(next)
		}
	}
	walk(err)
	return out
}
