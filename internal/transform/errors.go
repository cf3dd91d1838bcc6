package transform

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a per-field transform failure.
type ErrorKind string

const (
	KindEnrichmentFailed      ErrorKind = "EnrichmentFailed"
	KindConflictingEnrichment ErrorKind = "ConflictingEnrichment"
	KindMissingRequiredColumn ErrorKind = "MissingRequiredColumn"
	KindInvalidValue          ErrorKind = "InvalidValue"
	KindShapeMismatch         ErrorKind = "ShapeMismatch"
)

// TransformError reports why a chain failed for one field.
type TransformError struct {
	Kind   ErrorKind
	Entity string
	Step   string
	Column string
	Err    error
}

func (e *TransformError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "transform %s", e.Kind)
	if e.Entity != "" {
		fmt.Fprintf(&b, " entity=%s", e.Entity)
	}
	if e.Step != "" {
		fmt.Fprintf(&b, " step=%s", e.Step)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column=%s", e.Column)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransformError) Unwrap() error { return e.Err }

// AsTransformError extracts a TransformError from err.
func AsTransformError(err error) (*TransformError, bool) {
	var te *TransformError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsKind reports whether err is a TransformError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	te, ok := AsTransformError(err)
	return ok && te.Kind == kind
}

// Shape errors returned by steps handed the wrong kind of value.
var (
	errShape       = errors.New("step requires a scalar value")
	errNeedsRecord = errors.New("step requires a record")
)
