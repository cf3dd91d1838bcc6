package warehouse

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a write failure.
type ErrorKind string

const (
	KindCyclicDependency  ErrorKind = "CyclicDependency"
	KindMissingDependency ErrorKind = "MissingDependency"
	KindMissingReference  ErrorKind = "MissingReference"
	KindConflictingLink   ErrorKind = "ConflictingLink"
	KindInvalidRecord     ErrorKind = "InvalidRecord"
	KindStorage           ErrorKind = "Storage"
)

// WriteError reports why a record could not be committed. State is the
// resolution state the record was in when it failed.
type WriteError struct {
	Kind   ErrorKind
	State  State
	Table  string
	Key    string
	Column string
	Err    error
}

func (e *WriteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "write %s table=%s state=%s", e.Kind, e.Table, e.State)
	if e.Key != "" {
		fmt.Fprintf(&b, " key=%s", e.Key)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column=%s", e.Column)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *WriteError) Unwrap() error { return e.Err }

// AsWriteError extracts a WriteError from err.
func AsWriteError(err error) (*WriteError, bool) {
	var we *WriteError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// IsKind reports whether err is a WriteError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	we, ok := AsWriteError(err)
	return ok && we.Kind == kind
}

// IsFatal reports whether err must abort the whole run. A cyclic dependency
// means the catalogue or schema is corrupt.
func IsFatal(err error) bool { return IsKind(err, KindCyclicDependency) }
