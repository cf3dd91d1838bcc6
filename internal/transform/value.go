// Package transform executes catalogue transform chains: a fold of pure and
// enriching steps over a value that starts as a scalar and may become a record.
package transform

import (
	"fmt"

	"harmonycore/pkg/domain"
)

// Value is the evolving state of a chain: a scalar or a record, never both.
type Value struct {
	scalar any
	record domain.Record
}

// Scalar wraps a scalar value.
func Scalar(v any) Value { return Value{scalar: v} }

// RecordValue wraps a record. A nil record is treated as empty.
func RecordValue(r domain.Record) Value {
	if r == nil {
		r = domain.Record{}
	}
	return Value{record: r}
}

// IsRecord reports whether the value has become a record.
func (v Value) IsRecord() bool { return v.record != nil }

// Scalar returns the scalar payload, or nil for records.
func (v Value) Scalar() any { return v.scalar }

// Record returns a copy of the record payload, or nil for scalars.
func (v Value) Record() domain.Record { return v.record.Clone() }

func (v Value) String() string {
	if v.IsRecord() {
		return fmt.Sprintf("record%v", map[string]any(v.record))
	}
	return fmt.Sprintf("%v", v.scalar)
}
