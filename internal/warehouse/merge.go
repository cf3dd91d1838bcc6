package warehouse

import (
	"sort"

	"harmonycore/pkg/domain"
)

// fillNulls returns the incoming values for columns that are absent or null
// on the existing row. Existing non-null values are never overwritten.
func fillNulls(existing, incoming domain.Record) domain.Record {
	patch := domain.Record{}
	for k, v := range incoming {
		if v == nil {
			continue
		}
		if cur, ok := existing[k]; !ok || cur == nil {
			patch[k] = v
		}
	}
	return patch
}

// firstConflict returns the first column, in name order, where both sides
// hold different non-null values.
func firstConflict(existing, incoming domain.Record) (string, bool) {
	names := make([]string, 0, len(incoming))
	for k := range incoming {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v, cur := incoming[k], existing[k]
		if v == nil || cur == nil {
			continue
		}
		if !domain.ValuesEqual(cur, v) {
			return k, true
		}
	}
	return "", false
}
