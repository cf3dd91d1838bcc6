// Package domain defines the records exchanged between the harmonization
// layers and the persistence contract every storage backend satisfies.
package domain

import (
	"time"
)

// RawField is a single (source file, key, value) triple as produced by
// upstream ingestion.
type RawField struct {
	SourceFileID string `json:"source_file_id"`
	FieldKey     string `json:"field_key"`
	Value        string `json:"value"`
}

// Record is an attribute mapping keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// EnrichedRecord is the output of a transform chain, ready for key resolution.
type EnrichedRecord struct {
	Entity     string `json:"entity"`
	Table      string `json:"table"`
	Attributes Record `json:"attributes"`
}

// Row is a stored table row. ID is the surrogate key.
type Row struct {
	ID        int64     `json:"id"`
	Values    Record    `json:"values"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Action indicates the type of modification performed.
type Action string

// Audit actions. ActionNone marks failure entries that carry no committed write.
const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionNone   Action = "none"
)

// AuditStatus is the terminal outcome recorded for a write attempt.
type AuditStatus string

const (
	AuditCommitted AuditStatus = "committed"
	AuditFailed    AuditStatus = "failed"
)

// AuditEntry is an append-only ActivityLog record.
type AuditEntry struct {
	ID         int64       `json:"id"`
	BatchID    string      `json:"batch_id"`
	Actor      string      `json:"actor"`
	Entity     string      `json:"entity"`
	TableName  string      `json:"table_name"`
	Action     Action      `json:"action"`
	Status     AuditStatus `json:"status"`
	ErrorKind  string      `json:"error_kind,omitempty"`
	NaturalKey string      `json:"natural_key,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// StagingStatus tracks what became of a staged raw field.
type StagingStatus string

const (
	StagingReceived     StagingStatus = "received"
	StagingLoaded       StagingStatus = "loaded"
	StagingUnrecognized StagingStatus = "unrecognized"
	StagingFailed       StagingStatus = "failed"
)

// StagedField is the durable trace of a raw field in staging_kv.
type StagedField struct {
	ID           int64         `json:"id"`
	BatchID      string        `json:"batch_id"`
	SourceFileID string        `json:"source_file_id"`
	FieldKey     string        `json:"field_key"`
	Value        string        `json:"value"`
	Status       StagingStatus `json:"status"`
	Reason       string        `json:"reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Change describes a row mutation applied during a transaction.
type Change struct {
	Table  string
	Action Action
	RowID  int64
	Before Record
	After  Record
}

// Result aggregates the changes committed by a transaction.
type Result struct {
	Changes []Change
}

// Merge appends changes from another result.
func (r *Result) Merge(other Result) {
	if len(other.Changes) == 0 {
		return
	}
	r.Changes = append(r.Changes, other.Changes...)
}

// Writes returns the number of row mutations in the result.
func (r Result) Writes() int { return len(r.Changes) }
