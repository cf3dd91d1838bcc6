package etl

import (
	"sort"
	"sync"
	"time"
)

// Outcome is the terminal state of one raw field.
type Outcome string

const (
	OutcomeWritten      Outcome = "written"
	OutcomeUnchanged    Outcome = "unchanged"
	OutcomeUnrecognized Outcome = "unrecognized"
	OutcomeFailed       Outcome = "failed"
)

// EntityCounts tallies fields by outcome for one catalogue entity.
type EntityCounts struct {
	Classified int `json:"classified"`
	Enriched   int `json:"enriched"`
	Written    int `json:"written"`
	Unchanged  int `json:"unchanged"`
	Failed     int `json:"failed"`
}

func (c *EntityCounts) add(o EntityCounts) {
	c.Classified += o.Classified
	c.Enriched += o.Enriched
	c.Written += o.Written
	c.Unchanged += o.Unchanged
	c.Failed += o.Failed
}

// FieldFailure records why a field was not loaded.
type FieldFailure struct {
	StagedID     int64  `json:"staged_id"`
	SourceFileID string `json:"source_file_id"`
	FieldKey     string `json:"field_key"`
	Value        string `json:"value"`
	Entity       string `json:"entity"`
	Stage        string `json:"stage"`
	Kind         string `json:"kind"`
	Error        string `json:"error"`
}

// Report summarises one batch.
type Report struct {
	BatchID      string                   `json:"batch_id"`
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at"`
	Fields       int                      `json:"fields"`
	Entities     map[string]*EntityCounts `json:"entities"`
	Unrecognized int                      `json:"unrecognized"`
	Failures     []FieldFailure           `json:"failures,omitempty"`

	mu sync.Mutex
}

func newReport(batchID string, started time.Time, fields int) *Report {
	return &Report{BatchID: batchID, StartedAt: started, Fields: fields, Entities: make(map[string]*EntityCounts)}
}

// Totals sums the per-entity counts.
func (r *Report) Totals() EntityCounts {
	var out EntityCounts
	for _, c := range r.Entities {
		out.add(*c)
	}
	return out
}

// EntityNames returns the entities seen in the batch, sorted.
func (r *Report) EntityNames() []string {
	names := make([]string, 0, len(r.Entities))
	for name := range r.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Report) update(entity string, fn func(*EntityCounts)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.Entities[entity]
	if !ok {
		c = &EntityCounts{}
		r.Entities[entity] = c
	}
	fn(c)
}

func (r *Report) unrecognized() {
	r.mu.Lock()
	r.Unrecognized++
	r.mu.Unlock()
}

func (r *Report) fail(f FieldFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, f)
	if f.Entity == "" {
		return
	}
	c, ok := r.Entities[f.Entity]
	if !ok {
		c = &EntityCounts{}
		r.Entities[f.Entity] = c
	}
	c.Failed++
}

func (r *Report) finish(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = at
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].StagedID < r.Failures[j].StagedID })
}
