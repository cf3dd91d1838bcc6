package observability

import (
	"expvar"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"harmonycore/internal/etl"
)

var expvarSeq uint64

var _ etl.Recorder = (*ExpvarRecorder)(nil)

// ExpvarRecorder publishes aggregate counters via expvar for deployments
// without a Prometheus scraper.
type ExpvarRecorder struct {
	name     string
	mu       sync.Mutex
	fields   map[string]map[etl.Outcome]int64
	lookups  map[string]map[string]int64
	attempts map[string]int64
	lookupMS map[string]float64
}

// ExpvarSnapshot is a read-only copy of the recorded metrics.
type ExpvarSnapshot struct {
	Fields     map[string]map[etl.Outcome]int64 `json:"fields_total"`
	Lookups    map[string]map[string]int64      `json:"lookups_total"`
	Attempts   map[string]int64                 `json:"lookup_attempts_total"`
	LookupMS   map[string]float64               `json:"lookup_duration_ms_total"`
	RecordedAt time.Time                        `json:"recorded_at"`
}

// NewExpvarRecorder publishes a recorder under name. An empty name gets a
// generated unique one. expvar names are process-global, so publishing the
// same name twice panics.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		name = fmt.Sprintf("harmonycore_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	r := &ExpvarRecorder{
		name:     name,
		fields:   make(map[string]map[etl.Outcome]int64),
		lookups:  make(map[string]map[string]int64),
		attempts: make(map[string]int64),
		lookupMS: make(map[string]float64),
	}
	expvar.Publish(name, expvar.Func(func() any { return r.Snapshot() }))
	return r
}

// Name returns the expvar export name.
func (r *ExpvarRecorder) Name() string { return r.name }

// Snapshot copies the current counters.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields := make(map[string]map[etl.Outcome]int64, len(r.fields))
	for entity, counts := range r.fields {
		fields[entity] = maps.Clone(counts)
	}
	lookups := make(map[string]map[string]int64, len(r.lookups))
	for family, counts := range r.lookups {
		lookups[family] = maps.Clone(counts)
	}
	return ExpvarSnapshot{
		Fields:     fields,
		Lookups:    lookups,
		Attempts:   maps.Clone(r.attempts),
		LookupMS:   maps.Clone(r.lookupMS),
		RecordedAt: time.Now().UTC(),
	}
}

// ObserveField implements etl.Recorder.
func (r *ExpvarRecorder) ObserveField(entity string, outcome etl.Outcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fields[entity] == nil {
		r.fields[entity] = make(map[etl.Outcome]int64, 4)
	}
	r.fields[entity][outcome]++
}

// ObserveLookup implements etl.Recorder.
func (r *ExpvarRecorder) ObserveLookup(family string, attempts int, success bool, elapsed time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookups[family] == nil {
		r.lookups[family] = make(map[string]int64, 2)
	}
	r.lookups[family][status]++
	r.attempts[family] += int64(attempts)
	r.lookupMS[family] += float64(elapsed) / float64(time.Millisecond)
}
