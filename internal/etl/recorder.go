package etl

import (
	"time"

	"harmonycore/internal/transform"
)

// Recorder receives per-field outcomes and enrichment lookup results. The
// same value is usually handed to the transform pipeline as its observer.
type Recorder interface {
	transform.Observer
	ObserveField(entity string, outcome Outcome, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveField(string, Outcome, time.Duration) {}
func (nopRecorder) ObserveLookup(string, int, bool, time.Duration) {}
