package warehouse

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLocksSerialiseOverlappingSets(t *testing.T) {
	locks := newKeyLocks()
	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup
	sets := [][]string{{"Taxa|816", "Microbes|816"}, {"Microbes|816", "Taxa|816"}, {"Taxa|816"}}
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			release := locks.acquire(keys)
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			inside.Add(-1)
			release()
		}(sets[i%len(sets)])
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, locks.size(), "lock table must drain")
}

func TestKeyLocksDuplicateKeys(t *testing.T) {
	locks := newKeyLocks()
	release := locks.acquire([]string{"k", "k"})
	assert.Equal(t, 1, locks.size())
	release()
	assert.Zero(t, locks.size())
}

func TestMergeHelpers(t *testing.T) {
	patch := fillNulls(map[string]any{"a": "X", "b": nil}, map[string]any{"a": "Y", "b": "Z", "c": nil})
	assert.Equal(t, map[string]any{"b": "Z"}, map[string]any(patch))

	col, conflict := firstConflict(map[string]any{"evidence": "literature", "score": 1.0}, map[string]any{"score": int64(1), "evidence": "inferred"})
	assert.True(t, conflict)
	assert.Equal(t, "evidence", col)

	_, conflict = firstConflict(map[string]any{"score": 1.0}, map[string]any{"score": int64(1), "evidence": "x"})
	assert.False(t, conflict)
}
