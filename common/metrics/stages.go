package metrics

import (
	"sync"
	"time"
)

// StageTimer records wall-clock durations per named pipeline stage. The
// clock is injectable so tests can assert exact durations.
type StageTimer struct {
	now func() time.Time

	mu        sync.Mutex
	durations map[string]int64
}

// NewStageTimer creates a stage timer. A nil clock uses time.Now.
func NewStageTimer(now func() time.Time) *StageTimer {
	if now == nil {
		now = time.Now
	}
	return &StageTimer{
		now:       now,
		durations: make(map[string]int64),
	}
}

// Track starts timing a stage and returns the stop function. Stopping
// twice overwrites with the longer span; distinct stages accumulate
// independently.
func (t *StageTimer) Track(stage string) func() {
	start := t.now()
	return func() {
		elapsed := t.now().Sub(start).Milliseconds()
		t.mu.Lock()
		if elapsed > t.durations[stage] {
			t.durations[stage] = elapsed
		}
		t.mu.Unlock()
	}
}

// Durations returns a copy of the recorded stage durations in ms
func (t *StageTimer) Durations() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int64, len(t.durations))
	for k, v := range t.durations {
		out[k] = v
	}
	return out
}
