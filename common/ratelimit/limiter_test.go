package ratelimit

import (
	"testing"
	"time"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

// fakeClock advances only when told to, so window expiry is exact
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestCheck_CountsUpToLimit(t *testing.T) {
	l := NewLimiter(newFakeClock(), nopLogger{})

	for i := int64(1); i <= 3; i++ {
		res := l.Check("calls", 3, time.Minute)
		if !res.Allowed {
			t.Fatalf("request %d denied", i)
		}
		if res.Current != i {
			t.Errorf("request %d: current = %d", i, res.Current)
		}
	}

	res := l.Check("calls", 3, time.Minute)
	if res.Allowed {
		t.Fatal("request over the limit allowed")
	}
	if res.Current != 3 || res.Limit != 3 {
		t.Errorf("denial carries current=%d limit=%d", res.Current, res.Limit)
	}
	if res.RetryAfter != time.Minute {
		t.Errorf("retry after = %v, want full window", res.RetryAfter)
	}
}

func TestCheck_DenialDoesNotConsume(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(clock, nopLogger{})

	l.Check("calls", 1, time.Minute)
	l.Check("calls", 1, time.Minute)
	l.Check("calls", 1, time.Minute)

	if got := l.CurrentCount("calls"); got != 1 {
		t.Errorf("denied requests incremented the counter: %d", got)
	}
}

func TestCheck_RetryAfterShrinksWithinWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(clock, nopLogger{})

	l.Check("calls", 1, time.Minute)
	clock.Advance(40 * time.Second)

	res := l.Check("calls", 1, time.Minute)
	if res.Allowed {
		t.Fatal("allowed inside the window")
	}
	if res.RetryAfter != 20*time.Second {
		t.Errorf("retry after = %v, want 20s", res.RetryAfter)
	}
}

func TestCheck_WindowRollover(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(clock, nopLogger{})

	l.Check("calls", 1, time.Minute)
	if res := l.Check("calls", 1, time.Minute); res.Allowed {
		t.Fatal("second request in window allowed")
	}

	clock.Advance(time.Minute)

	res := l.Check("calls", 1, time.Minute)
	if !res.Allowed {
		t.Fatal("request after rollover denied")
	}
	if res.Current != 1 {
		t.Errorf("rolled-over window starts at %d", res.Current)
	}
}

func TestCheck_KeysAreIsolated(t *testing.T) {
	l := NewLimiter(newFakeClock(), nopLogger{})

	l.Check("client:a", 1, time.Minute)
	if res := l.Check("client:a", 1, time.Minute); res.Allowed {
		t.Fatal("client a over limit allowed")
	}

	if res := l.Check("client:b", 1, time.Minute); !res.Allowed {
		t.Fatal("client b throttled by client a's window")
	}
}

func TestCheckClientLimit_KeyShape(t *testing.T) {
	l := NewLimiter(newFakeClock(), nopLogger{})

	l.CheckClientLimit("10.0.0.7", 5, time.Minute)

	if got := l.CurrentCount("rate_limit:client:10.0.0.7"); got != 1 {
		t.Errorf("client counter = %d", got)
	}
}

func TestCheckTieredLimit(t *testing.T) {
	l := NewLimiter(newFakeClock(), nopLogger{})

	heavy := ConfigForTier(TierHeavy)
	for i := int64(0); i < heavy.Limit; i++ {
		if res := l.CheckTieredLimit("worker", TierHeavy); !res.Allowed {
			t.Fatalf("heavy call %d denied under the limit", i+1)
		}
	}
	if res := l.CheckTieredLimit("worker", TierHeavy); res.Allowed {
		t.Fatal("heavy tier over limit allowed")
	}

	// The simple tier has its own counter for the same scope.
	if res := l.CheckTieredLimit("worker", TierSimple); !res.Allowed {
		t.Fatal("simple tier starved by heavy tier")
	}
}

func TestResetLimit(t *testing.T) {
	l := NewLimiter(newFakeClock(), nopLogger{})

	l.Check("calls", 1, time.Minute)
	l.ResetLimit("calls")

	if res := l.Check("calls", 1, time.Minute); !res.Allowed {
		t.Fatal("reset did not clear the window")
	}
}

func TestConfigForTier_UnknownFallsBackToHeavy(t *testing.T) {
	cfg := ConfigForTier(Tier("experimental"))

	if cfg.Tier != TierHeavy {
		t.Errorf("unknown tier resolved to %s, want heavy", cfg.Tier)
	}
}
