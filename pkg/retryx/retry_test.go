package retryx_test

import (
	"testing"
	"time"

	"github.com/gardenledger/fieldsync/pkg/retryx"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(opts retryx.Options, clock *fakeClock) *retryx.Manager {
	return retryx.NewManager(opts,
		retryx.WithClock(clock.now),
		retryx.WithRand(func() float64 { return 1 }), // jitter factor 1.0
	)
}

func TestShouldRetry_UnseenKeyIsEligible(t *testing.T) {
	m := newManager(retryx.DefaultOptions(), &fakeClock{t: time.Now()})
	if !m.ShouldRetry("never-seen") {
		t.Fatal("expected unseen key to be eligible")
	}
}

func TestRecordAttempt_FailureEntersBackoff(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newManager(retryx.Options{
		MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 2,
	}, clock)

	m.RecordAttempt("job-1", false)

	if m.ShouldRetry("job-1") {
		t.Fatal("expected key to be backing off right after failure")
	}
	if got := m.TimeUntilNextRetry("job-1"); got != time.Second {
		t.Fatalf("expected 1s until retry, got %v", got)
	}

	clock.advance(time.Second)
	if !m.ShouldRetry("job-1") {
		t.Fatal("expected key to be eligible after backoff elapsed")
	}
}

func TestRecordAttempt_SuccessClearsState(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newManager(retryx.Options{
		MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 2,
	}, clock)

	m.RecordAttempt("job-1", false)
	m.RecordAttempt("job-1", false)
	m.RecordAttempt("job-1", true)

	if !m.ShouldRetry("job-1") {
		t.Fatal("expected success to fully clear failure state")
	}
	if got := m.Attempts("job-1"); got != 0 {
		t.Fatalf("expected 0 attempts after success, got %d", got)
	}
	if got := m.TimeUntilNextRetry("job-1"); got != 0 {
		t.Fatalf("expected no wait after success, got %v", got)
	}
}

func TestBackoff_MonotonicAndCapped(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newManager(retryx.Options{
		MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 4 * time.Second, BackoffMultiplier: 2,
	}, clock)

	// Delays should be 1s, 2s, 4s, 4s, 4s...
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	var prev time.Duration
	for i, expected := range want {
		m.RecordAttempt("job-1", false)
		got := m.TimeUntilNextRetry("job-1")
		if got != expected {
			t.Fatalf("attempt %d: expected delay %v, got %v", i+1, expected, got)
		}
		if got < prev {
			t.Fatalf("attempt %d: delay decreased from %v to %v", i+1, prev, got)
		}
		prev = got
		clock.advance(got)
	}
}

func TestBackoff_JitterScalesWithinRange(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := retryx.NewManager(retryx.Options{
		MaxAttempts: 3, BaseDelay: 1000 * time.Millisecond, MaxDelay: time.Minute,
		BackoffMultiplier: 2, Jitter: true,
	}, retryx.WithClock(clock.now), retryx.WithRand(func() float64 { return 0 }))

	m.RecordAttempt("job-1", false)

	// rand=0 means the jitter factor is exactly 0.5.
	if got := m.TimeUntilNextRetry("job-1"); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms jittered delay, got %v", got)
	}
}

func TestBackoff_ZeroBaseDelayAlwaysEligible(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newManager(retryx.Options{
		MaxAttempts: 5, BaseDelay: 0, MaxDelay: time.Minute, BackoffMultiplier: 2,
	}, clock)

	m.RecordAttempt("job-1", false)
	if !m.ShouldRetry("job-1") {
		t.Fatal("zero base delay should leave the key always eligible")
	}
}

func TestShouldRetry_ExhaustedUntilReset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newManager(retryx.Options{
		MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2,
	}, clock)

	for i := 0; i < 3; i++ {
		m.RecordAttempt("job-1", false)
		clock.advance(time.Minute)
	}

	if m.ShouldRetry("job-1") {
		t.Fatal("expected key to be permanently ineligible after max attempts")
	}

	clock.advance(24 * time.Hour)
	if m.ShouldRetry("job-1") {
		t.Fatal("exhausted key must stay ineligible regardless of elapsed time")
	}

	m.Reset("job-1")
	if !m.ShouldRetry("job-1") {
		t.Fatal("expected explicit reset to restore eligibility")
	}
}

func TestPendingRetries_SortedAscending(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newManager(retryx.Options{
		MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 2,
	}, clock)

	m.RecordAttempt("slow", false)
	m.RecordAttempt("slow", false) // 2s
	m.RecordAttempt("fast", false) // 1s

	pending := m.PendingRetries()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending retries, got %d", len(pending))
	}
	if pending[0].Key != "fast" || pending[1].Key != "slow" {
		t.Fatalf("expected ascending order [fast slow], got [%s %s]", pending[0].Key, pending[1].Key)
	}
}

func TestResetAll(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newManager(retryx.DefaultOptions(), clock)

	m.RecordAttempt("a", false)
	m.RecordAttempt("b", false)
	m.ResetAll()

	if len(m.PendingRetries()) != 0 {
		t.Fatal("expected no pending retries after ResetAll")
	}
}
