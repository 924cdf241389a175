package retryx

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Options configures the backoff policy.
type Options struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultOptions returns the standard policy: 3 attempts, 1s base delay
// doubling up to 5 minutes, with jitter.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// state tracks backoff for one key. Created on first failure, cleared on
// success. Never persisted: a process restart resets backoff, which only
// makes jobs eligible sooner.
type state struct {
	attempts    int
	lastAttempt time.Time
	nextAttempt time.Time
	delay       time.Duration
}

// Manager schedules per-key retries with capped exponential backoff.
type Manager struct {
	opts   Options
	mu     sync.Mutex
	states map[string]*state
	now    func() time.Time
	randFn func() float64
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRand injects the jitter source, for tests. The function must return
// values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(m *Manager) { m.randFn = fn }
}

// NewManager creates a retry manager with the given policy.
func NewManager(opts Options, options ...Option) *Manager {
	if opts.BackoffMultiplier <= 0 {
		opts.BackoffMultiplier = 2
	}
	m := &Manager{
		opts:   opts,
		states: make(map[string]*state),
		now:    time.Now,
		randFn: rand.Float64,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// ShouldRetry reports whether key is currently eligible for another attempt.
// A never-seen key is always eligible.
func (m *Manager) ShouldRetry(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[key]
	if !ok {
		return true
	}
	if st.attempts >= m.opts.MaxAttempts {
		return false
	}
	return !m.now().Before(st.nextAttempt)
}

// RecordAttempt updates backoff state after an attempt. Success deletes all
// state for the key; failure increments attempts and schedules the next
// eligible time at min(base * multiplier^(attempts-1), max), optionally
// scaled by a uniform jitter factor in [0.5, 1.0].
func (m *Manager) RecordAttempt(key string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		delete(m.states, key)
		return
	}

	st, ok := m.states[key]
	if !ok {
		st = &state{}
		m.states[key] = st
	}

	st.attempts++
	st.lastAttempt = m.now()

	delay := m.opts.BaseDelay
	for i := 1; i < st.attempts; i++ {
		delay = time.Duration(float64(delay) * m.opts.BackoffMultiplier)
		if delay >= m.opts.MaxDelay {
			delay = m.opts.MaxDelay
			break
		}
	}
	if delay > m.opts.MaxDelay {
		delay = m.opts.MaxDelay
	}
	if m.opts.Jitter && delay > 0 {
		delay = time.Duration(float64(delay) * (0.5 + m.randFn()*0.5))
	}

	st.delay = delay
	st.nextAttempt = st.lastAttempt.Add(delay)
}

// TimeUntilNextRetry returns how long until key becomes eligible again.
// Zero means eligible now (or never seen).
func (m *Manager) TimeUntilNextRetry(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[key]
	if !ok {
		return 0
	}
	remaining := st.nextAttempt.Sub(m.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Attempts returns how many failures have been recorded for key.
func (m *Manager) Attempts(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[key]; ok {
		return st.attempts
	}
	return 0
}

// PendingRetry describes one key waiting for its backoff to elapse.
type PendingRetry struct {
	Key     string
	RetryIn time.Duration
}

// PendingRetries lists all keys with backoff state, sorted ascending by
// remaining time.
func (m *Manager) PendingRetries() []PendingRetry {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]PendingRetry, 0, len(m.states))
	for key, st := range m.states {
		remaining := st.nextAttempt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, PendingRetry{Key: key, RetryIn: remaining})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].RetryIn < out[j].RetryIn
	})
	return out
}

// Reset clears backoff state for one key.
func (m *Manager) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
}

// ResetAll clears all backoff state.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*state)
}
