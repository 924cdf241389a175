package storagex

import (
	"context"
	"sync"
	"time"

	"github.com/gardenledger/fieldsync/pkg/eventx"
	"github.com/gardenledger/fieldsync/pkg/fsx"
	"github.com/gardenledger/fieldsync/pkg/logx"
	"github.com/gardenledger/fieldsync/pkg/queuex"
)

const (
	// DefaultTotalBytes is the assumed quota ceiling when the platform gives
	// no better number.
	DefaultTotalBytes int64 = 512 << 20

	// cleanupInterval forces a periodic sweep even when usage looks fine.
	cleanupInterval = 24 * time.Hour

	// perJobOverheadBytes estimates the record framing around a job payload.
	perJobOverheadBytes int64 = 256

	// criticalPercentage is the high watermark for operator recommendations.
	criticalPercentage = 90
)

// Manager keeps the local footprint under quota: it measures usage by
// category and reclaims space in policy priority order when thresholds are
// crossed.
type Manager struct {
	queue *queuex.Queue
	cache CacheStore
	media fsx.Store
	bus   *eventx.Bus

	totalBytes int64
	now        func() time.Time

	mu          sync.Mutex
	policy      CleanupPolicy
	cleaning    bool
	lastCleanup time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTotalBytes sets the quota ceiling.
func WithTotalBytes(n int64) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.totalBytes = n
		}
	}
}

// WithPolicy sets the initial cleanup policy.
func WithPolicy(p CleanupPolicy) ManagerOption {
	return func(m *Manager) { m.policy = p.clone() }
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a storage manager. cache and media may be nil; their
// categories then measure and reclaim as zero. It subscribes to sync
// completions to opportunistically drop synced jobs under pressure.
func NewManager(queue *queuex.Queue, cache CacheStore, media fsx.Store, bus *eventx.Bus, options ...ManagerOption) *Manager {
	m := &Manager{
		queue:      queue,
		cache:      cache,
		media:      media,
		bus:        bus,
		totalBytes: DefaultTotalBytes,
		now:        time.Now,
		policy:     DefaultPolicy(),
	}
	for _, o := range options {
		o(m)
	}
	m.lastCleanup = m.now()

	bus.Subscribe(eventx.TopicSyncCompleted, m.onSyncCompleted)
	return m
}

// Policy returns a copy of the current cleanup policy.
func (m *Manager) Policy() CleanupPolicy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy.clone()
}

// SetPolicy replaces the cleanup policy.
func (m *Manager) SetPolicy(p CleanupPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p.clone()
}

// Quota measures current usage. Any measurement failure yields the
// conservative fallback (nothing used, default ceiling) instead of an error.
func (m *Manager) Quota(ctx context.Context) Quota {
	breakdown, err := m.measure(ctx)
	if err != nil {
		logx.WithError(err).Warn("storagex: quota measurement failed, using fallback")
		return Quota{Used: 0, Total: m.totalBytes, Available: m.totalBytes, Percentage: 0}
	}

	used := breakdown.Total
	q := Quota{Used: used, Total: m.totalBytes, Available: m.totalBytes - used}
	if q.Available < 0 {
		q.Available = 0
	}
	if m.totalBytes > 0 {
		q.Percentage = float64(used) / float64(m.totalBytes) * 100
	}
	return q
}

// Breakdown measures usage per category. If any category fails, the whole
// breakdown degrades to zeros rather than showing partial numbers.
func (m *Manager) Breakdown(ctx context.Context) Breakdown {
	breakdown, err := m.measure(ctx)
	if err != nil {
		logx.WithError(err).Warn("storagex: breakdown measurement failed, degrading to zeros")
		return Breakdown{}
	}
	return breakdown
}

func (m *Manager) measure(ctx context.Context) (Breakdown, error) {
	var b Breakdown

	jobs, err := m.queue.GetJobs(ctx, queuex.Filter{})
	if err != nil {
		return Breakdown{}, err
	}
	for i := range jobs {
		b.WorkItems += int64(len(jobs[i].Payload))
		b.Metadata += perJobOverheadBytes
		for k, v := range jobs[i].Meta {
			b.Metadata += int64(len(k) + len(v))
		}
	}

	if m.cache != nil {
		_, bytes, err := m.cache.Usage(ctx)
		if err != nil {
			return Breakdown{}, err
		}
		b.Cache = bytes
	}

	if m.media != nil {
		infos, err := m.media.List(ctx, "")
		if err != nil {
			return Breakdown{}, err
		}
		for _, info := range infos {
			if !info.IsDir {
				b.Images += info.Size
			}
		}
	}

	b.Total = b.WorkItems + b.Images + b.Cache + b.Metadata
	return b, nil
}

// ShouldPerformCleanup reports whether a cleanup pass is warranted: usage at
// or over the policy threshold, more than cleanupInterval since the last
// pass, or the estimated item count over the policy maximum.
func (m *Manager) ShouldPerformCleanup(ctx context.Context) bool {
	m.mu.Lock()
	policy := m.policy
	last := m.lastCleanup
	m.mu.Unlock()

	if m.Quota(ctx).Percentage >= policy.ThresholdPercentage {
		return true
	}
	if m.now().Sub(last) > cleanupInterval {
		return true
	}
	return m.estimateItems(ctx) > policy.MaxItems
}

func (m *Manager) estimateItems(ctx context.Context) int {
	total := 0
	if jobs, err := m.queue.GetJobs(ctx, queuex.Filter{}); err == nil {
		total += len(jobs)
	}
	if m.cache != nil {
		if items, _, err := m.cache.Usage(ctx); err == nil {
			total += items
		}
	}
	return total
}

// IsCleanupInProgress reports whether a cleanup pass is currently running.
func (m *Manager) IsCleanupInProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleaning
}

// PerformCleanup reclaims space category by category in policy priority
// order, re-checking the quota after each and stopping early once usage
// drops back under the threshold. A second concurrent call is rejected; the
// busy flag is always reset, even when a category fails.
func (m *Manager) PerformCleanup(ctx context.Context) (CleanupResult, error) {
	m.mu.Lock()
	if m.cleaning {
		m.mu.Unlock()
		return CleanupResult{}, storagexErrors.New(ErrCleanupInProgress)
	}
	m.cleaning = true
	policy := m.policy.clone()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.cleaning = false
		m.lastCleanup = m.now()
		m.mu.Unlock()
	}()

	result := CleanupResult{Categories: make(map[string]CategoryResult)}

	for _, category := range policy.PriorityOrder {
		reclaimed := m.cleanupCategory(ctx, category, policy)
		result.Categories[category] = reclaimed
		result.ItemsRemoved += reclaimed.Items
		result.SpaceFreed += reclaimed.Space

		if m.Quota(ctx).Percentage < policy.ThresholdPercentage {
			break
		}
	}

	m.bus.Publish(eventx.TopicCleanupCompleted, eventx.CleanupEvent{
		ItemsRemoved: result.ItemsRemoved,
		SpaceFreed:   result.SpaceFreed,
	})
	logx.WithFields(logx.Fields{
		"items_removed": result.ItemsRemoved,
		"space_freed":   result.SpaceFreed,
	}).Info("storagex: cleanup pass completed")

	return result, nil
}

// cleanupCategory reclaims one category. Failures and unknown categories
// degrade to zero results; a wedged category must not abort the pass.
func (m *Manager) cleanupCategory(ctx context.Context, category string, policy CleanupPolicy) CategoryResult {
	switch category {
	case CategorySyncedJobs:
		return m.cleanupSyncedJobs(ctx)
	case CategoryCache:
		return m.cleanupCache(ctx)
	case CategoryImages:
		return m.cleanupImages(ctx, policy.MaxAge)
	default:
		logx.WithField("category", category).
			Warn("storagex: unknown cleanup category, skipping")
		return CategoryResult{}
	}
}

func (m *Manager) cleanupSyncedJobs(ctx context.Context) CategoryResult {
	synced := true
	jobs, err := m.queue.GetJobs(ctx, queuex.Filter{Synced: &synced})
	if err != nil {
		logx.WithError(err).Warn("storagex: failed to measure synced jobs before cleanup")
		jobs = nil
	}
	var space int64
	for i := range jobs {
		space += int64(len(jobs[i].Payload)) + perJobOverheadBytes
	}

	removed, err := m.queue.ClearSyncedJobs(ctx)
	if err != nil {
		logx.WithError(err).Warn("storagex: failed to clear synced jobs")
		return CategoryResult{}
	}
	return CategoryResult{Items: removed, Space: space}
}

func (m *Manager) cleanupCache(ctx context.Context) CategoryResult {
	if m.cache == nil {
		return CategoryResult{}
	}
	items, bytes, err := m.cache.Clear(ctx)
	if err != nil {
		logx.WithError(err).Warn("storagex: failed to clear cache")
		return CategoryResult{}
	}
	return CategoryResult{Items: items, Space: bytes}
}

// cleanupImages removes media older than maxAge. Recent media is left alone:
// it may belong to jobs still waiting to sync.
func (m *Manager) cleanupImages(ctx context.Context, maxAge time.Duration) CategoryResult {
	if m.media == nil || maxAge <= 0 {
		return CategoryResult{}
	}

	infos, err := m.media.List(ctx, "")
	if err != nil {
		logx.WithError(err).Warn("storagex: failed to list media for cleanup")
		return CategoryResult{}
	}

	cutoff := m.now().Add(-maxAge)
	var result CategoryResult
	for _, info := range infos {
		if info.IsDir || info.ModTime.After(cutoff) {
			continue
		}
		if err := m.media.Delete(ctx, info.Path); err != nil {
			logx.WithError(err).WithField("path", info.Path).
				Warn("storagex: failed to delete stale media")
			continue
		}
		result.Items++
		result.Space += info.Size
	}
	return result
}

// Analytics produces the operator-facing report with recommendations.
func (m *Manager) Analytics(ctx context.Context) Analytics {
	quota := m.Quota(ctx)
	breakdown := m.Breakdown(ctx)
	needs := m.ShouldPerformCleanup(ctx)

	var actions []string
	if quota.Percentage >= criticalPercentage {
		actions = append(actions, "critical: storage nearly full, run cleanup now")
	} else if needs {
		actions = append(actions, "cleanup recommended")
	}
	if breakdown.Total > 0 {
		if breakdown.Cache*2 > breakdown.Total {
			actions = append(actions, "clear cache: cached data dominates usage")
		}
		if breakdown.Images*2 > breakdown.Total {
			actions = append(actions, "remove or shrink stored images")
		}
	}

	return Analytics{
		Quota:              quota,
		Breakdown:          breakdown,
		NeedsCleanup:       needs,
		RecommendedActions: actions,
	}
}

// onSyncCompleted opportunistically drops synced jobs after a flush when
// usage is over threshold. Runs off the publisher goroutine to keep flush
// passes fast.
func (m *Manager) onSyncCompleted(eventx.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		m.mu.Lock()
		threshold := m.policy.ThresholdPercentage
		m.mu.Unlock()

		if m.Quota(ctx).Percentage < threshold {
			return
		}
		if _, err := m.queue.ClearSyncedJobs(ctx); err != nil {
			logx.WithError(err).Warn("storagex: opportunistic synced-job cleanup failed")
		}
	}()
}
