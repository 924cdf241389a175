package dedupx

import (
	"context"
	"sync"

	"github.com/gardenledger/fieldsync/pkg/attestx"
	"github.com/gardenledger/fieldsync/pkg/logx"
)

// ConflictTypeExact marks a duplicate whose content hash matches exactly.
const ConflictTypeExact = "exact"

// LocalCheckResult is the outcome of a local-cache duplicate check.
type LocalCheckResult struct {
	IsDuplicate   bool
	ExistingItems []string
	ContentHash   string
}

// CheckResult is the outcome of a comprehensive (local + remote) check.
type CheckResult struct {
	IsDuplicate    bool
	ExistingWorkID string
	Similarity     float64
	ConflictType   string
}

// CacheStats summarises the local hash cache.
type CacheStats struct {
	UniqueHashes        int
	TotalWorkItems      int
	AverageItemsPerHash float64
}

// Manager prevents committing semantically identical work twice. It keeps an
// in-memory cache of content hashes seen on this device and consults the
// attestation backend for work synced from other devices.
type Manager struct {
	checker attestx.Checker

	mu     sync.RWMutex
	config Config
	// buckets maps content hash -> work ids seen with that hash, insertion
	// ordered, no duplicates.
	buckets map[string][]string
}

// NewManager creates a deduplication manager. checker may be nil, in which
// case remote checks always report "not a duplicate".
func NewManager(checker attestx.Checker, config Config) *Manager {
	return &Manager{
		checker: checker,
		config:  config.clone(),
		buckets: make(map[string][]string),
	}
}

// Config returns a copy of the current hashing configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.clone()
}

// SetConfig replaces the hashing configuration. The existing cache keeps
// hashes computed under the old configuration; callers that change the
// ignore-list should ClearLocalCache afterwards.
func (m *Manager) SetConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config.clone()
}

// AddToLocalCache records that workID exists locally with work's content.
// Adding the same id twice for the same content is idempotent.
func (m *Manager) AddToLocalCache(workID string, work any) {
	hash := m.ContentHash(work)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.buckets[hash] {
		if existing == workID {
			return
		}
	}
	m.buckets[hash] = append(m.buckets[hash], workID)
}

// RemoveFromLocalCache drops workID from the cache. When work is non-nil only
// its hash bucket is touched; otherwise the id is purged from every bucket it
// appears under.
func (m *Manager) RemoveFromLocalCache(workID string, work any) {
	if work != nil {
		hash := m.ContentHash(work)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.buckets[hash] = removeID(m.buckets[hash], workID)
		if len(m.buckets[hash]) == 0 {
			delete(m.buckets, hash)
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, ids := range m.buckets {
		m.buckets[hash] = removeID(ids, workID)
		if len(m.buckets[hash]) == 0 {
			delete(m.buckets, hash)
		}
	}
}

// CheckLocalDuplicate reports whether work's content is already cached.
func (m *Manager) CheckLocalDuplicate(work any) LocalCheckResult {
	hash := m.ContentHash(work)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.buckets[hash]
	return LocalCheckResult{
		IsDuplicate:   len(ids) > 0,
		ExistingItems: append([]string(nil), ids...),
		ContentHash:   hash,
	}
}

// ClearLocalCache drops every cached hash.
func (m *Manager) ClearLocalCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = make(map[string][]string)
}

// LocalCacheStats summarises the cache contents.
func (m *Manager) LocalCacheStats() CacheStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := CacheStats{UniqueHashes: len(m.buckets)}
	for _, ids := range m.buckets {
		stats.TotalWorkItems += len(ids)
	}
	if stats.UniqueHashes > 0 {
		stats.AverageItemsPerHash = float64(stats.TotalWorkItems) / float64(stats.UniqueHashes)
	}
	return stats
}

// CheckRemoteDuplicate asks the attestation backend whether work's content
// hash already exists on chain. Fail-open: any backend failure reports false.
func (m *Manager) CheckRemoteDuplicate(ctx context.Context, work any) bool {
	exists, _ := m.remoteCheck(ctx, m.ContentHash(work))
	return exists
}

func (m *Manager) remoteCheck(ctx context.Context, hash string) (bool, *attestx.RemoteWork) {
	if m.checker == nil {
		logx.Debug("dedupx: no remote checker configured, assuming not a duplicate")
		return false, nil
	}
	return m.checker.CheckDuplicate(ctx, hash)
}

// ComprehensiveCheck runs the local check first and only consults the remote
// backend on a local miss. A local hit short-circuits with similarity 1.0.
//
// Note: a negative remote result never invalidates local cache entries, so a
// local entry can outlive a remote-side deletion until the cache is cleared.
func (m *Manager) ComprehensiveCheck(ctx context.Context, work any) CheckResult {
	local := m.CheckLocalDuplicate(work)
	if local.IsDuplicate {
		return CheckResult{
			IsDuplicate:    true,
			ExistingWorkID: local.ExistingItems[0],
			Similarity:     1.0,
			ConflictType:   ConflictTypeExact,
		}
	}

	exists, remote := m.remoteCheck(ctx, local.ContentHash)
	if exists {
		result := CheckResult{
			IsDuplicate:  true,
			Similarity:   1.0,
			ConflictType: ConflictTypeExact,
		}
		if remote != nil {
			result.ExistingWorkID = remote.ID
		}
		return result
	}

	return CheckResult{}
}

// Item pairs a work id with its content for batch checks.
type Item struct {
	ID   string
	Work any
}

// CheckMultipleDuplicates applies the comprehensive check per item. Local
// hits avoid redundant remote calls.
func (m *Manager) CheckMultipleDuplicates(ctx context.Context, items []Item) map[string]CheckResult {
	results := make(map[string]CheckResult, len(items))
	for _, item := range items {
		results[item.ID] = m.ComprehensiveCheck(ctx, item.Work)
	}
	return results
}

// FindSimilarWork returns cached work ids whose hash similarity to work is at
// least threshold, excluding exact matches (those are duplicates, not
// "similar"). Threshold is a ratio in [0,1]; a higher threshold is strictly
// more restrictive. Because HashSimilarity hovers near 1/16 for any two
// distinct contents, thresholds above ~0.1 effectively match nothing.
func (m *Manager) FindSimilarWork(work any, threshold float64) []string {
	hash := m.ContentHash(work)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for candidate, ids := range m.buckets {
		if candidate == hash {
			continue
		}
		if HashSimilarity(hash, candidate) >= threshold {
			out = append(out, ids...)
		}
	}
	return out
}

func removeID(ids []string, workID string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != workID {
			out = append(out, id)
		}
	}
	return out
}
