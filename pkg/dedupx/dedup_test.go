package dedupx_test

import (
	"context"
	"testing"

	"github.com/gardenledger/fieldsync/pkg/attestx"
	"github.com/gardenledger/fieldsync/pkg/dedupx"
)

// mockChecker is a fake attestation backend.
type mockChecker struct {
	exists         bool
	work           *attestx.RemoteWork
	duplicateCalls int
}

func (m *mockChecker) CheckDuplicate(_ context.Context, _ string) (bool, *attestx.RemoteWork) {
	m.duplicateCalls++
	return m.exists, m.work
}

func (m *mockChecker) CurrentSchema(_ context.Context, _ string) (string, bool) {
	return "", false
}

func (m *mockChecker) GardenStatus(_ context.Context, _ string) (attestx.GardenStatus, bool) {
	return attestx.GardenStatus{}, false
}

func TestLocalCache_AddThenCheck(t *testing.T) {
	m := newManager()
	work := map[string]any{"title": "Pruning", "garden": "0xabc"}

	m.AddToLocalCache("work-1", work)
	m.AddToLocalCache("work-1", work) // idempotent

	result := m.CheckLocalDuplicate(work)
	if !result.IsDuplicate {
		t.Fatal("expected local duplicate after add")
	}
	if len(result.ExistingItems) != 1 || result.ExistingItems[0] != "work-1" {
		t.Fatalf("expected [work-1] exactly once, got %v", result.ExistingItems)
	}
	if result.ContentHash == "" {
		t.Fatal("expected content hash in result")
	}
}

func TestLocalCache_RemoveWithWork(t *testing.T) {
	m := newManager()
	work := map[string]any{"title": "Pruning"}

	m.AddToLocalCache("work-1", work)
	m.RemoveFromLocalCache("work-1", work)

	if m.CheckLocalDuplicate(work).IsDuplicate {
		t.Fatal("expected no duplicate after removal")
	}
}

func TestLocalCache_RemoveWithoutWorkPurgesAllBuckets(t *testing.T) {
	m := newManager()

	m.AddToLocalCache("work-1", map[string]any{"title": "Pruning"})
	m.AddToLocalCache("work-1", map[string]any{"title": "Watering"})
	m.RemoveFromLocalCache("work-1", nil)

	stats := m.LocalCacheStats()
	if stats.TotalWorkItems != 0 {
		t.Fatalf("expected empty cache after purge, got %d items", stats.TotalWorkItems)
	}
}

func TestLocalCacheStats(t *testing.T) {
	m := newManager()

	m.AddToLocalCache("work-1", map[string]any{"title": "Pruning"})
	m.AddToLocalCache("work-2", map[string]any{"title": "Pruning"})
	m.AddToLocalCache("work-3", map[string]any{"title": "Watering"})

	stats := m.LocalCacheStats()
	if stats.UniqueHashes != 2 {
		t.Fatalf("expected 2 unique hashes, got %d", stats.UniqueHashes)
	}
	if stats.TotalWorkItems != 3 {
		t.Fatalf("expected 3 work items, got %d", stats.TotalWorkItems)
	}
	if stats.AverageItemsPerHash != 1.5 {
		t.Fatalf("expected average 1.5, got %v", stats.AverageItemsPerHash)
	}
}

func TestComprehensiveCheck_LocalHitShortCircuitsRemote(t *testing.T) {
	checker := &mockChecker{exists: true}
	m := dedupx.NewManager(checker, dedupx.DefaultConfig())
	work := map[string]any{"title": "Pruning"}

	m.AddToLocalCache("work-1", work)
	result := m.ComprehensiveCheck(context.Background(), work)

	if !result.IsDuplicate || result.ConflictType != dedupx.ConflictTypeExact {
		t.Fatalf("expected exact local duplicate, got %+v", result)
	}
	if result.Similarity != 1.0 {
		t.Fatalf("expected similarity 1.0, got %v", result.Similarity)
	}
	if result.ExistingWorkID != "work-1" {
		t.Fatalf("expected existing id work-1, got %q", result.ExistingWorkID)
	}
	if checker.duplicateCalls != 0 {
		t.Fatal("local hit must not trigger a remote call")
	}
}

func TestComprehensiveCheck_RemoteHitOnLocalMiss(t *testing.T) {
	checker := &mockChecker{exists: true, work: &attestx.RemoteWork{ID: "remote-5"}}
	m := dedupx.NewManager(checker, dedupx.DefaultConfig())

	result := m.ComprehensiveCheck(context.Background(), map[string]any{"title": "Pruning"})

	if !result.IsDuplicate || result.ExistingWorkID != "remote-5" {
		t.Fatalf("expected remote duplicate remote-5, got %+v", result)
	}
	if checker.duplicateCalls != 1 {
		t.Fatalf("expected exactly one remote call, got %d", checker.duplicateCalls)
	}
}

func TestComprehensiveCheck_NoDuplicate(t *testing.T) {
	checker := &mockChecker{}
	m := dedupx.NewManager(checker, dedupx.DefaultConfig())

	result := m.ComprehensiveCheck(context.Background(), map[string]any{"title": "Pruning"})
	if result.IsDuplicate {
		t.Fatalf("expected no duplicate, got %+v", result)
	}
}

func TestCheckMultipleDuplicates_LocalHitsAvoidRemoteCalls(t *testing.T) {
	checker := &mockChecker{}
	m := dedupx.NewManager(checker, dedupx.DefaultConfig())

	cached := map[string]any{"title": "Pruning"}
	fresh := map[string]any{"title": "Watering"}
	m.AddToLocalCache("work-1", cached)

	results := m.CheckMultipleDuplicates(context.Background(), []dedupx.Item{
		{ID: "a", Work: cached},
		{ID: "b", Work: fresh},
	})

	if !results["a"].IsDuplicate {
		t.Fatal("expected cached item to be a duplicate")
	}
	if results["b"].IsDuplicate {
		t.Fatal("expected fresh item to pass")
	}
	if checker.duplicateCalls != 1 {
		t.Fatalf("expected one remote call (for the fresh item only), got %d", checker.duplicateCalls)
	}
}

func TestFindSimilarWork_ExcludesExactMatches(t *testing.T) {
	m := newManager()
	work := map[string]any{"title": "Pruning"}

	m.AddToLocalCache("work-1", work)
	m.AddToLocalCache("work-2", map[string]any{"title": "Watering"})

	// Threshold 0 accepts every non-exact candidate.
	similar := m.FindSimilarWork(work, 0)
	for _, id := range similar {
		if id == "work-1" {
			t.Fatal("exact matches must be excluded from similarity results")
		}
	}

	// Threshold 1.0 on distinct hashes accepts nothing (monotonic).
	if got := m.FindSimilarWork(work, 1.0); len(got) != 0 {
		t.Fatalf("expected no candidates at threshold 1.0, got %v", got)
	}
}

func TestCheckRemoteDuplicate_NilCheckerFailsOpen(t *testing.T) {
	m := newManager()
	if m.CheckRemoteDuplicate(context.Background(), map[string]any{"title": "Pruning"}) {
		t.Fatal("nil checker must report not-a-duplicate")
	}
}
