package storagex

import "time"

// Cleanup categories, in the order they are reclaimed by default. Synced
// jobs go first: they are pure bookkeeping. Images last: they are the only
// category a user might still want.
const (
	CategorySyncedJobs = "synced_jobs"
	CategoryCache      = "cache"
	CategoryImages     = "images"
)

// Quota is the derived storage usage snapshot, recomputed on demand and
// never persisted.
type Quota struct {
	Used       int64   `json:"used"`
	Total      int64   `json:"total"`
	Available  int64   `json:"available"`
	Percentage float64 `json:"percentage"`
}

// Breakdown splits usage by category. Any category failing to compute
// degrades the whole breakdown to zeros rather than showing partial numbers.
type Breakdown struct {
	WorkItems int64 `json:"work_items"`
	Images    int64 `json:"images"`
	Cache     int64 `json:"cache"`
	Metadata  int64 `json:"metadata"`
	Total     int64 `json:"total"`
}

// CleanupPolicy governs what gets reclaimed and when. Read and written via
// copies so callers can never alias internal state.
type CleanupPolicy struct {
	MaxAge              time.Duration `json:"max_age"`
	MaxItems            int           `json:"max_items"`
	ThresholdPercentage float64       `json:"threshold_percentage"`
	PriorityOrder       []string      `json:"priority_order"`
}

// DefaultPolicy returns the default cleanup policy.
func DefaultPolicy() CleanupPolicy {
	return CleanupPolicy{
		MaxAge:              30 * 24 * time.Hour,
		MaxItems:            1000,
		ThresholdPercentage: 80,
		PriorityOrder:       []string{CategorySyncedJobs, CategoryCache, CategoryImages},
	}
}

func (p CleanupPolicy) clone() CleanupPolicy {
	out := p
	out.PriorityOrder = append([]string(nil), p.PriorityOrder...)
	return out
}

// CategoryResult is what one category's cleanup reclaimed.
type CategoryResult struct {
	Items int   `json:"items"`
	Space int64 `json:"space"`
}

// CleanupResult summarises one cleanup pass.
type CleanupResult struct {
	ItemsRemoved int                       `json:"items_removed"`
	SpaceFreed   int64                     `json:"space_freed"`
	Categories   map[string]CategoryResult `json:"categories"`
}

// Analytics is the operator-facing storage report.
type Analytics struct {
	Quota              Quota     `json:"quota"`
	Breakdown          Breakdown `json:"breakdown"`
	NeedsCleanup       bool      `json:"needs_cleanup"`
	RecommendedActions []string  `json:"recommended_actions"`
}
