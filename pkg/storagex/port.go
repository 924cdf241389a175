package storagex

import "context"

// CacheStore abstracts the derived-data cache whose contents are always safe
// to drop. The Redis implementation lives in storagexredis.
type CacheStore interface {
	// Usage reports the current item count and approximate byte footprint.
	Usage(ctx context.Context) (items int, bytes int64, err error)

	// Clear drops all cached entries, reporting what was reclaimed.
	Clear(ctx context.Context) (items int, bytes int64, err error)
}
