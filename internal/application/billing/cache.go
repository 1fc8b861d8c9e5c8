package billing

import (
	"context"
	"time"
)

// StatsCache caches computed dashboard statistics. Implementations must
// treat a miss as (false, nil); a nil cache disables caching entirely.
type StatsCache interface {
	// Get loads the cached value into dest, returning true on a hit
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	// Set stores the value with a TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Delete removes a key
	Delete(ctx context.Context, key string) error
}
