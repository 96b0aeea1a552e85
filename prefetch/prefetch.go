// Package prefetch defines the optional client-side row cache consulted by
// GetRows before going to the cache service. Rows are immutable once the
// server reaches its fetch phase, so entries never need invalidation; stores
// only have to honor their own capacity and TTL policy.
//
// Implementations must be safe for concurrent use and byte-transparent: Get
// must return exactly the bytes previously passed to Put for a key.
package prefetch

import "context"

// Store is a minimal byte cache keyed by "row:<connID>:<rowID>".
type Store interface {
	// Get returns (payload, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores a row payload. cost is the payload size in bytes; stores
	// without cost accounting may ignore it. Returns ok=false when the entry
	// was rejected under pressure.
	Put(ctx context.Context, key string, payload []byte, cost int64) (ok bool, err error)

	// Close releases resources.
	Close() error
}
