// Package rowcache implements the client side of a distributed dataset-cache
// protocol: multiple data-loading pipelines in one session share a remote,
// possibly disk-spilling row cache, keyed by {session id, tree checksum}.
//
// Components:
//   - CacheClient: identity reconciliation (create vs. join vs. reject),
//     row I/O, and cache maintenance, safe for concurrent pipeline use.
//   - Request objects: one per RPC verb, each bundling payload serialization,
//     a blocking completion and typed result parsing.
//   - Transport: asynchronous dispatch to the service; a stock TCP transport
//     is provided, custom ones plug in via Config.Transport.
//   - Shared-memory fast path: when the service runs on the same host its
//     block arena is mapped into the client, letting row payloads and batch
//     fetch results skip serialization. Attach is best-effort.
//
// Sharing pattern:
//
//	cc, _ := rowcache.New(rowcache.Config{SessionID: 1})
//	err := cc.CreateCache(ctx, crc, true)
//	switch {
//	case errors.Is(err, rowcache.ErrDuplicateKey):
//	    // another pipeline already built this cache: skip the build phase
//	case err == nil:
//	    // build: WriteRow / WriteBuffer, then cc.BuildPhaseDone(ctx)
//	}
//	rows, _ := cc.GetRows(ctx, ids)
package rowcache
