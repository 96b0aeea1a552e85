package rowcache

import "context"

// Transport moves requests to the dataset-cache service and completes them
// when a response arrives. Dispatch is asynchronous; the caller blocks on the
// request's own Wait. Timeouts and reconnect policy, if any, live inside the
// transport, not in the client.
//
// Implementations must be safe for concurrent use and must complete every
// dispatched request exactly once, including on shutdown.
type Transport interface {
	// Start brings up the receiving side. Idempotent.
	Start(ctx context.Context) error

	// Dispatch hands off a request for asynchronous delivery. A nil return
	// means the request was accepted and will eventually be completed.
	Dispatch(rq Request) error

	// AttachSharedMemory maps the co-located service's segment for the given
	// port. Best-effort: (false, err) disables the local bypass and is not a
	// failure of the transport.
	AttachSharedMemory(port int32) (bool, error)

	// SharedBlock returns n bytes at arena offset off of the attached
	// segment. Valid only after a successful AttachSharedMemory.
	SharedBlock(off, n int64) ([]byte, error)

	// WriteSharedBlock copies b into the attached segment at arena offset
	// off. Valid only after a successful AttachSharedMemory.
	WriteSharedBlock(off int64, b []byte) error

	// Close tears the transport down and fails outstanding requests with
	// ErrTransportClosed.
	Close() error
}
