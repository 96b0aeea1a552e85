package rowcache

// Hooks are lightweight callbacks for high-signal client events.
// Implementations MUST be cheap and non-blocking; the client calls them on hot
// paths.
type Hooks interface {
	// Shared-memory attach failed after cache creation; the client continues
	// without the local bypass.
	AttachFailed(port int32, err error)

	// CreateCache observed DuplicateKey: another client finished building an
	// equivalent cache and this pipeline will skip its build phase.
	BuildBypassed(connID uint64)

	// The fire-and-forget free of a shared fetch block could not be
	// dispatched. When the fetch itself succeeded this is also surfaced as
	// the call's error.
	FreeBlockFailed(offset int64, err error)

	// The prefetch store rejected or failed a row warmup write.
	PrefetchRejected(rowID int64, err error)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) AttachFailed(int32, error)     {}
func (NopHooks) BuildBypassed(uint64)          {}
func (NopHooks) FreeBlockFailed(int64, error)  {}
func (NopHooks) PrefetchRejected(int64, error) {}
