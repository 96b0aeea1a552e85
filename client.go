package rowcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/rowcache/prefetch"
)

// CreateCacheFlag is the OR-combinable creation bitmask sent with CreateCache.
type CreateCacheFlag uint32

const (
	FlagNone          CreateCacheFlag = 0
	FlagSpillToDisk   CreateCacheFlag = 1 << 0
	FlagGenerateRowID CreateCacheFlag = 1 << 1
)

// ServiceState is the server-side cache lifecycle state reported by GetStat.
type ServiceState uint8

const (
	StateNone     ServiceState = iota // cache exists but has seen no traffic
	StateBuilding                     // writes accepted
	StateFetch                        // read-only; build phase finished
)

func (s ServiceState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateBuilding:
		return "building"
	case StateFetch:
		return "fetch"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// ServiceStat describes server-side cache state.
type ServiceStat struct {
	MinRowID     int64
	MaxRowID     int64
	RowsInMemory int64
	RowsOnDisk   int64
	State        ServiceState
}

// clientState is the shared mutable identity of a CacheClient.
//
// Lock discipline: mu serializes the maintenance surface - CreateCache,
// PurgeCache and DestroyCache hold it exclusively, GetStat, CacheSchema,
// FetchSchema and BuildPhaseDone hold it shared. mu is not re-entrant, so
// CreateCache must release its exclusive hold before calling GetStat.
// The fields read on the row I/O paths (connID, cookie, localBypass) are
// additionally kept in atomics because WriteRow, WriteBuffer and GetRows take
// no hold at all: they rely on the external invariant that CreateCache has
// completed before row traffic starts.
type clientState struct {
	mu sync.RWMutex

	checksum    uint32 // written once under exclusive mu
	connID      atomic.Uint64
	cookie      atomic.Pointer[string]
	localBypass atomic.Bool
}

func (s *clientState) loadCookie() string {
	if p := s.cookie.Load(); p != nil {
		return *p
	}
	return ""
}

// CacheClient lets a data-loading pipeline create, populate and read a cache
// hosted by a remote (usually co-located) dataset-cache service, sharing it
// with other pipelines of the same session whose tree checksum matches.
//
// A single CacheClient may be used by many pipeline goroutines concurrently.
type CacheClient struct {
	sessionID    uint32
	cacheMemSize uint64
	spill        bool
	host         string
	port         int32
	numWorkers   int32
	prefetchSize int32

	state clientState

	comm     Transport
	prefetch prefetch.Store
	log      Logger
	hooks    Hooks
}

// CreateCache establishes the cache for treeChecksum, or joins one another
// pipeline of the same session already established.
//
// Identity rules:
//   - A connection already established with a different checksum is rejected
//     with *IdentityError; nothing is mutated and nothing is sent.
//   - A connection already established with the same checksum re-checks the
//     server: ErrDuplicateKey is returned when the server has finished its
//     build phase, telling the caller to skip building; nil means the cache
//     is still being built and this pipeline builds alongside the creator.
//   - With no connection yet, the checksum is stored, the transport started
//     and a create request sent. The reply status comes back verbatim,
//     including ErrDuplicateKey; the connection id is stored on either
//     outcome, the cookie only on nil (the first creator keeps it).
//
// generateRowID asks the server to assign row ids during the build phase.
func (cc *CacheClient) CreateCache(ctx context.Context, treeChecksum uint32, generateRowID bool) error {
	cc.state.mu.Lock()

	if cc.state.connID.Load() != 0 {
		if cc.state.checksum != treeChecksum {
			have := cc.state.checksum
			cc.state.mu.Unlock()
			return &IdentityError{Have: have, Got: treeChecksum}
		}
		// GetStat needs a shared hold on the same lock and mu is not
		// re-entrant: release the exclusive hold first.
		cc.state.mu.Unlock()
		stat, err := cc.GetStat(ctx)
		if err != nil {
			return err
		}
		if stat.State == StateFetch {
			cc.hooks.BuildBypassed(cc.state.connID.Load())
			return ErrDuplicateKey
		}
		return nil
	}
	defer cc.state.mu.Unlock()

	cc.state.checksum = treeChecksum
	flags := FlagNone
	if cc.spill {
		flags |= FlagSpillToDisk
	}
	if generateRowID {
		flags |= FlagGenerateRowID
	}

	if err := cc.comm.Start(ctx); err != nil {
		return err
	}
	rq := newCreateCacheRequest(cc.sessionID, treeChecksum, cc.cacheMemSize, flags)
	if err := cc.push(rq); err != nil {
		return err
	}

	err := rq.Wait(ctx)
	if err == nil || errors.Is(err, ErrDuplicateKey) {
		connID, cookie := rq.Result()
		cc.state.connID.Store(connID)
		if err == nil {
			// Only the call that actually created the cache gets the build
			// cookie; a later joiner must not clobber it.
			cc.state.cookie.Store(&cookie)
		} else {
			cc.hooks.BuildBypassed(connID)
		}

		ok, aerr := cc.comm.AttachSharedMemory(cc.port)
		cc.state.localBypass.Store(ok && aerr == nil)
		if aerr != nil {
			cc.hooks.AttachFailed(cc.port, aerr)
			cc.log.Warn("shared memory attach failed, local bypass disabled", Fields{"port": cc.port, "err": aerr})
		}

		cc.log.Info("cache connection established", Fields{
			"session":  cc.sessionID,
			"checksum": treeChecksum,
			"connID":   connID,
			"bypass":   cc.state.localBypass.Load(),
		})
	}
	// ErrDuplicateKey travels back to the caller untouched: it has to decide
	// whether to run its build phase.
	return err
}

// PurgeCache drops the cached rows server-side but keeps the cache usable for
// a rebuild.
func (cc *CacheClient) PurgeCache(ctx context.Context) error {
	cc.state.mu.Lock()
	defer cc.state.mu.Unlock()
	rq := newPurgeCacheRequest(cc.state.connID.Load())
	if err := cc.push(rq); err != nil {
		return err
	}
	return rq.Wait(ctx)
}

// DestroyCache removes the cache server-side entirely. Client-local identity
// is untouched; the owning session tears the client itself down.
func (cc *CacheClient) DestroyCache(ctx context.Context) error {
	cc.state.mu.Lock()
	defer cc.state.mu.Unlock()
	rq := newDestroyCacheRequest(cc.state.connID.Load())
	if err := cc.push(rq); err != nil {
		return err
	}
	return rq.Wait(ctx)
}

// GetStat queries server-side cache state.
func (cc *CacheClient) GetStat(ctx context.Context) (ServiceStat, error) {
	cc.state.mu.RLock()
	defer cc.state.mu.RUnlock()
	rq := newGetStatRequest(cc.state.connID.Load())
	if err := cc.push(rq); err != nil {
		return ServiceStat{}, err
	}
	if err := rq.Wait(ctx); err != nil {
		return ServiceStat{}, err
	}
	return rq.Stat(), nil
}

// CacheSchema uploads the column name to id mapping.
func (cc *CacheClient) CacheSchema(ctx context.Context, columns map[string]int32) error {
	if columns == nil {
		return ErrNilSchema
	}
	cc.state.mu.RLock()
	defer cc.state.mu.RUnlock()
	rq := newCacheSchemaRequest(cc.state.connID.Load(), columns)
	if err := cc.push(rq); err != nil {
		return err
	}
	return rq.Wait(ctx)
}

// FetchSchema downloads the column name to id mapping.
func (cc *CacheClient) FetchSchema(ctx context.Context) (map[string]int32, error) {
	cc.state.mu.RLock()
	defer cc.state.mu.RUnlock()
	rq := newFetchSchemaRequest(cc.state.connID.Load())
	if err := cc.push(rq); err != nil {
		return nil, err
	}
	if err := rq.Wait(ctx); err != nil {
		return nil, err
	}
	return rq.Columns(), nil
}

// BuildPhaseDone tells the server the build phase is complete, moving the
// cache to its read-only fetch phase. Only the creator's cookie is accepted.
func (cc *CacheClient) BuildPhaseDone(ctx context.Context) error {
	cc.state.mu.RLock()
	defer cc.state.mu.RUnlock()
	rq := newBuildPhaseDoneRequest(cc.state.connID.Load(), cc.state.loadCookie())
	if err := cc.push(rq); err != nil {
		return err
	}
	return rq.Wait(ctx)
}

func (cc *CacheClient) push(rq Request) error { return cc.comm.Dispatch(rq) }

// SupportLocalBypass reports whether the shared-memory fast path is active.
func (cc *CacheClient) SupportLocalBypass() bool { return cc.state.localBypass.Load() }

// ConnectionID returns the server-assigned cache id; 0 before CreateCache
// succeeds.
func (cc *CacheClient) ConnectionID() uint64 { return cc.state.connID.Load() }

// SessionID returns the session this client was constructed for.
func (cc *CacheClient) SessionID() uint32 { return cc.sessionID }

// String renders a human-readable diagnostic dump. Informational only, not a
// wire contract.
func (cc *CacheClient) String() string {
	cc.state.mu.RLock()
	checksum := cc.state.checksum
	cc.state.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "  Session id: %d\n", cc.sessionID)
	fmt.Fprintf(&b, "  Tree checksum: %d\n", checksum)
	fmt.Fprintf(&b, "  Server connection id: %d\n", cc.state.connID.Load())
	fmt.Fprintf(&b, "  Cache mem size: %d\n", cc.cacheMemSize)
	fmt.Fprintf(&b, "  Spilling: %t\n", cc.spill)
	fmt.Fprintf(&b, "  Hostname: %s\n", cc.host)
	fmt.Fprintf(&b, "  Port: %d\n", cc.port)
	fmt.Fprintf(&b, "  Number of rpc workers: %d\n", cc.numWorkers)
	fmt.Fprintf(&b, "  Prefetch size: %d\n", cc.prefetchSize)
	fmt.Fprintf(&b, "  Local bypass: %t", cc.state.localBypass.Load())
	return b.String()
}
