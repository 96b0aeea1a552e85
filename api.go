package rowcache

import (
	"fmt"

	"github.com/unkn0wn-root/rowcache/prefetch"
)

// Config constructs a CacheClient. Only SessionID is required; everything
// else has a default.
type Config struct {
	// SessionID groups the pipelines that may share one cache.
	SessionID uint32

	// CacheMemSize caps server-side memory for this cache, in bytes.
	// 0 => unbounded.
	CacheMemSize uint64

	// Spill lets the server spill rows to disk once CacheMemSize is reached.
	Spill bool

	Host string // cache service hostname; "" => 127.0.0.1
	Port int32  // cache service port; 0 => 50052

	// NumWorkers is the transport sender worker count. 0 => 2.
	NumWorkers int32

	// PrefetchSize is the dispatch queue depth (and sizing hint for the
	// prefetch store, when one is configured). 0 => 16.
	PrefetchSize int32

	// Prefetch is an optional client-side row cache consulted by GetRows.
	// See prefetch/ristretto, prefetch/bigcache and prefetch/redis.
	Prefetch prefetch.Store

	// Transport overrides the stock TCP transport; tests and embedded
	// deployments use this.
	Transport Transport

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

// New builds a CacheClient. No connection is made until CreateCache.
func New(cfg Config) (*CacheClient, error) {
	if cfg.SessionID == 0 {
		return nil, fmt.Errorf("rowcache: session id is required")
	}

	cc := &CacheClient{
		sessionID:    cfg.SessionID,
		cacheMemSize: cfg.CacheMemSize,
		spill:        cfg.Spill,
		host:         coalesce(cfg.Host, "127.0.0.1"),
		port:         coalesce(cfg.Port, 50052),
		numWorkers:   coalesce(cfg.NumWorkers, 2),
		prefetchSize: coalesce(cfg.PrefetchSize, 16),
		prefetch:     cfg.Prefetch,
	}
	cc.log = coalesce[Logger](cfg.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](cfg.Hooks, NopHooks{})

	if cfg.Transport != nil {
		cc.comm = cfg.Transport
	} else {
		cc.comm = NewTCPTransport(TCPTransportConfig{
			Addr:       fmt.Sprintf("%s:%d", cc.host, cc.port),
			NumWorkers: int(cc.numWorkers),
			QueueDepth: int(cc.prefetchSize),
			Logger:     cc.log,
		})
	}
	return cc, nil
}

// Close shuts the transport down. Outstanding requests fail with
// ErrTransportClosed; server-side cache state is untouched.
func (cc *CacheClient) Close() error {
	if cc.prefetch != nil {
		_ = cc.prefetch.Close()
	}
	return cc.comm.Close()
}

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
