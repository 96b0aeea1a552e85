package rowcache

import (
	"context"
	"errors"
	"sync"

	"github.com/unkn0wn-root/rowcache/internal/wire"
)

// Request is one transient unit of protocol work. The client builds a request,
// hands it to the Transport for asynchronous dispatch, and blocks in Wait until
// the transport completes it. Each request has exactly one outstanding
// completion; there is no retry and no cancellation at this layer.
type Request interface {
	// Verb identifies the RPC this request performs.
	Verb() wire.Verb

	// ConnectionID is the server-assigned cache the request targets
	// (0 only for CreateCache itself).
	ConnectionID() uint64

	// Serialize encodes the request body for the frame payload.
	Serialize() ([]byte, error)

	// Complete delivers the response. Called exactly once, by the transport.
	Complete(code wire.Code, body []byte)

	// Fail completes the request with a transport-level error.
	Fail(err error)

	// Wait blocks until the request is completed and returns its outcome.
	// ErrDuplicateKey is a valid terminal outcome, not a failure.
	Wait(ctx context.Context) error
}

// baseRequest implements the blocking completion machinery once; the verb
// types embed it and contribute Serialize plus a typed result parser.
type baseRequest struct {
	verb wire.Verb
	conn uint64

	// parse runs on the response body when the code is OK or DuplicateKey.
	parse func(body []byte) error

	once sync.Once
	done chan struct{}
	err  error
}

func newBase(verb wire.Verb, conn uint64) baseRequest {
	return baseRequest{verb: verb, conn: conn, done: make(chan struct{})}
}

func (r *baseRequest) Verb() wire.Verb            { return r.verb }
func (r *baseRequest) ConnectionID() uint64       { return r.conn }
func (r *baseRequest) Serialize() ([]byte, error) { return nil, nil }

func (r *baseRequest) Complete(code wire.Code, body []byte) {
	r.once.Do(func() {
		var msg string
		if code != wire.CodeOK && code != wire.CodeDuplicateKey {
			var er wire.ErrorReply
			if err := wire.Unmarshal(body, &er); err == nil {
				msg = er.Msg
			}
		}
		r.err = codeError(r.verb, code, msg)
		if (r.err == nil || errors.Is(r.err, ErrDuplicateKey)) && r.parse != nil {
			if perr := r.parse(body); perr != nil && r.err == nil {
				r.err = perr
			}
		}
		close(r.done)
	})
}

func (r *baseRequest) Fail(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *baseRequest) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// createCacheRequest establishes or joins a cache identified by
// {session id, tree checksum}.
type createCacheRequest struct {
	baseRequest
	body wire.CreateCacheBody

	reply wire.CreateCacheReply
}

func newCreateCacheRequest(sessionID, checksum uint32, memSize uint64, flags CreateCacheFlag) *createCacheRequest {
	rq := &createCacheRequest{
		baseRequest: newBase(wire.VerbCreateCache, 0),
		body: wire.CreateCacheBody{
			SessionID: sessionID,
			Checksum:  checksum,
			MemSize:   memSize,
			Flags:     uint32(flags),
		},
	}
	rq.parse = func(b []byte) error { return wire.Unmarshal(b, &rq.reply) }
	return rq
}

func (r *createCacheRequest) Serialize() ([]byte, error) { return wire.Marshal(&r.body) }

// Result returns the server-assigned connection id and the creator cookie.
// Valid only after Wait returned nil or ErrDuplicateKey.
func (r *createCacheRequest) Result() (uint64, string) {
	return r.reply.ConnectionID, r.reply.Cookie
}

// cacheRowRequest writes one row into the build phase.
type cacheRowRequest struct {
	baseRequest
	body wire.CacheRowBody

	reply wire.CacheRowReply
}

func newCacheRowRequest(conn uint64, cookie string, row Row) *cacheRowRequest {
	rq := &cacheRowRequest{
		baseRequest: newBase(wire.VerbCacheRow, conn),
		body: wire.CacheRowBody{
			Cookie:       cookie,
			RowID:        row.ID,
			SharedOffset: wire.OffsetNone,
			Payload:      row.Payload,
		},
	}
	rq.parse = func(b []byte) error { return wire.Unmarshal(b, &rq.reply) }
	return rq
}

// useSharedBlock switches the request to the shared-memory path: the payload
// already lives in the segment at off, so only the offset travels inline.
func (r *cacheRowRequest) useSharedBlock(off, size int64) {
	r.body.SharedOffset = off
	r.body.SharedSize = size
	r.body.Payload = nil
}

func (r *cacheRowRequest) Serialize() ([]byte, error) { return wire.Marshal(&r.body) }

// RowID returns the row id the server stored the row under.
func (r *cacheRowRequest) RowID() int64 { return r.reply.RowID }

// batchFetchRequest fetches a set of rows by id.
type batchFetchRequest struct {
	baseRequest
	body wire.BatchFetchBody

	reply wire.BatchFetchReply
}

func newBatchFetchRequest(conn uint64, rowIDs []int64) *batchFetchRequest {
	rq := &batchFetchRequest{
		baseRequest: newBase(wire.VerbBatchFetch, conn),
		body:        wire.BatchFetchBody{RowIDs: rowIDs},
	}
	rq.reply.SharedOffset = wire.OffsetNone
	rq.parse = func(b []byte) error { return wire.Unmarshal(b, &rq.reply) }
	return rq
}

func (r *batchFetchRequest) Serialize() ([]byte, error) { return wire.Marshal(&r.body) }

// restoreRows reconstructs the fetched rows from the reply: inline when the
// server sent the block in-band, otherwise out of shared memory at the reply
// offset. The returned freeOffset is wire.OffsetNone when no server-side block
// needs freeing. Row payloads are copied out of the shared segment since the
// block is handed back to the server right after reconstruction.
func (r *batchFetchRequest) restoreRows(base func(off, n int64) ([]byte, error)) ([]Row, int64, error) {
	freeOffset := r.reply.SharedOffset

	block := r.reply.Block
	shared := freeOffset != wire.OffsetNone
	if shared {
		if base == nil {
			return nil, freeOffset, ErrNotStarted
		}
		b, err := base(freeOffset, r.reply.SharedSize)
		if err != nil {
			return nil, freeOffset, err
		}
		block = b
	}

	decoded, err := wire.DecodeRowBlock(block)
	if err != nil {
		return nil, freeOffset, err
	}
	rows := make([]Row, len(decoded))
	for i, br := range decoded {
		payload := br.Payload
		if shared {
			payload = append([]byte(nil), br.Payload...)
		}
		rows[i] = Row{ID: br.ID, Payload: payload}
	}
	return rows, freeOffset, nil
}

// allocBlockRequest asks the server for a shared-memory block the client can
// write a row payload into.
type allocBlockRequest struct {
	baseRequest
	body wire.AllocBlockBody

	reply wire.AllocBlockReply
}

func newAllocBlockRequest(conn uint64, size int64) *allocBlockRequest {
	rq := &allocBlockRequest{
		baseRequest: newBase(wire.VerbAllocBlock, conn),
		body:        wire.AllocBlockBody{Size: size},
	}
	rq.parse = func(b []byte) error { return wire.Unmarshal(b, &rq.reply) }
	return rq
}

func (r *allocBlockRequest) Serialize() ([]byte, error) { return wire.Marshal(&r.body) }

func (r *allocBlockRequest) Offset() int64 { return r.reply.Offset }

// freeBlockRequest hands a server-owned shared block back. Dispatched
// fire-and-forget after a shared batch fetch.
type freeBlockRequest struct {
	baseRequest
	body wire.FreeBlockBody
}

func newFreeBlockRequest(conn uint64, offset int64) *freeBlockRequest {
	return &freeBlockRequest{
		baseRequest: newBase(wire.VerbFreeBlock, conn),
		body:        wire.FreeBlockBody{Offset: offset},
	}
}

func (r *freeBlockRequest) Serialize() ([]byte, error) { return wire.Marshal(&r.body) }

// getStatRequest queries server-side cache state.
type getStatRequest struct {
	baseRequest
	reply wire.StatReply
}

func newGetStatRequest(conn uint64) *getStatRequest {
	rq := &getStatRequest{baseRequest: newBase(wire.VerbGetStat, conn)}
	rq.parse = func(b []byte) error { return wire.Unmarshal(b, &rq.reply) }
	return rq
}

func (r *getStatRequest) Stat() ServiceStat {
	return ServiceStat{
		MinRowID:     r.reply.MinRowID,
		MaxRowID:     r.reply.MaxRowID,
		RowsInMemory: r.reply.RowsInMemory,
		RowsOnDisk:   r.reply.RowsOnDisk,
		State:        ServiceState(r.reply.State),
	}
}

// cacheSchemaRequest uploads the column name to id mapping.
type cacheSchemaRequest struct {
	baseRequest
	body wire.SchemaBody
}

func newCacheSchemaRequest(conn uint64, columns map[string]int32) *cacheSchemaRequest {
	return &cacheSchemaRequest{
		baseRequest: newBase(wire.VerbCacheSchema, conn),
		body:        wire.SchemaBody{Columns: columns},
	}
}

func (r *cacheSchemaRequest) Serialize() ([]byte, error) { return wire.Marshal(&r.body) }

// fetchSchemaRequest downloads the column name to id mapping.
type fetchSchemaRequest struct {
	baseRequest
	reply wire.SchemaBody
}

func newFetchSchemaRequest(conn uint64) *fetchSchemaRequest {
	rq := &fetchSchemaRequest{baseRequest: newBase(wire.VerbFetchSchema, conn)}
	rq.parse = func(b []byte) error { return wire.Unmarshal(b, &rq.reply) }
	return rq
}

func (r *fetchSchemaRequest) Columns() map[string]int32 { return r.reply.Columns }

// purgeCacheRequest drops cached rows server-side but keeps the cache.
type purgeCacheRequest struct{ baseRequest }

func newPurgeCacheRequest(conn uint64) *purgeCacheRequest {
	return &purgeCacheRequest{baseRequest: newBase(wire.VerbPurgeCache, conn)}
}

// destroyCacheRequest removes the cache server-side entirely.
type destroyCacheRequest struct{ baseRequest }

func newDestroyCacheRequest(conn uint64) *destroyCacheRequest {
	return &destroyCacheRequest{baseRequest: newBase(wire.VerbDestroyCache, conn)}
}

// buildPhaseDoneRequest moves the server from build to fetch phase. Only the
// creator's cookie is accepted.
type buildPhaseDoneRequest struct {
	baseRequest
	body wire.BuildPhaseDoneBody
}

func newBuildPhaseDoneRequest(conn uint64, cookie string) *buildPhaseDoneRequest {
	return &buildPhaseDoneRequest{
		baseRequest: newBase(wire.VerbBuildPhaseDone, conn),
		body:        wire.BuildPhaseDoneBody{Cookie: cookie},
	}
}

func (r *buildPhaseDoneRequest) Serialize() ([]byte, error) { return wire.Marshal(&r.body) }
