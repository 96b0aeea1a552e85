package rowcache

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/rowcache/codec"
	"github.com/unkn0wn-root/rowcache/internal/wire"
)

// Row is the unit of cached data. The payload is opaque to the client and the
// service; use a codec.Codec to produce and consume it.
type Row struct {
	ID      int64
	Payload []byte
}

// RowBuffer is a drainable batch of rows, popped in order by WriteBuffer.
type RowBuffer interface {
	NumRows() int
	PopRow() (Row, error)
}

// SliceBuffer adapts a row slice to RowBuffer.
type SliceBuffer struct {
	rows []Row
}

func NewSliceBuffer(rows []Row) *SliceBuffer { return &SliceBuffer{rows: rows} }

func (b *SliceBuffer) NumRows() int { return len(b.rows) }

func (b *SliceBuffer) PopRow() (Row, error) {
	if len(b.rows) == 0 {
		return Row{}, fmt.Errorf("rowcache: pop from empty row buffer")
	}
	r := b.rows[0]
	b.rows = b.rows[1:]
	return r, nil
}

// EncodeRow builds a Row whose payload is produced by c.
func EncodeRow[V any](c codec.Codec[V], id int64, v V) (Row, error) {
	payload, err := c.Encode(v)
	if err != nil {
		return Row{}, err
	}
	return Row{ID: id, Payload: payload}, nil
}

// DecodeRow decodes a fetched row's payload with c.
func DecodeRow[V any](c codec.Codec[V], r Row) (V, error) {
	return c.Decode(r.Payload)
}

// WriteRow sends one row into the build phase and returns the row id the
// server stored it under (the server assigns one when the cache was created
// with FlagGenerateRowID; otherwise it echoes row.ID).
//
// No identity lock is taken: row traffic assumes CreateCache has completed on
// this client before any writer starts.
func (cc *CacheClient) WriteRow(ctx context.Context, row Row) (int64, error) {
	rq, err := cc.newRowRequest(ctx, row)
	if err != nil {
		return 0, err
	}
	if err := cc.push(rq); err != nil {
		return 0, err
	}
	if err := rq.Wait(ctx); err != nil {
		return 0, err
	}
	return rq.RowID(), nil
}

// WriteBuffer drains buf and sends every row without waiting in between; only
// after the last dispatch does it start waiting, in submission order. The
// returned error is the first dispatch failure, or else the first wait-order
// failure; later outcomes are not reported.
func (cc *CacheClient) WriteBuffer(ctx context.Context, buf RowBuffer) error {
	if buf == nil {
		return ErrNilBuffer
	}
	n := buf.NumRows()
	if n == 0 {
		return nil
	}

	reqs := make([]*cacheRowRequest, 0, n)
	for i := 0; i < n; i++ {
		row, err := buf.PopRow()
		if err != nil {
			return err
		}
		rq, err := cc.newRowRequest(ctx, row)
		if err != nil {
			return err
		}
		if err := cc.push(rq); err != nil {
			return err
		}
		reqs = append(reqs, rq)
	}
	for _, rq := range reqs {
		if err := rq.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// newRowRequest builds a write request for row, routing the payload through
// shared memory when the local bypass is available and the server grants a
// block.
func (cc *CacheClient) newRowRequest(ctx context.Context, row Row) (*cacheRowRequest, error) {
	rq := newCacheRowRequest(cc.state.connID.Load(), cc.state.loadCookie(), row)
	if !cc.state.localBypass.Load() || len(row.Payload) == 0 {
		return rq, nil
	}

	size := int64(len(row.Payload))
	alloc := newAllocBlockRequest(cc.state.connID.Load(), size)
	if err := cc.push(alloc); err != nil {
		return nil, err
	}
	if err := alloc.Wait(ctx); err != nil {
		// Out of arena space is not fatal; fall back to the inline path.
		cc.log.Debug("shared block alloc failed, sending inline", Fields{"rowID": row.ID, "err": err})
		return rq, nil
	}
	off := alloc.Offset()
	if err := cc.comm.WriteSharedBlock(off, row.Payload); err != nil {
		// The server already granted the block; hand it back before
		// surfacing the error or the arena space leaks for good.
		free := newFreeBlockRequest(cc.state.connID.Load(), off)
		if err2 := cc.push(free); err2 != nil {
			cc.hooks.FreeBlockFailed(off, err2)
		}
		return nil, err
	}
	rq.useSharedBlock(off, size)
	return rq, nil
}

// GetRows fetches rows by id in one batch. When the service answers through
// shared memory the block is handed back with a fire-and-forget free request;
// a failure to dispatch that free is reported when the fetch itself succeeded.
func (cc *CacheClient) GetRows(ctx context.Context, rowIDs []int64) ([]Row, error) {
	if len(rowIDs) == 0 {
		return nil, ErrNoRowIDs
	}

	if cc.prefetch != nil {
		return cc.getRowsCached(ctx, rowIDs)
	}
	return cc.fetchRows(ctx, rowIDs)
}

func (cc *CacheClient) fetchRows(ctx context.Context, rowIDs []int64) ([]Row, error) {
	rq := newBatchFetchRequest(cc.state.connID.Load(), rowIDs)
	if err := cc.push(rq); err != nil {
		return nil, err
	}
	if err := rq.Wait(ctx); err != nil {
		return nil, err
	}

	rows, freeOffset, err := rq.restoreRows(cc.comm.SharedBlock)
	if freeOffset != wire.OffsetNone {
		// Hand the block back without waiting for the result.
		free := newFreeBlockRequest(cc.state.connID.Load(), freeOffset)
		if err2 := cc.push(free); err2 != nil {
			cc.hooks.FreeBlockFailed(freeOffset, err2)
			if err == nil {
				err = err2
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// getRowsCached serves what it can from the local prefetch store and fetches
// the rest, warming the store best-effort.
func (cc *CacheClient) getRowsCached(ctx context.Context, rowIDs []int64) ([]Row, error) {
	conn := cc.state.connID.Load()
	byID := make(map[int64]Row, len(rowIDs))
	missing := make([]int64, 0, len(rowIDs))
	for _, id := range rowIDs {
		payload, ok, err := cc.prefetch.Get(ctx, prefetchKey(conn, id))
		if err != nil || !ok {
			missing = append(missing, id)
			continue
		}
		byID[id] = Row{ID: id, Payload: payload}
	}

	if len(missing) > 0 {
		fetched, err := cc.fetchRows(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, r := range fetched {
			byID[r.ID] = r
			if ok, err := cc.prefetch.Put(ctx, prefetchKey(conn, r.ID), r.Payload, int64(len(r.Payload))); err != nil || !ok {
				cc.hooks.PrefetchRejected(r.ID, err)
			}
		}
	}

	out := make([]Row, 0, len(rowIDs))
	for _, id := range rowIDs {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func prefetchKey(conn uint64, rowID int64) string {
	return fmt.Sprintf("row:%d:%d", conn, rowID)
}
