package wire

import "github.com/vmihailenco/msgpack/v5"

// OffsetNone is the sentinel shared-memory offset meaning "no block".
const OffsetNone int64 = -1

// CreateCacheBody identifies the cache to establish or join.
type CreateCacheBody struct {
	SessionID uint32 `msgpack:"sid"`
	Checksum  uint32 `msgpack:"crc"`
	MemSize   uint64 `msgpack:"mem"`
	Flags     uint32 `msgpack:"flags"`
}

// CreateCacheReply is returned on CodeOK and CodeDuplicateKey alike; the
// cookie is meaningful only on CodeOK.
type CreateCacheReply struct {
	ConnectionID uint64 `msgpack:"conn"`
	Cookie       string `msgpack:"cookie"`
}

// CacheRowBody carries one row into the build phase. Exactly one of Payload
// and SharedOffset is used; SharedOffset is OffsetNone for the inline path.
type CacheRowBody struct {
	Cookie       string `msgpack:"cookie"`
	RowID        int64  `msgpack:"rid"`
	SharedOffset int64  `msgpack:"off"`
	SharedSize   int64  `msgpack:"sz"`
	Payload      []byte `msgpack:"data"`
}

// CacheRowReply reports the row id the server stored the row under.
type CacheRowReply struct {
	RowID int64 `msgpack:"rid"`
}

// BatchFetchBody asks for a set of rows by id.
type BatchFetchBody struct {
	RowIDs []int64 `msgpack:"rids"`
}

// BatchFetchReply points at the result row block: inline in Block, or in
// shared memory at SharedOffset when the local bypass is active.
type BatchFetchReply struct {
	SharedOffset int64  `msgpack:"off"`
	SharedSize   int64  `msgpack:"sz"`
	Block        []byte `msgpack:"block"`
}

// AllocBlockBody requests a shared-memory block of at least Size bytes.
type AllocBlockBody struct {
	Size int64 `msgpack:"sz"`
}

// AllocBlockReply returns the offset of the granted block.
type AllocBlockReply struct {
	Offset int64 `msgpack:"off"`
}

// FreeBlockBody releases a server-owned shared-memory block.
type FreeBlockBody struct {
	Offset int64 `msgpack:"off"`
}

// StatReply describes server-side cache state.
type StatReply struct {
	MinRowID     int64 `msgpack:"min"`
	MaxRowID     int64 `msgpack:"max"`
	RowsInMemory int64 `msgpack:"mem"`
	RowsOnDisk   int64 `msgpack:"disk"`
	State        uint8 `msgpack:"state"`
}

// SchemaBody carries the column name to id mapping, both directions.
type SchemaBody struct {
	Columns map[string]int32 `msgpack:"cols"`
}

// BuildPhaseDoneBody finalizes the build phase; only the creator's cookie is
// accepted by the server.
type BuildPhaseDoneBody struct {
	Cookie string `msgpack:"cookie"`
}

// ErrorReply is the body of any response whose code is a failure.
type ErrorReply struct {
	Msg string `msgpack:"msg"`
}

// Marshal encodes a body struct for the frame payload.
func Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal decodes a frame payload into a body struct.
func Unmarshal(b []byte, v any) error {
	return msgpack.Unmarshal(b, v)
}
