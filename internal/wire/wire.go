// Package wire defines the frame layout spoken between a cache client and the
// dataset-cache service, plus the per-verb message bodies. Frames carry a fixed
// big-endian header followed by a msgpack body; row payloads inside bodies stay
// opaque bytes.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const version byte = 1

// Verb identifies the RPC carried by a frame.
type Verb uint8

const (
	VerbCreateCache Verb = iota + 1
	VerbPurgeCache
	VerbDestroyCache
	VerbCacheRow
	VerbBatchFetch
	VerbAllocBlock
	VerbFreeBlock
	VerbGetStat
	VerbCacheSchema
	VerbFetchSchema
	VerbBuildPhaseDone
)

func (v Verb) String() string {
	switch v {
	case VerbCreateCache:
		return "CreateCache"
	case VerbPurgeCache:
		return "PurgeCache"
	case VerbDestroyCache:
		return "DestroyCache"
	case VerbCacheRow:
		return "CacheRow"
	case VerbBatchFetch:
		return "BatchFetch"
	case VerbAllocBlock:
		return "AllocBlock"
	case VerbFreeBlock:
		return "FreeBlock"
	case VerbGetStat:
		return "GetStat"
	case VerbCacheSchema:
		return "CacheSchema"
	case VerbFetchSchema:
		return "FetchSchema"
	case VerbBuildPhaseDone:
		return "BuildPhaseDone"
	}
	return fmt.Sprintf("Verb(%d)", uint8(v))
}

// Code is the status byte carried on every response frame. Requests always
// carry CodeOK.
type Code uint8

const (
	CodeOK Code = iota
	CodeDuplicateKey
	CodeNotFound
	CodeOutOfMemory
	CodeNetError
	CodeUnexpected
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeDuplicateKey:
		return "DuplicateKey"
	case CodeNotFound:
		return "NotFound"
	case CodeOutOfMemory:
		return "OutOfMemory"
	case CodeNetError:
		return "NetError"
	case CodeUnexpected:
		return "Unexpected"
	}
	return fmt.Sprintf("Code(%d)", uint8(c))
}

var (
	ErrCorrupt = errors.New("wire: corrupt frame")

	magic4 = [...]byte{'R', 'O', 'W', 'C'}
)

// Frame header: magic(4) | ver(1) | verb(1) | code(1) | seq(u64 be) |
// conn(u64 be) | blen(u32 be), followed by blen body bytes.
const HeaderSize = 4 + 1 + 1 + 1 + 8 + 8 + 4

// MaxBodySize bounds a single frame body. Row payloads larger than this must
// travel through shared memory.
const MaxBodySize = 64 << 20

// Frame is one request or response on the stream.
type Frame struct {
	Verb Verb
	Code Code
	Seq  uint64
	Conn uint64
	Body []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode returns the framed bytes for f.
func Encode(f Frame) []byte {
	out := make([]byte, HeaderSize+len(f.Body))
	copy(out, magic4[:])
	out[4] = version
	out[5] = byte(f.Verb)
	out[6] = byte(f.Code)
	binary.BigEndian.PutUint64(out[7:15], f.Seq)
	binary.BigEndian.PutUint64(out[15:23], f.Conn)
	binary.BigEndian.PutUint32(out[23:27], uint32(len(f.Body)))
	copy(out[HeaderSize:], f.Body)
	return out
}

// Decode parses a complete frame out of b.
func Decode(b []byte) (Frame, error) {
	if len(b) < HeaderSize || !hasMagic(b) || b[4] != version {
		return Frame{}, ErrCorrupt
	}
	blen := int(binary.BigEndian.Uint32(b[23:27]))
	if blen < 0 || blen > MaxBodySize || blen != len(b)-HeaderSize {
		return Frame{}, ErrCorrupt
	}
	f := Frame{
		Verb: Verb(b[5]),
		Code: Code(b[6]),
		Seq:  binary.BigEndian.Uint64(b[7:15]),
		Conn: binary.BigEndian.Uint64(b[15:23]),
	}
	if blen > 0 {
		f.Body = b[HeaderSize : HeaderSize+blen]
	}
	return f, nil
}

// ReadFrame reads exactly one frame off a stream.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	if !hasMagic(hdr[:]) || hdr[4] != version {
		return Frame{}, ErrCorrupt
	}
	blen := int(binary.BigEndian.Uint32(hdr[23:27]))
	if blen < 0 || blen > MaxBodySize {
		return Frame{}, ErrCorrupt
	}
	buf := make([]byte, HeaderSize+blen)
	copy(buf, hdr[:])
	if blen > 0 {
		if _, err := io.ReadFull(r, buf[HeaderSize:]); err != nil {
			return Frame{}, err
		}
	}
	return Decode(buf)
}

// WriteFrame writes one frame to a stream.
func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(Encode(f))
	return err
}
