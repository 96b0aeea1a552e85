package wire

import "encoding/binary"

// Row block layout, shared by the inline reply path and server-written shared
// memory blocks:
//
//	n(u32 be) | { rowID(i64 be) | vlen(u32 be) | payload(vlen) } * n
//
// A missing row is encoded with vlen 0.

// BlockRow is one row inside a row block.
type BlockRow struct {
	ID      int64
	Payload []byte
}

// EncodeRowBlock builds a row block for rows in order.
func EncodeRowBlock(rows []BlockRow) []byte {
	total := 4
	for _, r := range rows {
		total += 8 + 4 + len(r.Payload)
	}
	out := make([]byte, 0, total)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(rows)))
	out = append(out, u4[:]...)

	for _, r := range rows {
		binary.BigEndian.PutUint64(u8[:], uint64(r.ID))
		out = append(out, u8[:]...)
		binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
		out = append(out, u4[:]...)
		out = append(out, r.Payload...)
	}
	return out
}

// DecodeRowBlock parses a row block. Payload slices alias b; callers that
// outlive b (shared memory blocks freed after reconstruction) must copy.
func DecodeRowBlock(b []byte) ([]BlockRow, error) {
	if len(b) < 4 {
		return nil, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[:4]))
	off := 4
	// Each row occupies at least 12 bytes, so a count the remaining bytes
	// cannot hold is corrupt. Checked before the allocation below: the count
	// is untrusted input and must never size memory on its own.
	if n < 0 || n > (len(b)-4)/12 {
		return nil, ErrCorrupt
	}

	rows := make([]BlockRow, 0, n)
	for i := 0; i < n; i++ {
		if off+12 > len(b) {
			return nil, ErrCorrupt
		}
		id := int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return nil, ErrCorrupt
		}
		rows = append(rows, BlockRow{ID: id, Payload: b[off : off+vlen]})
		off += vlen
	}
	return rows, nil
}
