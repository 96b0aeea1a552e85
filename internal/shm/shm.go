// Package shm maps the dataset-cache service's shared-memory segment into the
// client address space. The segment is a plain file under the system temp
// directory, named by the service port, with a small validated header followed
// by the server-managed block arena. Attaching is always best-effort: a client
// that cannot map the segment falls back to inline payloads.
package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// SegmentMagic identifies a dataset-cache segment file.
	SegmentMagic = "ROWCSHM\x00"

	// SegmentVersion is the current segment layout version.
	SegmentVersion = uint32(1)

	// HeaderSize is the fixed header before the block arena:
	// magic(8) | version(u32) | pad(u32) | arenaSize(u64), padded to 64.
	HeaderSize = 64
)

var (
	ErrBadMagic   = fmt.Errorf("shm: bad segment magic")
	ErrBadVersion = fmt.Errorf("shm: unsupported segment version")
	ErrBounds     = fmt.Errorf("shm: block out of bounds")
)

// Segment is a mapped shared-memory segment.
type Segment struct {
	path string
	mem  []byte
}

// SegmentPath returns the canonical segment file path for a service port.
func SegmentPath(port int32) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("rowcache-server.%d.shm", port))
}

// Path returns the file the segment was mapped from.
func (s *Segment) Path() string { return s.path }

// ArenaSize returns the usable size of the block arena.
func (s *Segment) ArenaSize() int64 { return int64(len(s.mem) - HeaderSize) }

// Base returns the full block arena. Offsets handed out by the server are
// relative to this slice.
func (s *Segment) Base() []byte { return s.mem[HeaderSize:] }

// Block returns the n bytes at arena offset off, bounds-checked.
func (s *Segment) Block(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off > s.ArenaSize()-n {
		return nil, ErrBounds
	}
	return s.mem[HeaderSize+off : HeaderSize+off+n], nil
}

// WriteBlock copies b into the arena at offset off, bounds-checked.
func (s *Segment) WriteBlock(off int64, b []byte) error {
	dst, err := s.Block(off, int64(len(b)))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

func validateHeader(mem []byte) error {
	if len(mem) < HeaderSize {
		return ErrBadMagic
	}
	if string(mem[:8]) != SegmentMagic {
		return ErrBadMagic
	}
	if binary.LittleEndian.Uint32(mem[8:12]) != SegmentVersion {
		return ErrBadVersion
	}
	arena := binary.LittleEndian.Uint64(mem[16:24])
	if arena != uint64(len(mem)-HeaderSize) {
		return ErrBadMagic
	}
	return nil
}

func putHeader(mem []byte) {
	copy(mem[:8], SegmentMagic)
	binary.LittleEndian.PutUint32(mem[8:12], SegmentVersion)
	binary.LittleEndian.PutUint64(mem[16:24], uint64(len(mem)-HeaderSize))
}
