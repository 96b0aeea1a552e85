//go:build unix

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Attach maps an existing segment file read/write and validates its header.
func Attach(path string) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	size := int(fi.Size())
	if size < HeaderSize {
		return nil, ErrBadMagic
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	if err := validateHeader(mem); err != nil {
		_ = unix.Munmap(mem)
		return nil, err
	}
	return &Segment{path: path, mem: mem}, nil
}

// Create builds a fresh segment file with an arena of arenaSize bytes and maps
// it. The server side and tests use this; clients only Attach.
func Create(path string, arenaSize int64) (*Segment, error) {
	if arenaSize <= 0 {
		return nil, fmt.Errorf("shm: arena size must be positive")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", path, err)
	}
	defer f.Close()

	total := int64(HeaderSize) + arenaSize
	if err := f.Truncate(total); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	putHeader(mem)
	return &Segment{path: path, mem: mem}, nil
}

// Close unmaps the segment. The backing file is left in place; its lifetime
// belongs to the server.
func (s *Segment) Close() error {
	if s.mem == nil {
		return nil
	}
	mem := s.mem
	s.mem = nil
	return unix.Munmap(mem)
}
