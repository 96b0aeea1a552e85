//go:build !unix

package shm

import "fmt"

var errUnsupported = fmt.Errorf("shm: shared memory not supported on this platform")

// Attach always fails on platforms without mmap support; callers treat this as
// "local bypass unavailable".
func Attach(string) (*Segment, error) { return nil, errUnsupported }

// Create always fails on platforms without mmap support.
func Create(string, int64) (*Segment, error) { return nil, errUnsupported }

// Close is a no-op for the stub.
func (s *Segment) Close() error { return nil }
