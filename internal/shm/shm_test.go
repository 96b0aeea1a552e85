//go:build unix

package shm

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newSegment(t *testing.T, arenaSize int64) (string, *Segment) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.shm")
	seg, err := Create(path, arenaSize)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = seg.Close() })
	return path, seg
}

func TestCreateAttachRoundTrip(t *testing.T) {
	path, creator := newSegment(t, 4096)

	if err := creator.WriteBlock(128, []byte("row payload")); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	// A second mapping of the same file sees the write.
	client, err := Attach(path)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer client.Close()

	if client.ArenaSize() != 4096 {
		t.Fatalf("arena size = %d, want 4096", client.ArenaSize())
	}
	b, err := client.Block(128, 11)
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if !bytes.Equal(b, []byte("row payload")) {
		t.Fatalf("block = %q", b)
	}

	// And writes travel the other way.
	if err := client.WriteBlock(0, []byte("back")); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	b, err = creator.Block(0, 4)
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if !bytes.Equal(b, []byte("back")) {
		t.Fatalf("block = %q", b)
	}
}

func TestBlockBounds(t *testing.T) {
	_, seg := newSegment(t, 128)

	tests := []struct {
		name string
		off  int64
		n    int64
	}{
		{"negative offset", -1, 4},
		{"negative length", 0, -1},
		{"end past arena", 120, 16},
		{"offset past arena", 256, 1},
		{"overflowing sum", 1 << 62, 1 << 62},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := seg.Block(tt.off, tt.n); !errors.Is(err, ErrBounds) {
				t.Fatalf("Block(%d, %d) = %v, want ErrBounds", tt.off, tt.n, err)
			}
		})
	}

	// The full arena is addressable.
	if _, err := seg.Block(0, 128); err != nil {
		t.Fatalf("Block(0, 128): %v", err)
	}
}

func TestAttachRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-segment")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0}, 256), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Attach(path); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("Attach = %v, want ErrBadMagic", err)
	}
}

func TestAttachRejectsVersionSkew(t *testing.T) {
	path, seg := newSegment(t, 128)
	seg.mem[8] = 0xEE // bump the version field
	if err := seg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := Attach(path); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("Attach = %v, want ErrBadVersion", err)
	}
}

func TestAttachMissingFile(t *testing.T) {
	if _, err := Attach(filepath.Join(t.TempDir(), "absent.shm")); err == nil {
		t.Fatal("Attach succeeded on a missing file")
	}
}

func TestCreateRefusesExisting(t *testing.T) {
	path, _ := newSegment(t, 128)
	if _, err := Create(path, 128); err == nil {
		t.Fatal("Create succeeded over an existing file")
	}
}

func TestSegmentPath(t *testing.T) {
	p := SegmentPath(50052)
	if !strings.HasSuffix(p, "rowcache-server.50052.shm") {
		t.Fatalf("SegmentPath = %q", p)
	}
}

func TestCloseIdempotent(t *testing.T) {
	_, seg := newSegment(t, 128)
	if err := seg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
