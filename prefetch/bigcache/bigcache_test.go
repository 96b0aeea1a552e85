package bigcache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{LifeWindow: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ok, err := s.Put(ctx, "row:42:1", []byte("pixels"), 6)
	if err != nil || !ok {
		t.Fatalf("Put: ok=%v err=%v", ok, err)
	}
	b, ok, err := s.Get(ctx, "row:42:1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(b, []byte("pixels")) {
		t.Fatalf("payload = %q", b)
	}
}

func TestGetMiss(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	b, ok, err := s.Get(ctx, "row:42:404")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || b != nil {
		t.Fatalf("miss returned ok=%v b=%v", ok, b)
	}
}

func TestOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if _, err := s.Put(ctx, "k", []byte("old"), 3); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put(ctx, "k", []byte("new"), 3); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(b, []byte("new")) {
		t.Fatalf("payload = %q", b)
	}
}
