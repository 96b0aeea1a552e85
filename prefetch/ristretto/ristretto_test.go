package ristretto

import (
	"bytes"
	"context"
	"testing"
)

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{MaxBytes: 1 << 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ok, err := s.Put(ctx, "row:42:1", []byte("pixels"), 6)
	if err != nil || !ok {
		t.Fatalf("Put: ok=%v err=%v", ok, err)
	}
	s.c.Wait() // flush the admission buffer before reading back

	b, ok, err := s.Get(ctx, "row:42:1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(b, []byte("pixels")) {
		t.Fatalf("payload = %q", b)
	}
}

func TestGetMiss(t *testing.T) {
	s, err := New(Config{MaxBytes: 1 << 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Get(context.Background(), "absent"); ok || err != nil {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted MaxBytes 0")
	}
}
