package redis

import (
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
)

func TestNilClientRejected(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("New = %v, want ErrNilClient", err)
	}
}

func TestCloseLeavesSharedClient(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:6379"})
	defer rdb.Close()

	s, err := New(Config{Client: rdb})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// The shared client is still usable for its owner: closing again through
	// the owner must be the first real close.
	if err := rdb.Close(); err != nil {
		t.Fatalf("owner Close: %v", err)
	}
}
