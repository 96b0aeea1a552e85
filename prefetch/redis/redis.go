// Package redis backs the prefetch store with a shared Redis instance, so
// co-located pipeline processes warm one row cache between them.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/rowcache/prefetch"
)

var ErrNilClient = errors.New("redis prefetch: nil client")

type Store struct {
	rdb         goredis.UniversalClient
	ttl         time.Duration
	closeClient bool
}

var _ prefetch.Store = (*Store)(nil)

type Config struct {
	Client goredis.UniversalClient

	// TTL expires cached rows; 0 => no expiry.
	TTL time.Duration

	// CloseClient should be true only when this store exclusively owns the
	// client.
	CloseClient bool
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Store{rdb: cfg.Client, ttl: cfg.TTL, closeClient: cfg.CloseClient}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Put(ctx context.Context, key string, payload []byte, _ int64) (bool, error) {
	if err := s.rdb.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the underlying client only when this store owns it. Safe to
// call multiple times.
func (s *Store) Close() error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
