// Package ristretto backs the prefetch store with dgraph-io/ristretto, whose
// byte-cost admission maps directly onto row payload sizes.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/rowcache/prefetch"
)

type Store struct {
	c   *rc.Cache
	ttl time.Duration
}

var _ prefetch.Store = (*Store)(nil)

type Config struct {
	// MaxBytes caps the total payload bytes held.
	MaxBytes int64

	// NumCounters sizes the admission frequency sketch; 0 => 10x the
	// expected row count at 1KiB average payloads.
	NumCounters int64

	// TTL expires entries; 0 => no expiry.
	TTL time.Duration

	Metrics bool
}

func New(cfg Config) (*Store, error) {
	if cfg.MaxBytes <= 0 {
		return nil, errors.New("ristretto prefetch: MaxBytes must be positive")
	}
	counters := cfg.NumCounters
	if counters <= 0 {
		counters = 10 * (cfg.MaxBytes / 1024)
		if counters < 1024 {
			counters = 1024
		}
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: counters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c, ttl: cfg.TTL}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// drop unexpected entry shape
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (s *Store) Put(_ context.Context, key string, payload []byte, cost int64) (bool, error) {
	if s.ttl > 0 {
		return s.c.SetWithTTL(key, payload, cost, s.ttl), nil
	}
	return s.c.Set(key, payload, cost), nil
}

func (s *Store) Close() error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto's hit/miss counters when enabled in Config.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
