// Package bigcache backs the prefetch store with allegro/bigcache. TTL is
// global (LifeWindow); eviction under memory pressure drops whole shards.
package bigcache

import (
	"context"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/rowcache/prefetch"
)

type Store struct {
	c *bc.BigCache
}

var _ prefetch.Store = (*Store)(nil)

type Config struct {
	// LifeWindow is the global entry TTL.
	LifeWindow time.Duration

	// HardMaxCacheSizeMB caps memory; 0 = unlimited.
	HardMaxCacheSizeMB int

	// MaxEntrySize hints the expected row payload size in bytes.
	MaxEntrySize int
}

func New(cfg Config) (*Store, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if err == bc.ErrEntryNotFound {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (s *Store) Put(_ context.Context, key string, payload []byte, _ int64) (bool, error) {
	return true, s.c.Set(key, payload)
}

func (s *Store) Close() error { return s.c.Close() }
