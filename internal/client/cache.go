package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/alfredjeanlab/eventify/internal/listing"
	"github.com/alfredjeanlab/eventify/internal/model"
)

// DefaultCacheTTL is how long a cached page stays valid.
const DefaultCacheTTL = 30 * time.Second

// CachedSource puts a shared Redis read cache in front of another data
// source. Identical concurrent fetches are collapsed into one upstream call.
// Cache errors are logged and the fetch goes upstream. A fetch whose context
// is marked with listing.WithFresh skips the cache read and overwrites the
// entry with what the backend returned.
type CachedSource[T any] struct {
	next   listing.DataSource[T]
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *slog.Logger
	group  singleflight.Group
}

// NewCachedSource wraps next. prefix namespaces the keys of one endpoint,
// e.g. "eventify:admin-events:".
func NewCachedSource[T any](next listing.DataSource[T], client redis.UniversalClient, prefix string, ttl time.Duration, log *slog.Logger) *CachedSource[T] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedSource[T]{next: next, client: client, prefix: prefix, ttl: ttl, log: log}
}

// FetchPage returns the cached page for spec or fetches and caches it.
func (s *CachedSource[T]) FetchPage(ctx context.Context, spec model.QuerySpec) (model.Page[T], error) {
	key := s.prefix + spec.Key()
	fresh := listing.IsFresh(ctx)
	flight := key
	if fresh {
		// Never join a read that may be answered from the cache.
		flight = "fresh:" + key
	}

	// The shared call must outlive any single caller; each caller still gives
	// up as soon as its own context is done.
	ch := s.group.DoChan(flight, func() (any, error) {
		return s.load(context.WithoutCancel(ctx), key, spec, fresh)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return model.Page[T]{}, res.Err
		}
		return clonePage(res.Val.(model.Page[T])), nil
	case <-ctx.Done():
		return model.Page[T]{}, ctx.Err()
	}
}

func (s *CachedSource[T]) load(ctx context.Context, key string, spec model.QuerySpec, fresh bool) (model.Page[T], error) {
	if !fresh {
		data, err := s.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var page model.Page[T]
			uerr := json.Unmarshal(data, &page)
			if uerr == nil {
				return page, nil
			}
			s.log.Warn("client: dropping undecodable cache entry", "key", key, "err", uerr)
		case !errors.Is(err, redis.Nil):
			s.log.Warn("client: cache read failed", "key", key, "err", err)
		}
	}

	page, err := s.next.FetchPage(ctx, spec)
	if err != nil {
		return model.Page[T]{}, err
	}
	if data, err := json.Marshal(page); err != nil {
		s.log.Warn("client: encoding page for cache", "key", key, "err", err)
	} else if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Warn("client: cache write failed", "key", key, "err", err)
	}
	return page, nil
}

// Purge removes every cached page under the source's prefix.
func (s *CachedSource[T]) Purge(ctx context.Context) (int, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("deleting cache keys: %w", err)
	}
	return int(n), nil
}

// clonePage gives each caller of a shared fetch its own item slice.
func clonePage[T any](p model.Page[T]) model.Page[T] {
	items := make([]T, len(p.Items))
	copy(items, p.Items)
	p.Items = items
	return p
}
