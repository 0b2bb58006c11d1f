package content

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a concurrent map of fetched bodies.
type Cache struct {
	data sync.Map
}

func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) Get(key string) (string, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *Cache) Set(key, value string) {
	c.data.Store(key, value)
}

// DefaultFetchTimeout bounds one shared fetch of a CachedSource.
const DefaultFetchTimeout = 2 * time.Minute

// CachedSource wraps a Source so each (namespace, identifier) is fetched at
// most once: concurrent callers share one in-flight fetch and successful
// bodies are remembered. Failures are not cached.
//
// The shared fetch is detached from the caller that started it and bounded by
// its own timeout; each caller stops waiting when its own context is done.
type CachedSource struct {
	next    Source
	cache   *Cache
	group   singleflight.Group
	misses  atomic.Int64
	timeout time.Duration
}

func NewCachedSource(next Source) *CachedSource {
	return &CachedSource{next: next, cache: NewCache(), timeout: DefaultFetchTimeout}
}

// SetFetchTimeout bounds each shared fetch; d <= 0 restores DefaultFetchTimeout.
func (s *CachedSource) SetFetchTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultFetchTimeout
	}
	s.timeout = d
}

func (s *CachedSource) Fetch(ctx context.Context, namespace, identifier string) (string, error) {
	key := namespace + "\x00" + identifier
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
		s.misses.Add(1)
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		body, err := s.next.Fetch(fetchCtx, namespace, identifier)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, body)
		return body, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// List forwards to the wrapped source when it can enumerate.
func (s *CachedSource) List(ctx context.Context, namespace string) ([]string, error) {
	l, ok := s.next.(Lister)
	if !ok {
		return nil, errNotLister
	}
	return l.List(ctx, namespace)
}

// Misses reports how many fetches reached the wrapped source.
func (s *CachedSource) Misses() int64 {
	return s.misses.Load()
}
