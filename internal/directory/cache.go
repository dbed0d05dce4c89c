// Package directory wraps a domain.Directory with a TTL cache. Display names
// change rarely and are read on every view, so lookups are cached and
// concurrent misses for the same user collapse into one backend call.
package directory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/studysync/internal/adapter/metrics"
	"github.com/pscheid92/studysync/internal/domain"
)

type cacheEntry struct {
	displayName string
	fetchedAt   time.Time
}

type CachedDirectory struct {
	inner domain.Directory
	ttl   time.Duration
	clock clockwork.Clock
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCached(inner domain.Directory, ttl time.Duration, clock clockwork.Clock) *CachedDirectory {
	return &CachedDirectory{
		inner:   inner,
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

func (d *CachedDirectory) DisplayNameOf(ctx context.Context, userID string) (string, error) {
	d.mu.RLock()
	entry, ok := d.entries[userID]
	d.mu.RUnlock()

	if ok && d.clock.Since(entry.fetchedAt) < d.ttl {
		metrics.DirectoryCacheHits.Inc()
		return entry.displayName, nil
	}
	metrics.DirectoryCacheMisses.Inc()

	name, err, _ := d.group.Do(userID, func() (any, error) {
		name, err := d.inner.DisplayNameOf(ctx, userID)
		if err != nil {
			return "", err
		}

		d.mu.Lock()
		d.entries[userID] = cacheEntry{displayName: name, fetchedAt: d.clock.Now()}
		d.mu.Unlock()

		return name, nil
	})
	if err != nil {
		return "", err
	}
	return name.(string), nil
}

// Invalidate drops a cached entry, e.g. after a profile update.
func (d *CachedDirectory) Invalidate(userID string) {
	d.mu.Lock()
	delete(d.entries, userID)
	d.mu.Unlock()
}
