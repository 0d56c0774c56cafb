package query

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a cache entry stays valid after a successful fetch.
const DefaultTTL = 5 * time.Minute

// State is the read-only view handed to presentation layers. Err carries the
// last fetch failure as data, never as an exception: stale-but-present data
// with an error banner always beats a blank state.
type State[T any] struct {
	Data      []T
	PageInfo  PageInfo
	LastFetch time.Time
	Err       string
}

// Cache serves paginated, filtered, sorted views of one remote collection with
// time-bounded validity and fetch deduplication. Each collection gets its own
// Cache; entries are independent, so there is no cross-collection locking.
//
// Invalidation keys by collection only, not by the filter/sort/page combination:
// returning to a previously viewed page pays a full refetch. This is a
// deliberate policy, not an oversight.
type Cache[T any] struct {
	fetcher Fetcher[T]
	ttl     time.Duration

	mu      sync.Mutex
	params  Params
	data    []T
	info    PageInfo
	last    time.Time
	hasData bool
	errMsg  string

	// non-nil while a fetch is in flight; closed when it completes. Set
	// synchronously before the first suspension point so concurrent Loads
	// collapse into a single network fetch.
	inflight chan struct{}
	// bumped by invalidate(). A fetch that started under an older generation
	// describes parameters that are no longer current and its result is
	// discarded on write-back.
	gen uint64

	now func() time.Time
}

// NewCache creates a cache over one collection. ttl <= 0 uses DefaultTTL.
func NewCache[T any](fetcher Fetcher[T], ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache[T]{
		fetcher: fetcher,
		ttl:     ttl,
		params: Params{
			Pagination: Pagination{Page: 1, PageSize: 10},
			Sort:       Sort{Field: "timestamp", Direction: DirectionDesc},
		},
		now: time.Now,
	}
	return c
}

// Load fetches the collection if the cache entry is stale or absent. A valid
// entry makes Load a no-op: this is the dedup mechanism when many consumers
// call Load at once. While a fetch is in flight, further Loads wait for it
// rather than issuing a second request.
//
// On fetch failure the entry keeps its last-known-good value and the error is
// surfaced through State().Err; Load itself returns the error for callers that
// want it immediately.
func (c *Cache[T]) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.valid() {
		c.mu.Unlock()
		return nil
	}
	if c.inflight != nil {
		// single-flight: ride on the in-progress fetch
		wait := c.inflight
		c.mu.Unlock()
		select {
		case <-wait:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	c.inflight = done
	params := c.params
	gen := c.gen
	c.mu.Unlock()

	resp, err := c.fetcher.Fetch(ctx, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	close(done)
	c.inflight = nil
	if gen != c.gen {
		// a setter invalidated the entry mid-fetch: this response was fetched
		// under the old parameters, so writing it back would re-validate the
		// entry with data the caller no longer asked for. Drop it and leave
		// the entry invalid; the next Load fetches with the current params.
		return nil
	}
	if err != nil {
		// keep last-known-good data; surface the failure as state
		c.errMsg = err.Error()
		logger.Warn().Err(err).Msg("collection fetch failed, serving stale data")
		return err
	}
	c.data = resp.Data
	c.info = resp.Pagination
	c.last = c.now()
	c.hasData = true
	c.errMsg = ""
	return nil
}

func (c *Cache[T]) valid() bool {
	return c.hasData && c.now().Sub(c.last) < c.ttl
}

// SetFilters replaces the filter set, resets the page to 1 and invalidates the
// entry. Returns true when a reload is needed; the orchestrating layer invokes
// the reload exactly once, keeping the single-flight invariant auditable.
func (c *Cache[T]) SetFilters(f Filters) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.params.Filters == f {
		return false
	}
	c.params.Filters = f
	c.params.Pagination.Page = 1
	c.invalidate()
	return true
}

// SetPagination merges the page/pageSize update and invalidates. The page is
// whatever the caller asked for: pagination changes never reset to page 1.
func (c *Cache[T]) SetPagination(p Pagination) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := c.params.Pagination
	if p.Page > 0 {
		merged.Page = p.Page
	}
	if p.PageSize > 0 {
		merged.PageSize = p.PageSize
	}
	if merged == c.params.Pagination {
		return false
	}
	c.params.Pagination = merged
	c.invalidate()
	return true
}

// SetSort changes the sort order and invalidates. The current page is kept:
// re-sorting page 3 should not silently jump the user back to page 1.
func (c *Cache[T]) SetSort(s Sort) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.params.Sort == s {
		return false
	}
	c.params.Sort = s
	c.invalidate()
	return true
}

// ResetFilters clears all filters, goes back to page 1 and invalidates.
func (c *Cache[T]) ResetFilters() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.Filters = Filters{}
	c.params.Pagination.Page = 1
	c.invalidate()
	return true
}

// must hold the lock
func (c *Cache[T]) invalidate() {
	c.gen++
	c.hasData = false
	c.data = nil
	c.info = PageInfo{}
	c.last = time.Time{}
}

// Params returns the current query parameters.
func (c *Cache[T]) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// State returns the current entry for presentation. After a failed fetch, Data
// still holds the last-known-good page and Err describes the failure.
func (c *Cache[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State[T]{
		Data:      c.data,
		PageInfo:  c.info,
		LastFetch: c.last,
		Err:       c.errMsg,
	}
}
