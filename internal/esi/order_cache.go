package esi

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eve-dealfinder/internal/logger"
)

// orderCacheEntry holds one region's order pages together with HTTP caching metadata.
type orderCacheEntry struct {
	pages   [][]MarketOrder
	etag    string    // ETag from ESI response (page 1)
	expires time.Time // parsed Expires header
}

// OrderCache is a thread-safe in-memory cache for region order books.
// It uses ETag/Expires headers from ESI to avoid re-downloading unchanged data.
// A singleflight.Group prevents duplicate in-flight fetches for the same region.
type OrderCache struct {
	mu      sync.RWMutex
	entries map[int32]*orderCacheEntry
	group   singleflight.Group
}

// NewOrderCache creates an empty order cache.
func NewOrderCache() *OrderCache {
	return &OrderCache{entries: make(map[int32]*orderCacheEntry)}
}

// Get returns cached pages if they exist and have not expired.
// Returns (pages, etag, hit); an expired entry still yields its etag.
func (oc *OrderCache) Get(regionID int32) ([][]MarketOrder, string, bool) {
	oc.mu.RLock()
	defer oc.mu.RUnlock()

	e, ok := oc.entries[regionID]
	if !ok {
		return nil, "", false
	}
	if time.Now().After(e.expires) {
		return nil, e.etag, false
	}
	return e.pages, e.etag, true
}

// Put stores pages with the given etag and expiry.
func (oc *OrderCache) Put(regionID int32, pages [][]MarketOrder, etag string, expires time.Time) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.entries[regionID] = &orderCacheEntry{pages: pages, etag: etag, expires: expires}
}

// Touch extends the expiry of an existing entry and returns its pages (used on 304).
func (oc *OrderCache) Touch(regionID int32, expires time.Time) ([][]MarketOrder, bool) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	e, ok := oc.entries[regionID]
	if !ok {
		return nil, false
	}
	e.expires = expires
	return e.pages, true
}

// FetchRegionOrderPages returns every page of a region's order book:
//  1. cached and not expired → instant return
//  2. expired with an ETag → conditional request on page 1; 304 refreshes the expiry
//  3. otherwise a full fetch that repopulates the cache
//
// Concurrent calls for the same region share one fetch.
func (c *Client) FetchRegionOrderPages(ctx context.Context, regionID int32) ([][]MarketOrder, error) {
	result, err, _ := c.orderCache.group.Do(strconv.Itoa(int(regionID)), func() (any, error) {
		return c.fetchRegionOrdersWithCache(ctx, regionID)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]MarketOrder), nil
}

func (c *Client) fetchRegionOrdersWithCache(ctx context.Context, regionID int32) ([][]MarketOrder, error) {
	pages, etag, hit := c.orderCache.Get(regionID)
	if hit {
		logger.Debug("ESI", "order cache hit", "region", regionID, "pages", len(pages))
		return pages, nil
	}

	url := regionOrdersURL(c.baseURL, regionID)

	if etag != "" {
		resp, err := c.do(ctx, request{
			method:  http.MethodGet,
			url:     withPage(url, 1),
			headers: map[string]string{"If-None-Match": etag},
		})
		if err == nil && resp.StatusCode() == http.StatusNotModified {
			if cached, ok := c.orderCache.Touch(regionID, parseExpires(resp.Header())); ok {
				logger.Debug("ESI", "order cache 304", "region", regionID)
				return cached, nil
			}
		}
	}

	pages, header, err := getPages[MarketOrder](ctx, c, url, "")
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		for i := range page {
			page[i].RegionID = regionID
		}
	}

	expires := parseExpires(header)
	c.orderCache.Put(regionID, pages, header.Get("ETag"), expires)
	logger.Debug("ESI", "order cache miss", "region", regionID, "pages", len(pages), "expires", expires.Format(time.TimeOnly))
	return pages, nil
}

// parseExpires reads the Expires header. Falls back to a 5-minute TTL,
// the usual ESI market refresh interval.
func parseExpires(h http.Header) time.Time {
	if exp := h.Get("Expires"); exp != "" {
		if t, err := time.Parse(time.RFC1123, exp); err == nil {
			return t
		}
	}
	return time.Now().Add(5 * time.Minute)
}
