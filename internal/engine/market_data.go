package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"eve-dealfinder/internal/esi"
	"eve-dealfinder/internal/logger"
	"eve-dealfinder/internal/metrics"
	"eve-dealfinder/internal/pool"
)

// MarketSource is the ESI surface MarketData reads from. *esi.Client
// satisfies it.
type MarketSource interface {
	FetchRegionOrderPages(ctx context.Context, regionID int32) ([][]esi.MarketOrder, error)
	FetchStructureOrderPages(ctx context.Context, structureID int64, accessToken string) ([][]esi.MarketOrder, error)
	FetchMarketHistory(ctx context.Context, regionID, typeID int32) ([]esi.HistoryEntry, error)
	FetchMarketTypeIDs(ctx context.Context, regionID int32) ([]int32, error)
	ResolveNames(ctx context.Context, ids []int32) (map[int32]string, error)
}

// MarketDataOptions configures MarketData. Zero fields take defaults.
type MarketDataOptions struct {
	Concurrency int
	MaxRetries  int
	HistoryTTL  time.Duration
}

// HistoryReport counts where the stats of one HistoricalStats call came from.
type HistoryReport struct {
	Memory   int `json:"memory"`
	Store    int `json:"store"`
	Fetched  int `json:"fetched"`
	NotFound int `json:"not_found"`
	Failed   int `json:"failed"`
}

type statSource int

const (
	fromMemory statSource = iota
	fromStore
	fromESI
	fromNotFound
)

func (s statSource) String() string {
	switch s {
	case fromMemory:
		return "memory"
	case fromStore:
		return "store"
	case fromNotFound:
		return "not_found"
	}
	return "esi"
}

type resolvedStat struct {
	stat   HistoricalStat
	source statSource
}

// MarketData fetches live prices and historical stats for one market.
type MarketData struct {
	source MarketSource
	tokens esi.TokenSource
	store  KeyValueStore // nil disables the persisted tier
	memory *StatCache
	pool   *pool.Pool[resolvedStat]
	ttl    time.Duration
	now    func() time.Time
}

// NewMarketData wires a fetcher. memory is the caller-owned in-memory tier.
func NewMarketData(source MarketSource, tokens esi.TokenSource, store KeyValueStore, memory *StatCache, opts MarketDataOptions) *MarketData {
	if opts.HistoryTTL <= 0 {
		opts.HistoryTTL = DefaultHistoryTTL
	}
	if memory == nil {
		memory = NewStatCache()
	}
	return &MarketData{
		source: source,
		tokens: tokens,
		store:  store,
		memory: memory,
		pool: pool.New[resolvedStat](pool.Options{
			Name:        "history",
			Concurrency: opts.Concurrency,
			MaxRetries:  opts.MaxRetries,
		}),
		ttl: opts.HistoryTTL,
		now: time.Now,
	}
}

// CurrentPrices summarises the live order book of the character's market.
// A structure is read through its own authenticated endpoint; a station or
// region-wide market comes from the region's order book.
func (m *MarketData) CurrentPrices(ctx context.Context, loc Location) (map[int32]PriceSummary, error) {
	var (
		pages [][]esi.MarketOrder
		err   error
	)
	if loc.StructureID != 0 {
		token, terr := m.accessToken(ctx)
		if terr != nil {
			return nil, terr
		}
		pages, err = m.source.FetchStructureOrderPages(ctx, loc.StructureID, token)
	} else {
		pages, err = m.source.FetchRegionOrderPages(ctx, loc.RegionID)
	}
	if err != nil {
		return nil, fmt.Errorf("current prices: %w", err)
	}

	filter := loc.MarketLocationID()
	var out map[int32]PriceSummary
	for _, page := range pages {
		out = MergeSummaries(out, SummarizeOrders(page, filter))
	}
	if out == nil {
		out = map[int32]PriceSummary{}
	}
	return out, nil
}

// MarketTypes lists the named, sellable types with an active order in the
// region, ordered by type ID.
func (m *MarketData) MarketTypes(ctx context.Context, regionID int32) ([]TradableType, error) {
	ids, err := m.source.FetchMarketTypeIDs(ctx, regionID)
	if err != nil {
		return nil, err
	}
	names, err := m.source.ResolveNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	types := lo.FilterMap(lo.Uniq(ids), func(id int32, _ int) (TradableType, bool) {
		name, ok := names[id]
		return TradableType{TypeID: id, TypeName: name}, ok && !IsMarketDisabledTypeID(id)
	})
	sort.Slice(types, func(i, j int) bool { return types[i].TypeID < types[j].TypeID })
	return types, nil
}

// HistoricalStats resolves a stat per type through the pool. Types whose
// fetch keeps failing are logged and left out. Authentication and invariant
// errors abort the whole batch.
func (m *MarketData) HistoricalStats(ctx context.Context, regionID int32, typeIDs []int32) (map[int32]HistoricalStat, HistoryReport, error) {
	var report HistoryReport

	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	ids := lo.Uniq(typeIDs)
	futures := make([]*pool.Future[resolvedStat], len(ids))
	for i, typeID := range ids {
		futures[i] = m.pool.Submit(runCtx, func(ctx context.Context) (resolvedStat, error) {
			if err := ctx.Err(); err != nil {
				return resolvedStat{}, pool.Permanent(err)
			}
			r, err := m.resolveStat(ctx, regionID, typeID)
			switch {
			case err == nil:
				return r, nil
			case isFatal(err):
				abort(err)
				return r, pool.Permanent(err)
			case ctx.Err() != nil:
				return r, pool.Permanent(err)
			}
			return r, err
		})
	}

	out := make(map[int32]HistoricalStat, len(ids))
	for i, f := range futures {
		r, err := f.Wait(runCtx)
		if runCtx.Err() != nil {
			return nil, report, context.Cause(runCtx)
		}
		if err != nil {
			report.Failed++
			metrics.HistoryLookups.WithLabelValues("failed").Inc()
			logger.Warn("History", "dropping type after retries",
				"type_id", ids[i], "attempts", f.Attempts(), logger.Err(err))
			continue
		}
		switch r.source {
		case fromMemory:
			report.Memory++
		case fromStore:
			report.Store++
		case fromNotFound:
			report.NotFound++
		default:
			report.Fetched++
		}
		metrics.HistoryLookups.WithLabelValues(r.source.String()).Inc()
		out[ids[i]] = r.stat
	}
	return out, report, nil
}

func isFatal(err error) bool {
	return errors.Is(err, esi.ErrUnauthorized) || errors.Is(err, ErrInvariant)
}

func (m *MarketData) resolveStat(ctx context.Context, regionID, typeID int32) (resolvedStat, error) {
	now := m.now()
	if e, ok := m.memory.Get(regionID, typeID); ok && e.Fresh(now, m.ttl) {
		return resolvedStat{stat: e.Data, source: fromMemory}, nil
	}
	if e, ok := m.loadPersisted(ctx, regionID, typeID); ok && e.Fresh(now, m.ttl) {
		m.memory.Put(regionID, typeID, e)
		return resolvedStat{stat: e.Data, source: fromStore}, nil
	}

	source := fromESI
	var stat HistoricalStat
	series, err := m.source.FetchMarketHistory(ctx, regionID, typeID)
	switch {
	case errors.Is(err, esi.ErrNotFound):
		source = fromNotFound
	case err != nil:
		return resolvedStat{}, err
	default:
		stat, err = AnalyzeHistory(series)
		if err != nil {
			return resolvedStat{}, fmt.Errorf("type %d: %w", typeID, err)
		}
	}

	entry := CacheEntry{Timestamp: now, Data: stat}
	m.memory.Put(regionID, typeID, entry)
	m.savePersisted(ctx, regionID, typeID, entry)
	return resolvedStat{stat: stat, source: source}, nil
}

// loadPersisted treats read and decode failures as a miss.
func (m *MarketData) loadPersisted(ctx context.Context, regionID, typeID int32) (CacheEntry, bool) {
	if m.store == nil {
		return CacheEntry{}, false
	}
	key := HistoryKey(regionID, typeID)
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		logger.Warn("History", "cache read failed", "key", key, logger.Err(err))
		return CacheEntry{}, false
	}
	if !ok {
		return CacheEntry{}, false
	}
	var e CacheEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		logger.Debug("History", "ignoring corrupt cache entry", "key", key, logger.Err(err))
		return CacheEntry{}, false
	}
	return e, true
}

// savePersisted logs failures; the stat is still usable for this run.
func (m *MarketData) savePersisted(ctx context.Context, regionID, typeID int32, e CacheEntry) {
	if m.store == nil {
		return
	}
	key := HistoryKey(regionID, typeID)
	raw, err := json.Marshal(e)
	if err == nil {
		err = m.store.Set(ctx, key, string(raw))
	}
	if err != nil {
		logger.Warn("History", "cache write failed", "key", key, logger.Err(err))
	}
}

func (m *MarketData) accessToken(ctx context.Context) (string, error) {
	if m.tokens == nil {
		return "", fmt.Errorf("no token source: %w", esi.ErrUnauthorized)
	}
	return m.tokens.AccessToken(ctx)
}

// PoolStats exposes the history pool counters.
func (m *MarketData) PoolStats() pool.Stats {
	return m.pool.Stats()
}
