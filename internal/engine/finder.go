package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"eve-dealfinder/internal/esi"
	"eve-dealfinder/internal/logger"
	"eve-dealfinder/internal/metrics"
	"eve-dealfinder/internal/pool"
)

// FinderOptions configures a Finder. Zero fields take defaults.
type FinderOptions struct {
	Concurrency      int
	MaxRetries       int
	HistoryTTL       time.Duration
	OrderHorizonDays float64
}

// DefaultFinderOptions returns the standard pool bound, retry budget,
// cache lifetime and one-day order horizon.
func DefaultFinderOptions() FinderOptions {
	return FinderOptions{
		Concurrency:      pool.DefaultConcurrency,
		MaxRetries:       pool.DefaultMaxRetries,
		HistoryTTL:       DefaultHistoryTTL,
		OrderHorizonDays: 1,
	}
}

// RunReport summarises one discovery run.
type RunReport struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Location   Location      `json:"location"`
	Wallet     float64       `json:"wallet"`
	Types      int           `json:"types"`
	Candidates int           `json:"candidates"`
	Affordable int           `json:"affordable"`
	Profitable int           `json:"profitable"`
	Duplicates int           `json:"duplicates"`
	History    HistoryReport `json:"history"`
	Deals      []Deal        `json:"deals"`
}

// Finder runs discovery for one character. It owns the in-memory stat
// cache, which survives across runs of the same Finder.
type Finder struct {
	market    *MarketData
	character CharacterData
	horizon   float64
	now       func() time.Time
}

func NewFinder(source MarketSource, tokens esi.TokenSource, store KeyValueStore, character CharacterData, opts FinderOptions) *Finder {
	if opts.OrderHorizonDays <= 0 {
		opts.OrderHorizonDays = 1
	}
	return &Finder{
		market: NewMarketData(source, tokens, store, NewStatCache(), MarketDataOptions{
			Concurrency: opts.Concurrency,
			MaxRetries:  opts.MaxRetries,
			HistoryTTL:  opts.HistoryTTL,
		}),
		character: character,
		horizon:   opts.OrderHorizonDays,
		now:       time.Now,
	}
}

// FindDeals returns profitable, affordable deals not already on the market
// for the character, best profit first.
func (f *Finder) FindDeals(ctx context.Context) ([]Deal, error) {
	r, err := f.FindDealsReport(ctx)
	if err != nil {
		return nil, err
	}
	return r.Deals, nil
}

// FindDealsReport is FindDeals plus run statistics. Any error aborts the
// run without partial output.
func (f *Finder) FindDealsReport(ctx context.Context) (*RunReport, error) {
	start := f.now()
	report := &RunReport{StartedAt: start}
	if n := f.market.memory.Purge(start, f.market.ttl); n > 0 {
		logger.Debug("Finder", "purged stale stats", "count", n)
	}

	var (
		loc    Location
		skills map[int32]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		loc, err = f.character.Location(gctx)
		return err
	})
	g.Go(func() (err error) {
		skills, err = f.character.Skills(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("character context: %w", err)
	}
	report.Location = loc

	fees, err := FeeModelFromSkills(skills, loc.IsNPC())
	if err != nil {
		return nil, err
	}

	var (
		types  []TradableType
		stats  map[int32]HistoricalStat
		prices map[int32]PriceSummary
		wallet float64
		orders []OpenOrder
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if types, err = f.market.MarketTypes(gctx, loc.RegionID); err != nil {
			return fmt.Errorf("market types: %w", err)
		}
		ids := lo.Map(types, func(t TradableType, _ int) int32 { return t.TypeID })
		stats, report.History, err = f.market.HistoricalStats(gctx, loc.RegionID, ids)
		return err
	})
	g.Go(func() (err error) {
		prices, err = f.market.CurrentPrices(gctx, loc)
		return err
	})
	g.Go(func() (err error) {
		wallet, err = f.character.WalletBalance(gctx)
		return err
	})
	g.Go(func() (err error) {
		orders, err = f.character.OpenOrders(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	report.Types = len(types)
	report.Wallet = wallet

	typeMap := lo.SliceToMap(types, func(t TradableType) (int32, TradableType) { return t.TypeID, t })
	candidates := ComputeDeals(typeMap, prices, stats, fees, f.horizon)
	affordable := ScaleToWallet(candidates, wallet)
	profitable := lo.Filter(affordable, func(d Deal, _ int) bool { return d.Profit() > 0 })
	deals := FilterOpenOrders(profitable, orders, loc)
	SortByProfit(deals)

	report.Candidates = len(candidates)
	report.Affordable = len(affordable)
	report.Profitable = len(profitable)
	report.Duplicates = len(profitable) - len(deals)
	report.Deals = deals
	report.Duration = f.now().Sub(start)

	metrics.RunDuration.Observe(report.Duration.Seconds())
	metrics.RunDeals.Set(float64(len(deals)))
	logger.Info("Finder", "discovery finished",
		"region", loc.RegionID,
		"types", report.Types,
		"deals", len(deals),
		"memory_hits", report.History.Memory,
		"store_hits", report.History.Store,
		"fetched", report.History.Fetched,
		"failed", report.History.Failed,
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, nil
}

// FilterOpenOrders drops deals for types the character already trades at
// loc's market. Region-wide markets match on region instead of location.
func FilterOpenOrders(deals []Deal, orders []OpenOrder, loc Location) []Deal {
	marketID := loc.MarketLocationID()
	taken := make(map[int32]struct{}, len(orders))
	for _, o := range orders {
		if (marketID != 0 && o.LocationID == marketID) || (marketID == 0 && o.RegionID == loc.RegionID) {
			taken[o.TypeID] = struct{}{}
		}
	}
	return lo.Reject(deals, func(d Deal, _ int) bool {
		_, ok := taken[d.Type.TypeID]
		return ok
	})
}

// SortByProfit orders deals by descending profit. Equal profits keep
// their relative order.
func SortByProfit(deals []Deal) {
	sort.SliceStable(deals, func(i, j int) bool { return deals[i].Profit() > deals[j].Profit() })
}

// CachedStats reports how many stats the in-memory tier holds.
func (f *Finder) CachedStats() int {
	return f.market.memory.Len()
}

// PoolStats exposes the history pool counters.
func (f *Finder) PoolStats() pool.Stats {
	return f.market.PoolStats()
}
