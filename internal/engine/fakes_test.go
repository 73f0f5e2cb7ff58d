package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"eve-dealfinder/internal/esi"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
	sets atomic.Int64
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	m.sets.Add(1)
	return nil
}

// fakeMarket serves canned ESI data. historyErr, when set for a type,
// is returned for its first failures calls (or forever when failures < 0).
type fakeMarket struct {
	mu           sync.Mutex
	regionOrders map[int32][][]esi.MarketOrder
	structOrders map[int64][][]esi.MarketOrder
	history      map[int32][]esi.HistoryEntry
	historyErr   map[int32]error
	failures     map[int32]int
	typeIDs      []int32
	names        map[int32]string

	historyCalls map[int32]int
	lastToken    string
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		regionOrders: map[int32][][]esi.MarketOrder{},
		structOrders: map[int64][][]esi.MarketOrder{},
		history:      map[int32][]esi.HistoryEntry{},
		historyErr:   map[int32]error{},
		failures:     map[int32]int{},
		names:        map[int32]string{},
		historyCalls: map[int32]int{},
	}
}

func (f *fakeMarket) FetchRegionOrderPages(_ context.Context, regionID int32) ([][]esi.MarketOrder, error) {
	return f.regionOrders[regionID], nil
}

func (f *fakeMarket) FetchStructureOrderPages(_ context.Context, structureID int64, token string) ([][]esi.MarketOrder, error) {
	f.mu.Lock()
	f.lastToken = token
	f.mu.Unlock()
	return f.structOrders[structureID], nil
}

func (f *fakeMarket) FetchMarketHistory(_ context.Context, _ int32, typeID int32) ([]esi.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls[typeID]++
	if err, ok := f.historyErr[typeID]; ok {
		n := f.failures[typeID]
		if n < 0 || f.historyCalls[typeID] <= n {
			return nil, err
		}
	}
	if _, ok := f.history[typeID]; !ok {
		return nil, fmt.Errorf("history %d: %w", typeID, esi.ErrNotFound)
	}
	return f.history[typeID], nil
}

func (f *fakeMarket) FetchMarketTypeIDs(context.Context, int32) ([]int32, error) {
	return f.typeIDs, nil
}

func (f *fakeMarket) ResolveNames(_ context.Context, ids []int32) (map[int32]string, error) {
	out := map[int32]string{}
	for _, id := range ids {
		if n, ok := f.names[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func (f *fakeMarket) calls(typeID int32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls[typeID]
}

type fakeCharacter struct {
	loc       Location
	wallet    float64
	skills    map[int32]int
	orders    []OpenOrder
	walletErr error
}

func (c fakeCharacter) Location(context.Context) (Location, error) { return c.loc, nil }
func (c fakeCharacter) WalletBalance(context.Context) (float64, error) {
	return c.wallet, c.walletErr
}
func (c fakeCharacter) Skills(context.Context) (map[int32]int, error)   { return c.skills, nil }
func (c fakeCharacter) OpenOrders(context.Context) ([]OpenOrder, error) { return c.orders, nil }

type fixedToken string

func (t fixedToken) AccessToken(context.Context) (string, error) { return string(t), nil }

func flatHistory(price float64, volume int64, days int) []esi.HistoryEntry {
	out := make([]esi.HistoryEntry, days)
	for i := range out {
		out[i] = esi.HistoryEntry{
			Date:    fmt.Sprintf("2025-02-%02d", i+1),
			Highest: price, Lowest: price, Average: price, Volume: volume,
		}
	}
	return out
}

// spreadHistory yields a series whose first day is all sell volume and
// whose later days split evenly, so buy volume is (days-1)/2 days' worth.
func spreadHistory(high, low float64, volume int64, days int) []esi.HistoryEntry {
	out := make([]esi.HistoryEntry, days)
	for i := range out {
		out[i] = esi.HistoryEntry{
			Date:    fmt.Sprintf("2025-02-%02d", i+1),
			Highest: high, Lowest: low, Average: (high + low) / 2, Volume: volume,
		}
	}
	return out
}
