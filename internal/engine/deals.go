package engine

import (
	"sort"

	"eve-dealfinder/internal/esi"
)

const (
	minOrderPrice   = 0.01
	outbidFactor    = 1.001
	undercutFactor  = 0.999
	sellCeilingMult = 1.05
)

// SummarizeOrders reduces raw orders to the best buy and sell per type.
// locationID 0 keeps every order; otherwise only orders at that location.
func SummarizeOrders(orders []esi.MarketOrder, locationID int64) map[int32]PriceSummary {
	out := make(map[int32]PriceSummary)
	for _, o := range orders {
		if locationID != 0 && o.LocationID != locationID {
			continue
		}
		var s PriceSummary
		if o.IsBuyOrder {
			s = PriceSummary{MaxBuy: o.Price, HasBuy: true}
		} else {
			s = PriceSummary{MinSell: o.Price, HasSell: true}
		}
		out[o.TypeID] = out[o.TypeID].Merge(s)
	}
	return out
}

// Merge combines two summaries of the same type. It is associative and
// commutative, so pages can be merged in any order.
func (p PriceSummary) Merge(o PriceSummary) PriceSummary {
	out := p
	if o.HasBuy && (!out.HasBuy || o.MaxBuy > out.MaxBuy) {
		out.MaxBuy, out.HasBuy = o.MaxBuy, true
	}
	if o.HasSell && (!out.HasSell || o.MinSell < out.MinSell) {
		out.MinSell, out.HasSell = o.MinSell, true
	}
	return out
}

// MergeSummaries folds src into dst and returns dst.
func MergeSummaries(dst, src map[int32]PriceSummary) map[int32]PriceSummary {
	if dst == nil {
		dst = make(map[int32]PriceSummary, len(src))
	}
	for id, s := range src {
		dst[id] = dst[id].Merge(s)
	}
	return dst
}

// ComputeDeals produces one candidate deal per type that has a historical
// stat and a known TradableType. Types without current orders still get a
// deal priced off history alone. Output is ordered by type ID.
func ComputeDeals(
	types map[int32]TradableType,
	prices map[int32]PriceSummary,
	stats map[int32]HistoricalStat,
	fees FeeModel,
	horizonDays float64,
) []Deal {
	ids := make([]int32, 0, len(stats))
	for id := range stats {
		if _, ok := types[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	deals := make([]Deal, 0, len(ids))
	for _, id := range ids {
		stat := stats[id]
		price := prices[id]

		volume := min(stat.AvgDailyBuyVol, stat.AvgDailySellVol) * horizonDays

		buyPrice := minOrderPrice
		if price.HasBuy {
			buyPrice = max(minOrderPrice, outbidFactor*price.MaxBuy)
		}
		sellPrice := sellCeilingMult * stat.MaxPrice
		if price.HasSell {
			sellPrice = min(sellPrice, undercutFactor*price.MinSell)
		}

		deals = append(deals, Deal{
			Type:      types[id],
			Volume:    volume,
			BuyPrice:  buyPrice,
			SellPrice: sellPrice,
			Fees:      fees.Fees(volume, buyPrice, sellPrice),
		})
	}
	return deals
}
